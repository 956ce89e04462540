package picker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-picker/internal/domain"
)

// ElementLocateButton is the overlay element injected by the locate control.
const ElementLocateButton = "locate-button"

// Button glyphs shown by the locate control.
const (
	GlyphIdle = "locate"
	GlyphBusy = "spinner"
)

// LocateState is the state of the locate control.
type LocateState int

const (
	LocateIdle LocateState = iota
	LocateRequesting
)

func (s LocateState) String() string {
	if s == LocateRequesting {
		return "requesting"
	}
	return "idle"
}

// LocateOptions tunes the locate control.
type LocateOptions struct {
	Position    domain.PositionOptions
	FlyDuration time.Duration
}

// DefaultLocateOptions uses the default position options and a 0.8s fly-to.
func DefaultLocateOptions() LocateOptions {
	return LocateOptions{
		Position:    domain.DefaultPositionOptions(),
		FlyDuration: 800 * time.Millisecond,
	}
}

// LocateControl is a button that centers the map on the device position.
// Only one request runs at a time; activations while Requesting are ignored.
type LocateControl struct {
	env      *env
	source   domain.Geolocator
	notifier Notifier
	opts     LocateOptions
	onFix    func(pos domain.Position, settled func())

	mu       sync.Mutex
	attached bool
	state    LocateState
	req      uint64
	lastErr  *domain.GeolocationError
}

func newLocateControl(e *env, source domain.Geolocator, notifier Notifier, opts LocateOptions, onFix func(domain.Position, func())) *LocateControl {
	return &LocateControl{
		env:      e,
		source:   source,
		notifier: notifier,
		opts:     opts,
		onFix:    onFix,
	}
}

// Name identifies the control in bindings and logs.
func (l *LocateControl) Name() string { return "locate" }

// Attach adds the locate button to the map.
func (l *LocateControl) Attach(b *ControlBinding) error {
	if err := b.Defer(l.detach); err != nil {
		return err
	}
	if err := b.AddElement(ElementLocateButton); err != nil {
		return err
	}
	l.mu.Lock()
	l.attached = true
	l.mu.Unlock()
	return nil
}

func (l *LocateControl) detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attached = false
	l.state = LocateIdle
	l.req++
}

// Activate handles a click on the locate button. It returns ErrLocateBusy
// while a request is in flight, and a *domain.GeolocationError of kind
// UnsupportedFeature, before any request starts, when no position source
// can answer for ctx. Values of ctx (but not its cancellation) are passed to
// the position source; the request lives until it completes, times out, or
// the widget unmounts.
func (l *LocateControl) Activate(ctx context.Context) error {
	if !l.isAttached() {
		return ErrDetached
	}
	var err error
	if !l.env.loop.do(func() { err = l.activate(ctx) }) {
		return ErrDetached
	}
	return err
}

// State returns the current state.
func (l *LocateControl) State() LocateState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Glyph returns the button glyph for the current state.
func (l *LocateControl) Glyph() string {
	if l.State() == LocateRequesting {
		return GlyphBusy
	}
	return GlyphIdle
}

// LastError returns the most recent classified failure, if any.
func (l *LocateControl) LastError() *domain.GeolocationError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *LocateControl) isAttached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attached
}

func (l *LocateControl) activate(ctx context.Context) error {
	l.mu.Lock()
	if !l.attached {
		l.mu.Unlock()
		return ErrDetached
	}
	if l.state == LocateRequesting {
		l.mu.Unlock()
		l.env.logger.Debug("locate activation ignored, request in flight")
		return ErrLocateBusy
	}
	if !domain.GeolocationAvailable(ctx, l.source) {
		gerr := domain.NewGeolocationError(domain.UnsupportedFeature, domain.ErrNoGeolocator)
		l.lastErr = gerr
		l.mu.Unlock()
		l.fail(gerr)
		return gerr
	}
	l.state = LocateRequesting
	l.req++
	req := l.req
	l.mu.Unlock()

	reqCtx, cancel := l.requestContext(ctx)
	go func() {
		defer cancel()
		pos, err := l.read(reqCtx)
		l.env.loop.post(func() { l.finish(req, pos, err) })
	}()
	return nil
}

func (l *LocateControl) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if d := l.opts.Position.Timeout; d > 0 {
		var cancelTimeout context.CancelFunc
		reqCtx, cancelTimeout = clockwork.WithTimeout(reqCtx, l.env.clock, d)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}
	stop := context.AfterFunc(l.env.ctx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

// read waits for the source or the request deadline, whichever comes first.
func (l *LocateControl) read(ctx context.Context) (domain.Position, error) {
	type result struct {
		pos domain.Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := l.source.CurrentPosition(ctx, l.opts.Position)
		ch <- result{pos, err}
	}()

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-ctx.Done():
		return domain.Position{}, ctx.Err()
	}
}

func (l *LocateControl) finish(req uint64, pos domain.Position, err error) {
	l.mu.Lock()
	if !l.attached || req != l.req {
		l.mu.Unlock()
		return
	}

	if err != nil {
		gerr := domain.ClassifyGeolocationError(err)
		l.state = LocateIdle
		l.lastErr = gerr
		l.mu.Unlock()
		l.fail(gerr)
		return
	}
	l.lastErr = nil
	l.mu.Unlock()

	l.onFix(pos, func() { l.settle(req) })
}

func (l *LocateControl) settle(req uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req == l.req {
		l.state = LocateIdle
	}
}

func (l *LocateControl) fail(gerr *domain.GeolocationError) {
	l.env.metrics.LocateFailures.WithLabelValues(gerr.Kind.String()).Inc()
	l.env.logger.Info("locate failed", "kind", gerr.Kind.String(), "error", gerr)
	l.notifier.Notify(Notification{
		Kind:    gerr.Kind.String(),
		Message: gerr.Message,
		At:      l.env.clock.Now(),
	})
}
