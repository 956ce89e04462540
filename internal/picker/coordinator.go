package picker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

// Config holds the values injected into a widget at construction.
type Config struct {
	Default        domain.Selection
	Zoom           int
	Tiles          TileLayer
	Search         SearchOptions
	Locate         LocateOptions
	ReverseTimeout time.Duration // 0 leaves the deadline to the transport
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Default:        domain.DefaultSelection(),
		Zoom:           15,
		Tiles:          DefaultTileLayer(),
		Search:         DefaultSearchOptions(),
		Locate:         DefaultLocateOptions(),
		ReverseTimeout: 8 * time.Second,
	}
}

// Dependencies are the collaborators of a widget. Only OnAddressChange is
// required: a nil Geocoder always yields coordinate addresses, a nil Suggester
// never lists suggestions, and a nil Geolocator (or one that reports itself
// unavailable) makes locate fail with UnsupportedFeature.
type Dependencies struct {
	Geocoder   domain.ReverseGeocoder
	Suggester  domain.Suggester
	Geolocator domain.Geolocator
	Notifier   Notifier

	// OnAddressChange receives every confirmed selection, replacing the
	// previous one. It runs on the widget's event goroutine and must not call
	// back into the widget synchronously.
	OnAddressChange func(domain.Selection)

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Update is a candidate selection from one input source. An empty Address is
// resolved through the reverse geocoder before it is committed.
type Update struct {
	Lat     float64
	Lng     float64
	Address string
	Source  domain.Source
}

type mountState int

const (
	stateNew mountState = iota
	stateMounted
	stateUnmounted
)

// Coordinator is the widget root. It owns the canonical selection, mounts the
// search and locate controls on the map and reports confirmed selections to
// the host.
type Coordinator struct {
	cfg      Config
	env      *env
	resolver *domain.Resolver
	onChange func(domain.Selection)
	m        *Map
	search   *SearchControl
	locate   *LocateControl

	mu        sync.Mutex
	state     mountState
	selection domain.Selection
	source    domain.Source
	token     uint64
	cancel    context.CancelFunc

	teardown sync.Once
	bindings []*ControlBinding // loop-owned until the loop stops
	counted  bool
}

// New creates an unmounted widget.
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if deps.OnAddressChange == nil {
		return nil, errors.New("picker: OnAddressChange is required")
	}
	if deps.Clock == nil {
		deps.Clock = domain.Clock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewUnregisteredMetrics()
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: deps.Logger}
	}
	if cfg.Default.Address == "" {
		cfg.Default = domain.NewSelection(cfg.Default.Lat, cfg.Default.Lng, "")
	}

	e := &env{
		loop:    newLoop(64),
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		ctx:     context.Background(),
	}
	c := &Coordinator{
		cfg:       cfg,
		env:       e,
		resolver:  domain.NewResolver(deps.Geocoder, cfg.ReverseTimeout, deps.Logger),
		onChange:  deps.OnAddressChange,
		m:         NewMap(NewViewport(cfg.Default.Coordinates(), cfg.Zoom, cfg.Tiles)),
		selection: cfg.Default,
		source:    domain.SourceDefault,
	}
	c.search = newSearchControl(e, deps.Suggester, cfg.Search, c.handleSearch)
	c.locate = newLocateControl(e, deps.Geolocator, deps.Notifier, cfg.Locate, c.handleFix)
	return c, nil
}

// Mount attaches the controls and reports the default selection to the host
// exactly once. Values of ctx are kept for the lifetime of the mount; its
// cancellation is not, the widget lives until Unmount. If any control fails
// to attach, everything attached so far is released and the widget is
// unmounted.
func (c *Coordinator) Mount(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateMounted:
		c.mu.Unlock()
		return ErrAlreadyMounted
	case stateUnmounted:
		c.mu.Unlock()
		return ErrUnmounted
	}
	c.state = stateMounted
	c.selection = c.cfg.Default
	c.source = domain.SourceDefault
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.env.ctx = base
	c.mu.Unlock()

	c.env.loop.start()

	var err error
	if !c.env.loop.do(func() { err = c.mount() }) {
		err = ErrNotMounted
	}
	if err != nil {
		c.Unmount()
		return err
	}
	return nil
}

func (c *Coordinator) mount() error {
	def := c.cfg.Default
	c.m.View().SetView(def.Coordinates(), c.cfg.Zoom)
	c.m.View().SetMarker(def.Coordinates())

	for _, ctl := range []Control{clickHandler{c}, c.search, c.locate} {
		b, err := c.m.Attach(ctl)
		if err != nil {
			return err
		}
		c.bindings = append(c.bindings, b)
	}

	c.counted = true
	c.env.metrics.PickersMounted.Inc()
	c.env.metrics.SelectionsTotal.WithLabelValues(string(domain.SourceDefault)).Inc()
	c.onChange(def)
	return nil
}

// Unmount releases every control binding and listener and stops the event
// goroutine. No host callback runs after Unmount returns. Safe to call more
// than once, and before Mount. It must not be called from OnAddressChange.
func (c *Coordinator) Unmount() {
	c.mu.Lock()
	prev := c.state
	c.state = stateUnmounted
	cancel := c.cancel
	c.mu.Unlock()

	if prev == stateNew {
		return
	}

	c.teardown.Do(func() {
		cancel()
		c.env.loop.stop()

		for i := len(c.bindings) - 1; i >= 0; i-- {
			c.bindings[i].Release()
		}
		c.bindings = nil
		if c.counted {
			c.env.metrics.PickersMounted.Dec()
		}
	})
}

// Mounted reports whether the widget is mounted.
func (c *Coordinator) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateMounted
}

// Selection returns the canonical selection.
func (c *Coordinator) Selection() domain.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// Source returns the input mode that produced the canonical selection. It is
// safe to call from OnAddressChange.
func (c *Coordinator) Source() domain.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Map returns the map handle.
func (c *Coordinator) Map() *Map { return c.m }

// Search returns the search control.
func (c *Coordinator) Search() *SearchControl { return c.search }

// Locate returns the locate control.
func (c *Coordinator) Locate() *LocateControl { return c.locate }

// UpdateSelection merges u into the canonical selection, moves the marker and
// notifies the host. With an empty address the update is confirmed once the
// reverse lookup (or its fallback) completes.
func (c *Coordinator) UpdateSelection(u Update) error {
	if u.Source == "" {
		u.Source = domain.SourceClick
	}
	return c.run(func() { c.propose(u, nil) })
}

// Click handles a click on the map at lat/lng.
func (c *Coordinator) Click(lat, lng float64) error {
	return c.run(func() { c.m.Click(domain.Coordinates{Lat: lat, Lng: lng}) })
}

func (c *Coordinator) run(fn func()) error {
	if !c.Mounted() {
		return ErrNotMounted
	}
	if !c.env.loop.do(fn) {
		return ErrNotMounted
	}
	return nil
}

func (c *Coordinator) handleClick(p domain.Coordinates) {
	c.propose(Update{Lat: p.Lat, Lng: p.Lng, Source: domain.SourceClick}, nil)
}

func (c *Coordinator) handleSearch(r SearchResult) {
	c.propose(Update{Lat: r.Lat, Lng: r.Lng, Address: r.Label, Source: domain.SourceSearch}, nil)
}

func (c *Coordinator) handleFix(pos domain.Position, settled func()) {
	target := domain.Coordinates{Lat: pos.Lat, Lng: pos.Lng}
	c.m.View().FlyTo(target, c.cfg.Locate.FlyDuration)
	c.propose(Update{Lat: pos.Lat, Lng: pos.Lng, Source: domain.SourceLocate}, settled)
}

// propose takes the next token for u and commits it, resolving the address
// first when it is unknown. settled, if set, runs on the loop once the update
// was committed or discarded.
func (c *Coordinator) propose(u Update, settled func()) {
	c.mu.Lock()
	c.token++
	token := c.token
	c.mu.Unlock()

	if u.Address != "" {
		c.commit(token, domain.NewSelection(u.Lat, u.Lng, u.Address), u.Source)
		if settled != nil {
			settled()
		}
		return
	}

	ctx := c.env.ctx
	go func() {
		address := c.resolver.Resolve(ctx, u.Lat, u.Lng)
		c.env.loop.post(func() {
			c.commit(token, domain.NewSelection(u.Lat, u.Lng, address), u.Source)
			if settled != nil {
				settled()
			}
		})
	}()
}

// commit replaces the canonical selection unless a newer input has taken a
// token since this one was issued.
func (c *Coordinator) commit(token uint64, sel domain.Selection, source domain.Source) bool {
	c.mu.Lock()
	if c.state != stateMounted {
		c.mu.Unlock()
		return false
	}
	if token != c.token {
		latest := c.token
		c.mu.Unlock()
		c.env.metrics.StaleResponses.Inc()
		c.env.logger.Debug("discarding stale selection",
			"source", source,
			"token", token,
			"latest", latest,
		)
		return false
	}
	c.selection = sel
	c.source = source
	c.mu.Unlock()

	view := c.m.View()
	view.SetMarker(sel.Coordinates())
	if source == domain.SourceSearch {
		view.SetView(sel.Coordinates(), 0)
	}

	c.env.metrics.SelectionsTotal.WithLabelValues(string(source)).Inc()
	c.onChange(sel)
	return true
}

// clickHandler binds the coordinator's map click listener.
type clickHandler struct{ c *Coordinator }

func (clickHandler) Name() string { return "click-handler" }

func (h clickHandler) Attach(b *ControlBinding) error {
	return b.OnClick(h.c.handleClick)
}
