package picker

import "sync"

// loop runs every widget state change on a single goroutine. External calls
// (geocoding, autocomplete, geolocation) run elsewhere and post their results
// back with post.
type loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	mu        sync.Mutex
}

func newLoop(buffer int) *loop {
	return &loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *loop) start() {
	l.startOnce.Do(func() {
		l.mu.Lock()
		l.started = true
		l.mu.Unlock()
		go l.run()
	})
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.tasks:
			// quit wins over queued work.
			select {
			case <-l.quit:
				return
			default:
			}
			fn()
		}
	}
}

// post queues fn. It reports false once the loop has been stopped.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// do runs fn on the loop and waits for it. It must not be called from the
// loop goroutine itself.
func (l *loop) do(fn func()) bool {
	ran := make(chan struct{})
	if !l.post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// stop prevents further tasks and waits for the running one to finish.
func (l *loop) stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.done
	}
}
