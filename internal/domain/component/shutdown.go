package component

import "sync"

// ShutdownSignal is the broadcast primitive the documented contract: a single
// producer (the supervisor) triggers it, any number of consumers (component
// run loops) await it, and triggering is idempotent.
type ShutdownSignal struct {
	mu sync.Mutex
	ch chan struct{}
	triggered bool
}

// NewShutdownSignal constructs an untriggered signal.
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{ch: make(chan struct{})}
}

// Trigger fires the signal. Safe to call more than once or concurrently;
// only the first call has effect.
func (s *ShutdownSignal) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggered {
		return
	}
	s.triggered = true
	close(s.ch)
}

// C returns a channel that is closed once Trigger has been called.
func (s *ShutdownSignal) C() <-chan struct{} { return s.ch }

// Triggered reports whether the signal has already fired.
func (s *ShutdownSignal) Triggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered
}

// ShutdownToken is the companion handle returned to the supervisor so it can
// detect when a component has observed its ShutdownSignal. The topology
// supervisor calls Observe when a node's run loop returns, so Observed
// closes only once the component has stopped; its per-stage grace timers
// start when it triggers the signal and do not wait on the token.
type ShutdownToken struct {
	observed chan struct{}
	once sync.Once
}

// NewShutdownToken constructs an unobserved token.
func NewShutdownToken() *ShutdownToken {
	return &ShutdownToken{observed: make(chan struct{})}
}

// Observe marks the signal as having been noticed by its consumer. Safe to
// call more than once.
func (t *ShutdownToken) Observe() {
	t.once.Do(func() { close(t.observed) })
}

// Observed returns a channel closed once Observe has been called.
func (t *ShutdownToken) Observed() <-chan struct{} { return t.observed }

// Handle bundles the signal and token a component receives at build time.
type Handle struct {
	Signal *ShutdownSignal
	Token *ShutdownToken
}

// NewHandle constructs a fresh signal/token pair for one component instance.
func NewHandle() Handle {
	return Handle{Signal: NewShutdownSignal(), Token: NewShutdownToken()}
}
