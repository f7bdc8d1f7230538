package game

// Timer is a tick-driven countdown. Start hands out a Handle; a handle from a
// previous start cannot stop or observe a later countdown, so a transition
// that restarts the timer invalidates every older handle.
type Timer struct {
	remaining int
	active    bool
	gen       uint64
}

// Handle owns one countdown started on a Timer.
type Handle struct {
	t   *Timer
	gen uint64
}

// Start begins a countdown of ticks and returns its handle. Any running
// countdown is replaced.
func (t *Timer) Start(ticks int) Handle {
	t.gen++
	t.remaining = ticks
	t.active = ticks > 0
	return Handle{t: t, gen: t.gen}
}

// Stop cancels whatever countdown is running.
func (t *Timer) Stop() {
	t.gen++
	t.active = false
}

// Tick decrements the countdown by one. It reports true exactly once, on the
// tick that reaches zero, after which the timer is inactive. Ticks on an
// inactive timer change nothing.
func (t *Timer) Tick() bool {
	if !t.active {
		return false
	}
	t.remaining--
	if t.remaining > 0 {
		return false
	}
	t.remaining = 0
	t.active = false
	return true
}

// Active reports whether a countdown is running.
func (t *Timer) Active() bool { return t.active }

// Remaining returns the ticks left on the current countdown.
func (t *Timer) Remaining() int { return t.remaining }

// Stop cancels the countdown if it is still the one this handle started.
func (h Handle) Stop() {
	if h.Current() {
		h.t.Stop()
	}
}

// Current reports whether the handle still owns the timer's countdown.
func (h Handle) Current() bool {
	return h.t != nil && h.t.gen == h.gen && h.t.active
}
