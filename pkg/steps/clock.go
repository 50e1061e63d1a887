package steps

import "time"

// Clock abstracts the time source used by polling steps, so timeout
// behavior is deterministically testable without wall-clock sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers after the duration elapses.
	After(d time.Duration) <-chan time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// After implements Clock.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// FakeClock is a deterministic Clock for tests. Every After call
// advances the fake time by the requested duration and fires
// immediately, so a polling loop runs its full schedule without real
// sleeps.
type FakeClock struct {
	current time.Time
}

// NewFakeClock creates a fake clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now implements Clock.
func (f *FakeClock) Now() time.Time {
	return f.current
}

// After implements Clock by advancing the fake time and firing at once.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.current = f.current.Add(d)
	ch := make(chan time.Time, 1)
	ch <- f.current
	return ch
}

// Advance moves the fake time forward without a timer firing.
func (f *FakeClock) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}
