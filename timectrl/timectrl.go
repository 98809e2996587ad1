package timectrl

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// SimClock is the time source used by the simulator. Components depend on
// it rather than the time package so runs can be fast-forwarded in tests.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime follows the wall clock.
	RealTime Mode = iota
	// Accelerated advances simulation time instantly whenever a caller waits.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "realtime" or "accelerated", case-insensitively. An
// empty string selects RealTime.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime", "real":
		return RealTime, nil
	case "accelerated", "fast":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("unknown clock mode %q", s)
	}
}

// TimeController implements SimClock in either mode. In Accelerated mode
// every After call moves simulation time forward by d and fires at once.
type TimeController struct {
	mu   sync.Mutex
	mode Mode

	// offset is how far simulation time has been pushed ahead of the wall
	// clock in Accelerated mode.
	offset time.Duration
	now    func() time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(mode Mode) *TimeController {
	return &TimeController{mode: mode, now: time.Now}
}

// Mode reports the controller's mode.
func (tc *TimeController) Mode() Mode { return tc.mode }

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now().Add(tc.offset)
}

// After implements SimClock. Listeners are notified when the wait fires.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	if tc.mode == RealTime {
		ch := make(chan time.Time, 1)
		time.AfterFunc(max(d, 0), func() {
			now := tc.Now()
			tc.notify(now)
			ch <- now
		})
		return ch
	}
	ch := make(chan time.Time, 1)
	ch <- tc.Advance(d)
	return ch
}

// Advance moves simulation time forward by d, notifies listeners and
// returns the new time. It is a no-op for non-positive d.
func (tc *TimeController) Advance(d time.Duration) time.Time {
	tc.mu.Lock()
	if d > 0 {
		tc.offset += d
	}
	now := tc.now().Add(tc.offset)
	tc.mu.Unlock()

	if d > 0 {
		tc.notify(now)
	}
	return now
}

// AddListener registers a callback invoked with the new simulation time
// whenever an After wait fires or time is advanced explicitly. Callbacks run
// on the caller's goroutine and may register further listeners.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

func (tc *TimeController) notify(now time.Time) {
	tc.mu.Lock()
	listeners := slices.Clone(tc.listeners)
	tc.mu.Unlock()
	for _, fn := range listeners {
		fn(now)
	}
}
