package transport

import (
	"sync"
	"time"
)

// RadioGate wraps a RadioDriver with the consecutive-failure back-pressure
// policy from §4.5: after MaxConsecutiveFailures sends fail within
// FailureResetInterval, outbound transmission is suspended until the
// failure streak decays. This lifts the original package-level counter
// into a first-class wrapper, per the redesign note in §9.
type RadioGate struct {
	driver RadioDriver

	maxConsecutiveFailures int
	failureResetInterval   time.Duration

	mu             sync.Mutex
	consecutiveErr int
	firstErrAt     time.Time
}

// NewRadioGate wraps driver with the given back-pressure thresholds: the
// consecutive-failure count that triggers suppression and the interval
// after which the failure streak decays.
func NewRadioGate(driver RadioDriver, maxConsecutiveFailures int, failureResetInterval time.Duration) *RadioGate {
	return &RadioGate{
		driver:                 driver,
		maxConsecutiveFailures: maxConsecutiveFailures,
		failureResetInterval:   failureResetInterval,
	}
}

// Send transmits a frame unless the gate is currently suppressing output.
// A suppressed send counts toward the retry engine as an ordinary failure.
func (g *RadioGate) Send(frame []byte) error {
	g.mu.Lock()
	if g.suppressedLocked() {
		g.mu.Unlock()
		return ErrSuppressed
	}
	g.mu.Unlock()

	err := g.driver.Send(frame)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		if g.consecutiveErr == 0 {
			g.firstErrAt = time.Now()
		}
		g.consecutiveErr++
		return err
	}
	g.consecutiveErr = 0
	return nil
}

func (g *RadioGate) Receive(timeout time.Duration) ([]byte, error) {
	return g.driver.Receive(timeout)
}

// Suppressed reports whether the gate is currently withholding sends,
// for the Tick loop's radio health check (§5).
func (g *RadioGate) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressedLocked()
}

// suppressedLocked reports whether the gate is currently suppressing sends,
// decaying the failure streak once the reset interval has elapsed.
func (g *RadioGate) suppressedLocked() bool {
	if g.consecutiveErr < g.maxConsecutiveFailures {
		return false
	}
	if time.Since(g.firstErrAt) > g.failureResetInterval {
		g.consecutiveErr = 0
		return false
	}
	return true
}
