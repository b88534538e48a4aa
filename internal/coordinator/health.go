package coordinator

import "github.com/tdma-harness/mastercoord/protocol"

type suppressionReporter interface {
	Suppressed() bool
}

// RunPresenceAging is Tick's fifth step (§5's ordering): age out devices
// that haven't been heard from in DEVICE_TIMEOUT_MS, at most once per
// DEVICE_CLEANUP_INTERVAL_MS.
func (s *CoordinatorState) RunPresenceAging() {
	now := s.clock.NowMs()

	s.cfgMu.Lock()
	due := now-s.lastCleanupAtMs >= protocol.DeviceCleanupIntervalMs
	if due {
		s.lastCleanupAtMs = now
	}
	s.cfgMu.Unlock()

	if !due {
		return
	}

	if expired := s.registry.CleanupExpired(now, protocol.DeviceTimeoutMs); len(expired) > 0 {
		logf("Registry", "aged out %d device(s): %v", len(expired), expired)
	}
}

// RunHealthCheck is Tick's sixth and final step (§5's ordering): logs the
// radio back-pressure state so suppression episodes are visible without
// the caller needing to poll it directly.
func (s *CoordinatorState) RunHealthCheck() {
	reporter, ok := s.radio.(suppressionReporter)
	if !ok {
		return
	}
	if reporter.Suppressed() {
		logf("Health", "radio send suppressed by back-pressure")
	}
}
