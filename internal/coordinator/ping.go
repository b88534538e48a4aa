package coordinator

import "github.com/tdma-harness/mastercoord/protocol"

// PingSession tracks one backend PingCtrl request's progress against a
// single target slave, per §3/§4.7.
type PingSession struct {
	Target      uint32
	Mode        byte
	Total       uint16
	Sent        uint16
	Succeeded   uint16
	IntervalMs  uint16
	LastSentAtMs int64
}

// RegisterPingSession starts a new session; the first PingReq goes out on
// the next RunPingSessions call once IntervalMs has elapsed from
// registration.
func (s *CoordinatorState) RegisterPingSession(target uint32, mode byte, total, intervalMs uint16) {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	s.sessions = append(s.sessions, &PingSession{
		Target:       target,
		Mode:         mode,
		Total:        total,
		IntervalMs:   intervalMs,
		LastSentAtMs: s.clock.NowMs(),
	})
}

// RunPingSessions is Tick's second step (§5's ordering): progress every
// session whose interval has elapsed, sending the next PingReq or, once
// Total sends are done, emitting the summary response to the backend.
func (s *CoordinatorState) RunPingSessions() {
	now := s.clock.NowMs()

	s.pingMu.Lock()
	var due []*PingSession
	var finished []*PingSession
	remaining := s.sessions[:0]
	for _, sess := range s.sessions {
		if int64(sess.IntervalMs) > 0 && now-sess.LastSentAtMs < int64(sess.IntervalMs) {
			remaining = append(remaining, sess)
			continue
		}
		if sess.Sent < sess.Total {
			due = append(due, sess)
			remaining = append(remaining, sess)
		} else {
			finished = append(finished, sess)
		}
	}
	s.sessions = remaining
	s.pingMu.Unlock()

	for _, sess := range due {
		s.sendNextPing(sess, now)
	}
	for _, sess := range finished {
		s.sendPingSummary(sess)
	}
}

func (s *CoordinatorState) sendNextPing(sess *PingSession, now int64) {
	s.pingMu.Lock()
	sess.Sent++
	seq := sess.Sent
	sess.LastSentAtMs = now
	s.pingMu.Unlock()

	body := protocol.EncodePingReq(seq, uint32(now))
	if err := s.SendToSlave(sess.Target, protocol.MsgPingReq, body); err != nil {
		logf("Ping", "send failed target=%d seq=%d err=%v", sess.Target, seq, err)
	}
}

func (s *CoordinatorState) sendPingSummary(sess *PingSession) {
	body := protocol.EncodePingCtrlRsp(sess.Mode, sess.Total, sess.Succeeded, sess.Target)
	if err := s.SendToBackend(protocol.RspPingCtrl, body); err != nil {
		logf("Ping", "summary send failed target=%d err=%v", sess.Target, err)
	}
}

// CompletePingRsp records a PingRsp from target: increments the succeeded
// counter on the first session addressed to it and clears any matching
// retry-queue entry, per §4.7.
func (s *CoordinatorState) CompletePingRsp(target uint32) {
	s.pingMu.Lock()
	for _, sess := range s.sessions {
		if sess.Target == target {
			sess.Succeeded++
			break
		}
	}
	s.pingMu.Unlock()

	s.RemovePendingCommand(target, protocol.MsgPingReq)
}

// PingSessionCount reports the active session count, for tests.
func (s *CoordinatorState) PingSessionCount() int {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	return len(s.sessions)
}
