package coordinator

import (
	"github.com/tdma-harness/mastercoord/protocol"
)

// pendingKey identifies a PendingCommand by its (target, message_id) pair,
// matching §4.5's "matching (target_id, message_id) entry" removal rule.
type pendingKey struct {
	targetID  uint32
	messageID byte
}

// PendingCommand is one outbound MASTER->SLAVE message awaiting
// confirmation, per §3.
type PendingCommand struct {
	TargetID    uint32
	MessageID   byte
	Body        []byte
	SentAtMs    int64
	RetriesDone int
	MaxRetries  int
}

// retryTimeoutMs computes min(BASE*2^retriesDone, MAX), per §3.
func retryTimeoutMs(retriesDone int) int64 {
	timeout := int64(protocol.BaseRetryTimeoutMs)
	for i := 0; i < retriesDone; i++ {
		timeout *= 2
		if timeout >= protocol.MaxRetryTimeoutMs {
			return protocol.MaxRetryTimeoutMs
		}
	}
	if timeout > protocol.MaxRetryTimeoutMs {
		return protocol.MaxRetryTimeoutMs
	}
	return timeout
}

// EnqueuePendingCommand registers a MASTER->SLAVE message as needing a
// slave reply before RadioRx calls RemovePendingCommand. Sending happens
// immediately; the entry only tracks retries on top of that first send.
func (s *CoordinatorState) EnqueuePendingCommand(targetID uint32, messageID byte, body []byte, maxRetries int) error {
	err := s.SendToSlave(targetID, messageID, body)

	s.pcMu.Lock()
	s.pendingCommands[pendingKey{targetID, messageID}] = &PendingCommand{
		TargetID:    targetID,
		MessageID:   messageID,
		Body:        body,
		SentAtMs:    s.clock.NowMs(),
		RetriesDone: 0,
		MaxRetries:  maxRetries,
	}
	s.pcMu.Unlock()

	return err
}

// RemovePendingCommand drops the (targetID, messageID) entry, called when
// a matching slave reply arrives.
func (s *CoordinatorState) RemovePendingCommand(targetID uint32, messageID byte) {
	s.pcMu.Lock()
	defer s.pcMu.Unlock()
	delete(s.pendingCommands, pendingKey{targetID, messageID})
}

// ClearPendingCommands empties the retry queue, per Control(STOP) in §5.
func (s *CoordinatorState) ClearPendingCommands() {
	s.pcMu.Lock()
	defer s.pcMu.Unlock()
	s.pendingCommands = make(map[pendingKey]*PendingCommand)
}

// RunRetries scans the pending-command queue once, resending anything past
// its backoff timeout and dropping anything that exhausted max_retries.
// This is the first step of the Tick ordering in §5.
func (s *CoordinatorState) RunRetries() {
	now := s.clock.NowMs()

	s.pcMu.Lock()
	var toResend []*PendingCommand
	for key, cmd := range s.pendingCommands {
		if now-cmd.SentAtMs <= retryTimeoutMs(cmd.RetriesDone) {
			continue
		}
		if cmd.RetriesDone >= cmd.MaxRetries {
			delete(s.pendingCommands, key)
			logf("Retry", "command exhausted target=%d msg=0x%02x", cmd.TargetID, cmd.MessageID)
			continue
		}
		cmd.RetriesDone++
		cmd.SentAtMs = now
		toResend = append(toResend, cmd)
	}
	s.pcMu.Unlock()

	for _, cmd := range toResend {
		if err := s.SendToSlave(cmd.TargetID, cmd.MessageID, cmd.Body); err != nil {
			logf("Retry", "resend failed target=%d msg=0x%02x err=%v", cmd.TargetID, cmd.MessageID, err)
		}
	}
}

// PendingCommandCount reports the queue depth, mostly for tests.
func (s *CoordinatorState) PendingCommandCount() int {
	s.pcMu.Lock()
	defer s.pcMu.Unlock()
	return len(s.pendingCommands)
}
