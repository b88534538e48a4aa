package coordinator

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tdma-harness/mastercoord/protocol"
)

// matchingReplies implements the table in §4.4: which SLAVE->MASTER
// message IDs can complete a given BACKEND->MASTER fan-out request.
var matchingReplies = map[byte][]byte{
	protocol.MsgModeConfig: {
		protocol.MsgConductionCfgRsp,
		protocol.MsgResistanceCfgRsp,
		protocol.MsgClipCfgRsp,
	},
	protocol.MsgRst: {protocol.MsgRstResponse},
}

func acceptableReply(requestClass, replyID byte) bool {
	for _, id := range matchingReplies[requestClass] {
		if id == replyID {
			return true
		}
	}
	return false
}

// PendingBackendResponse is one fanned-out backend request awaiting
// replies from multiple slaves, per §3. ID is an internal log-correlation
// handle only; it never appears on the wire.
type PendingBackendResponse struct {
	ID           string
	RequestClass byte
	Targets      []uint32
	Pending      map[uint32]bool
	Statuses     map[uint32]byte
	StartedAtMs  int64
	TimeoutMs    int64

	// Mode is set by handleModeConfig so the eventual ModeConfigRsp can
	// echo the mode the fan-out was applied to (only meaningful when
	// RequestClass == MsgModeConfig).
	Mode byte
	// RstSlaves is set by handleRst so the eventual RstRsp can echo each
	// target's requested lock/clip_status, per the authoritative
	// response contract, rather than a synthesised completion code (only
	// meaningful when RequestClass == MsgRst).
	RstSlaves []protocol.RstEntry
}

// RegisterPendingBackendResponse starts tracking a fan-out request against
// targets, returning the tracking entry so the caller (a backend handler's
// execute phase) doesn't need to thread the ID back through itself.
func (s *CoordinatorState) RegisterPendingBackendResponse(requestClass byte, targets []uint32) *PendingBackendResponse {
	pending := make(map[uint32]bool, len(targets))
	for _, t := range targets {
		pending[t] = true
	}
	entry := &PendingBackendResponse{
		ID:           uuid.NewString(),
		RequestClass: requestClass,
		Targets:      targets,
		Pending:      pending,
		Statuses:     make(map[uint32]byte),
		StartedAtMs:  s.clock.NowMs(),
		TimeoutMs:    protocol.BackendResponseTimeoutMs,
	}

	s.pbrMu.Lock()
	s.pbr[entry.ID] = entry
	s.pbrOrder = append(s.pbrOrder, entry.ID)
	s.pbrMu.Unlock()

	return entry
}

// CompleteBackendResponseSlave marks deviceID's contribution to the oldest
// matching pending entry as done. Called from RadioRx on a slave reply.
func (s *CoordinatorState) CompleteBackendResponseSlave(deviceID uint32, replyMessageID byte, status byte) {
	s.pbrMu.Lock()
	defer s.pbrMu.Unlock()

	for _, id := range s.pbrOrder {
		entry := s.pbr[id]
		if entry == nil || !acceptableReply(entry.RequestClass, replyMessageID) {
			continue
		}
		if !entry.Pending[deviceID] {
			continue
		}
		delete(entry.Pending, deviceID)
		entry.Statuses[deviceID] = status
		return
	}
}

// ProcessPendingBackendResponses is Tick's third step (§5's ordering):
// finish any complete or timed-out fan-out, synthesising and sending the
// corresponding Master->Backend response. The CompareAndSwap reentrancy
// guard and the 10-iteration/5s bound implement §4.4's self-watchdog so a
// pathological backlog can never stall the Tick loop.
func (s *CoordinatorState) ProcessPendingBackendResponses() {
	if !atomic.CompareAndSwapInt32(&s.reentrancy, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&s.reentrancy, 0)

	start := s.clock.NowMs()
	for iterations := 0; iterations < 10; iterations++ {
		if s.clock.NowMs()-start > 5000 {
			return
		}

		entry, timedOut := s.popFinishedPendingResponse()
		if entry == nil {
			return
		}
		s.sendBackendResponse(entry, timedOut)
	}
}

func (s *CoordinatorState) popFinishedPendingResponse() (*PendingBackendResponse, bool) {
	s.pbrMu.Lock()
	defer s.pbrMu.Unlock()

	now := s.clock.NowMs()
	for i, id := range s.pbrOrder {
		entry := s.pbr[id]
		if entry == nil {
			continue
		}
		timedOut := now-entry.StartedAtMs > entry.TimeoutMs
		if len(entry.Pending) == 0 || timedOut {
			delete(s.pbr, id)
			s.pbrOrder = append(s.pbrOrder[:i:i], s.pbrOrder[i+1:]...)
			return entry, timedOut
		}
	}
	return nil, false
}

func (s *CoordinatorState) sendBackendResponse(entry *PendingBackendResponse, timedOut bool) {
	overallStatus := byte(0)
	if timedOut {
		overallStatus = 1
	}
	for _, t := range entry.Targets {
		status, ok := entry.Statuses[t]
		if !ok || status != 0 {
			overallStatus = 1
		}
	}

	var responseID byte
	var body []byte
	switch entry.RequestClass {
	case protocol.MsgModeConfig:
		responseID = protocol.RspModeConfig
		body = protocol.EncodeModeConfigRsp(overallStatus, entry.Mode)
	case protocol.MsgRst:
		responseID = protocol.RspRst
		body = protocol.EncodeRstRsp(overallStatus, entry.RstSlaves)
	default:
		logf("Correlation", "no response encoder for request class 0x%02x id=%s", entry.RequestClass, entry.ID)
		return
	}

	if err := s.SendToBackend(responseID, body); err != nil {
		logf("Correlation", "send response failed class=0x%02x err=%v", entry.RequestClass, err)
	}
}

// PendingBackendResponseCount reports the fan-out table depth, for tests.
func (s *CoordinatorState) PendingBackendResponseCount() int {
	s.pbrMu.Lock()
	defer s.pbrMu.Unlock()
	return len(s.pbr)
}
