package coordinator

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/tdma-harness/mastercoord/protocol"
)

// encodeAnnounce builds the wire body for the SLAVE->MASTER Announce
// message, matching protocol.DecodeAnnounce's layout. There is no
// production encoder for it since this implementation never emits one.
func encodeAnnounce(deviceID uint32, major, minor byte, patch uint16) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], deviceID)
	out[4] = major
	out[5] = minor
	binary.LittleEndian.PutUint16(out[6:8], patch)
	return out
}

func TestHandleAnnounceEnrollsNewDevice(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	body := encodeAnnounce(0x42, 1, 0, 3)
	DispatchSlaveMessage(state, 0x42, protocol.MsgAnnounce, body)

	d, ok := state.Registry().Get(0x42)
	if !ok {
		t.Fatal("device not registered after Announce")
	}
	if !d.HasShortID {
		t.Fatal("expected a short_id to be allocated on first Announce")
	}
	if d.Online {
		t.Error("device should not be Online before ShortIdConfirm")
	}

	tx := radio.TxLog()
	if len(tx) != 1 {
		t.Fatalf("radio tx log = %d, want 1 (ShortIdAssign)", len(tx))
	}
	frame, err := protocol.DecodeFrame(tx[0])
	if err != nil {
		t.Fatalf("DecodeFrame error = %v", err)
	}
	deviceID, msgID, assignBody, err := protocol.ParseSlaveOrMasterPayload(frame.Payload)
	if err != nil {
		t.Fatalf("ParseSlaveOrMasterPayload error = %v", err)
	}
	if deviceID != 0x42 || msgID != protocol.MsgShortIdAssign {
		t.Fatalf("got device=%d msgID=0x%02x, want device=0x42 msgID=ShortIdAssign", deviceID, msgID)
	}
	assign, err := protocol.DecodeShortIdAssign(assignBody)
	if err != nil {
		t.Fatalf("DecodeShortIdAssign error = %v", err)
	}
	if assign.ShortID != d.ShortID {
		t.Errorf("assigned short_id %d does not match registry's %d", assign.ShortID, d.ShortID)
	}

	// Completing the handshake should mark the device Online and clear the
	// pending ShortIdAssign retry entry.
	confirmBody := []byte{0, assign.ShortID}
	DispatchSlaveMessage(state, 0x42, protocol.MsgShortIdConfirm, confirmBody)

	d, _ = state.Registry().Get(0x42)
	if !d.Online {
		t.Error("device should be Online after ShortIdConfirm with status=0")
	}
	if state.PendingCommandCount() != 0 {
		t.Errorf("pending commands = %d, want 0 after confirm", state.PendingCommandCount())
	}
}

func TestHandleAnnounceDeviceIDMismatchIsDropped(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	body := encodeAnnounce(0x99, 1, 0, 0)
	DispatchSlaveMessage(state, 0x42, protocol.MsgAnnounce, body)

	if _, ok := state.Registry().Get(0x42); ok {
		t.Error("envelope device_id should not be registered on body mismatch")
	}
	if _, ok := state.Registry().Get(0x99); ok {
		t.Error("body device_id should not be registered on envelope mismatch")
	}
	if len(radio.TxLog()) != 0 {
		t.Errorf("radio tx log = %d, want 0 on mismatch", len(radio.TxLog()))
	}
}

func TestHandleAnnounceReannounceDoesNotReassign(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	body := encodeAnnounce(0x1, 1, 0, 0)
	DispatchSlaveMessage(state, 0x1, protocol.MsgAnnounce, body)
	DispatchSlaveMessage(state, 0x1, protocol.MsgAnnounce, body)

	if len(radio.TxLog()) != 1 {
		t.Fatalf("radio tx log = %d, want 1 (no re-assignment once HasShortID)", len(radio.TxLog()))
	}
}

func TestHandleShortIdConfirmRejectionLeavesOffline(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, _ := newTestState(clock)

	body := encodeAnnounce(0x1, 1, 0, 0)
	DispatchSlaveMessage(state, 0x1, protocol.MsgAnnounce, body)

	d, _ := state.Registry().Get(0x1)
	DispatchSlaveMessage(state, 0x1, protocol.MsgShortIdConfirm, []byte{1, d.ShortID})

	d, _ = state.Registry().Get(0x1)
	if d.Online {
		t.Error("device should remain offline after a rejected ShortIdConfirm")
	}
	if state.PendingCommandCount() != 0 {
		t.Errorf("pending commands = %d, want 0 even on rejection (retry entry is cleared either way)", state.PendingCommandCount())
	}
}

func TestHandlePingRspCreditsSession(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, _ := newTestState(clock)

	state.RegisterPingSession(0x1, 0, 1, 100)
	clock.Advance(100)
	state.RunPingSessions()

	DispatchSlaveMessage(state, 0x1, protocol.MsgPingRsp, protocol.EncodePingReq(1, 0))

	clock.Advance(100)
	state.RunPingSessions()

	if state.PingSessionCount() != 0 {
		t.Fatalf("session should have completed after its single ping, count = %d", state.PingSessionCount())
	}
}

func TestHandleRstResponseCompletesFanOutAndRetry(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, backend := newTestState(clock)

	state.RegisterPendingBackendResponse(protocol.MsgRst, []uint32{0xA})
	state.EnqueuePendingCommand(0xA, protocol.MsgSlaveRst, protocol.EncodeSlaveRst(0, 0), protocol.DefaultMaxRetries)

	body := make([]byte, 4)
	body[0] = 0 // status ok
	DispatchSlaveMessage(state, 0xA, protocol.MsgRstResponse, body)

	if state.PendingCommandCount() != 0 {
		t.Errorf("pending commands = %d, want 0 after RstResponse", state.PendingCommandCount())
	}

	state.ProcessPendingBackendResponses()
	if state.PendingBackendResponseCount() != 0 {
		t.Errorf("pending backend responses = %d, want 0", state.PendingBackendResponseCount())
	}
	if len(backend.TxLog()) != 1 {
		t.Fatalf("backend tx log = %d, want 1", len(backend.TxLog()))
	}
}

// TestReplyOnlySlaveNeverAgesOut is a regression test: an enrolled slave
// that only ever answers pings and reset responses (never re-Announces)
// must still have its last-seen time refreshed by those replies, or
// CleanupExpired would destroy it and reclaim its short_id despite it
// being alive.
func TestReplyOnlySlaveNeverAgesOut(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, _ := newTestState(clock)

	DispatchSlaveMessage(state, 0x1, protocol.MsgAnnounce, encodeAnnounce(0x1, 1, 0, 0))
	d, _ := state.Registry().Get(0x1)
	DispatchSlaveMessage(state, 0x1, protocol.MsgShortIdConfirm, []byte{0, d.ShortID})

	d, _ = state.Registry().Get(0x1)
	if d.LastSeenMs != 0 {
		t.Fatalf("LastSeenMs after confirm at t=0 = %d, want 0", d.LastSeenMs)
	}

	clock.Advance(protocol.DeviceTimeoutMs - 1)
	DispatchSlaveMessage(state, 0x1, protocol.MsgPingRsp, protocol.EncodePingReq(1, 0))

	d, _ = state.Registry().Get(0x1)
	if d.LastSeenMs != protocol.DeviceTimeoutMs-1 {
		t.Fatalf("LastSeenMs after PingRsp = %d, want %d", d.LastSeenMs, protocol.DeviceTimeoutMs-1)
	}

	expired := state.Registry().CleanupExpired(clock.NowMs(), protocol.DeviceTimeoutMs)
	if len(expired) != 0 {
		t.Fatalf("device should not have expired after a PingRsp refreshed LastSeenMs, expired = %v", expired)
	}

	clock.Advance(protocol.DeviceTimeoutMs - 1)
	rstBody := make([]byte, 4)
	DispatchSlaveMessage(state, 0x1, protocol.MsgRstResponse, rstBody)

	d, _ = state.Registry().Get(0x1)
	wantLastSeen := int64(2*protocol.DeviceTimeoutMs - 2)
	if d.LastSeenMs != wantLastSeen {
		t.Fatalf("LastSeenMs after RstResponse = %d, want %d", d.LastSeenMs, wantLastSeen)
	}
}

func TestHandleLegacyCfgRspUsesActualMessageID(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, backend := newTestState(clock)

	state.RegisterPendingBackendResponse(protocol.MsgModeConfig, []uint32{0x1})
	DispatchSlaveMessage(state, 0x1, protocol.MsgResistanceCfgRsp, []byte{0})

	state.ProcessPendingBackendResponses()
	if state.PendingBackendResponseCount() != 0 {
		t.Fatalf("ModeConfig fan-out should complete on ResistanceCfgRsp, pending = %d", state.PendingBackendResponseCount())
	}
	if len(backend.TxLog()) != 1 {
		t.Fatalf("backend tx log = %d, want 1", len(backend.TxLog()))
	}
}

func TestDispatchSlaveMessageUnknownIDIsDropped(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, backend := newTestState(clock)

	err := DispatchSlaveMessage(state, 0x1, 0xFE, []byte{1, 2, 3})

	if !errors.Is(err, protocol.ErrUnknownMessageID) {
		t.Errorf("err = %v, want ErrUnknownMessageID", err)
	}
	if len(radio.TxLog()) != 0 || len(backend.TxLog()) != 0 {
		t.Error("unknown slave message id should produce no side effects")
	}
}
