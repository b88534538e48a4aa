package coordinator

import (
	"testing"

	"github.com/tdma-harness/mastercoord/protocol"
)

func TestPingSessionSendsUpToTotal(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	state.RegisterPingSession(0xC, 0, 3, 100)

	for i := 0; i < 3; i++ {
		clock.Advance(100)
		state.RunPingSessions()
	}

	tx := radio.TxLog()
	if len(tx) != 3 {
		t.Fatalf("radio tx log = %d, want 3", len(tx))
	}
	for i, raw := range tx {
		frame, err := protocol.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("DecodeFrame error = %v", err)
		}
		_, msgID, body, err := protocol.ParseSlaveOrMasterPayload(frame.Payload)
		if err != nil {
			t.Fatalf("ParseSlaveOrMasterPayload error = %v", err)
		}
		if msgID != protocol.MsgPingReq {
			t.Errorf("frame %d msgID = 0x%02x, want PingReq", i, msgID)
		}
		req, err := protocol.DecodePingReq(body)
		if err != nil {
			t.Fatalf("DecodePingReq error = %v", err)
		}
		if int(req.Seq) != i+1 {
			t.Errorf("frame %d seq = %v, want %v", i, req.Seq, i+1)
		}
	}
}

func TestPingSessionCompletesAndReportsSucceeded(t *testing.T) {
	clock := NewFakeClock(0)
	state, _, backend := newTestState(clock)

	state.RegisterPingSession(0xC, 0, 3, 100)

	for i := 0; i < 3; i++ {
		clock.Advance(100)
		state.RunPingSessions()
	}
	state.CompletePingRsp(0xC)
	state.CompletePingRsp(0xC)

	if state.PingSessionCount() != 1 {
		t.Fatal("session should still be alive until its final RunPingSessions call")
	}

	clock.Advance(100)
	state.RunPingSessions()

	if state.PingSessionCount() != 0 {
		t.Fatalf("session count after completion = %d, want 0", state.PingSessionCount())
	}

	tx := backend.TxLog()
	if len(tx) != 1 {
		t.Fatalf("backend tx log = %d, want 1", len(tx))
	}
	frame, err := protocol.DecodeFrame(tx[0])
	if err != nil {
		t.Fatalf("DecodeFrame error = %v", err)
	}
	_, body, err := protocol.ParseBackendOrMasterPayload(frame.Payload)
	if err != nil {
		t.Fatalf("ParseBackendOrMasterPayload error = %v", err)
	}
	if len(body) < 9 {
		t.Fatalf("PingCtrlRsp body too short: %v", body)
	}
	succeeded := uint16(body[3]) | uint16(body[4])<<8
	if succeeded != 2 {
		t.Errorf("succeeded = %v, want 2", succeeded)
	}
}
