package coordinator

import (
	"testing"

	"github.com/tdma-harness/mastercoord/internal/registry"
	"github.com/tdma-harness/mastercoord/protocol"
)

func TestTdmaCycleMsFormula(t *testing.T) {
	// T=10, I=10: STARTUP(100) + 10*10*10 + EXTRA(500) = 1600.
	if got := tdmaCycleMs(10, 10); got != 1600 {
		t.Errorf("tdmaCycleMs(10, 10) = %v, want 1600", got)
	}
	// T=0 collapses to STARTUP+EXTRA = 600, above the MIN_CYCLE_MS floor.
	if got := tdmaCycleMs(0, 10); got != int64(protocol.TDMAStartupDelayMs)+int64(protocol.TDMAExtraDelayMs) {
		t.Errorf("tdmaCycleMs(0, 10) = %v, want STARTUP+EXTRA", got)
	}
	// With these constants the floor is never reached: I=0 still yields
	// STARTUP+EXTRA = 600 > MIN_CYCLE_MS (500).
	if got := tdmaCycleMs(0, 0); got != int64(protocol.TDMAStartupDelayMs)+int64(protocol.TDMAExtraDelayMs) {
		t.Errorf("tdmaCycleMs(0,0) = %v, want STARTUP+EXTRA", got)
	}
}

func connectSlave(reg *registry.Registry, deviceID uint32, cfg registry.SlaveConfig) {
	reg.SetSlaveConfig(deviceID, cfg)
	reg.Touch(deviceID, registry.Version{}, 0)
	id, _ := reg.Assign(deviceID)
	reg.Confirm(deviceID, id)
}

func TestTdmaBroadcastsAtDerivedPeriod(t *testing.T) {
	// Start well past zero: lastSyncAtMs defaults to 0, and a monotonic
	// clock never legitimately starts there, so this models a coordinator
	// that has been running a while before RUN+timeSynced go true.
	clock := NewFakeClock(100000)
	state, radio, _ := newTestState(clock)

	connectSlave(state.registry, 1, registry.SlaveConfig{ConductionNum: 4})
	connectSlave(state.registry, 2, registry.SlaveConfig{ConductionNum: 6})

	// SetStatus(RUN) alone must arm the broadcaster (mirrors
	// startSlaveDataCollection); no separate MarkTimeSynced call needed.
	state.SetStatus(protocol.StatusRun)
	state.SetIntervalMs(10)

	state.RunTDMASync()
	if len(radio.TxLog()) != 1 {
		t.Fatalf("expected one sync broadcast immediately after SetStatus(RUN), got %d", len(radio.TxLog()))
	}

	cycle := tdmaCycleMs(10, 10)

	clock.Advance(cycle - 1)
	state.RunTDMASync()
	if len(radio.TxLog()) != 1 {
		t.Fatalf("should not rebroadcast before the cycle elapses, got %d frames", len(radio.TxLog()))
	}

	clock.Advance(1)
	state.RunTDMASync()
	if len(radio.TxLog()) != 2 {
		t.Fatalf("expected a second broadcast once the cycle elapses, got %d frames", len(radio.TxLog()))
	}

	frame, err := protocol.DecodeFrame(radio.TxLog()[0])
	if err != nil {
		t.Fatalf("DecodeFrame error = %v", err)
	}
	deviceID, msgID, body, err := protocol.ParseSlaveOrMasterPayload(frame.Payload)
	if err != nil {
		t.Fatalf("ParseSlaveOrMasterPayload error = %v", err)
	}
	if deviceID != protocol.BroadcastDeviceID {
		t.Errorf("deviceID = 0x%x, want broadcast", deviceID)
	}
	if msgID != protocol.MsgSync {
		t.Errorf("msgID = 0x%02x, want MsgSync", msgID)
	}
	sync, err := protocol.DecodeSync(body)
	if err != nil {
		t.Fatalf("DecodeSync error = %v", err)
	}
	if len(sync.Slots) != 2 {
		t.Fatalf("len(slots) = %v, want 2", len(sync.Slots))
	}
	if sync.Slots[0].DeviceID != 1 || sync.Slots[0].TimeSlot != 0 || sync.Slots[0].TestCount != 4 {
		t.Errorf("slot[0] = %+v, want {device=1 slot=0 count=4}", sync.Slots[0])
	}
	if sync.Slots[1].DeviceID != 2 || sync.Slots[1].TimeSlot != 1 || sync.Slots[1].TestCount != 6 {
		t.Errorf("slot[1] = %+v, want {device=2 slot=1 count=6}", sync.Slots[1])
	}
}

func TestTdmaSkipsWithNoConnectedSlaves(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	state.SetStatus(protocol.StatusRun)

	state.RunTDMASync()
	if len(radio.TxLog()) != 0 {
		t.Fatalf("expected no broadcast with no connected slaves, got %d", len(radio.TxLog()))
	}
}

func TestTdmaSkipsWhenNotRunning(t *testing.T) {
	clock := NewFakeClock(0)
	state, radio, _ := newTestState(clock)

	connectSlave(state.registry, 1, registry.SlaveConfig{ConductionNum: 4})
	state.MarkTimeSynced()

	state.RunTDMASync()
	if len(radio.TxLog()) != 0 {
		t.Fatalf("expected no broadcast while status != RUN, got %d", len(radio.TxLog()))
	}
}

// TestCtrlRunArmsTdmaBroadcaster is a regression test for the production
// path into RunTDMASync: a backend Ctrl(RUN) request, dispatched the same
// way BackendRx would deliver it, must be enough on its own to start Sync
// broadcasts once a slave is connected — no test-only hook required.
func TestCtrlRunArmsTdmaBroadcaster(t *testing.T) {
	// Start past zero for the same reason as TestTdmaBroadcastsAtDerivedPeriod:
	// lastSyncAtMs defaults to 0.
	clock := NewFakeClock(100000)
	state, radio, _ := newTestState(clock)

	connectSlave(state.registry, 1, registry.SlaveConfig{ConductionNum: 4})

	DispatchBackendMessage(state, protocol.MsgCtrl, []byte{protocol.StatusRun})

	state.RunTDMASync()
	if len(radio.TxLog()) != 1 {
		t.Fatalf("expected Ctrl(RUN) alone to arm the broadcaster, got %d frames", len(radio.TxLog()))
	}
}
