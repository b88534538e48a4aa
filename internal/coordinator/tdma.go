package coordinator

import "github.com/tdma-harness/mastercoord/protocol"

// tdmaCycleMs computes the Sync broadcast period from §4.6. It
// deliberately keeps the I^2 term the original source derives from
// totalTimeSlots = totalConductionNum*intervalMs, totalTimeSlots*intervalMs
// — preserved for wire compatibility per the open question in §9, not
// corrected here.
func tdmaCycleMs(totalConductionNum int, intervalMs int) int64 {
	cycle := int64(protocol.TDMAStartupDelayMs) + int64(totalConductionNum)*int64(intervalMs)*int64(intervalMs) + int64(protocol.TDMAExtraDelayMs)
	if cycle < int64(protocol.TDMAMinCycleMs) {
		return int64(protocol.TDMAMinCycleMs)
	}
	return cycle
}

// testCountForMode resolves the test_count field of one slave's SyncSlot,
// per §4.6: the slave's conduction/resistance count for those modes, or
// its clip_mode byte used as a count for CLIP — semantically dubious but
// intentional in the source (§9), preserved here.
func testCountForMode(mode byte, cfg struct {
	ConductionNum byte
	ResistanceNum byte
	ClipMode      byte
}) uint16 {
	switch mode {
	case protocol.ModeResistance:
		return uint16(cfg.ResistanceNum)
	case protocol.ModeClip:
		return uint16(cfg.ClipMode)
	default:
		return uint16(cfg.ConductionNum)
	}
}

// MarkTimeSynced records that initial time sync has occurred, a
// precondition for the Sync broadcaster (§4.6).
func (s *CoordinatorState) MarkTimeSynced() { s.markTimeSynced() }

// RunTDMASync is Tick's fourth step (§5's ordering): broadcast a Sync
// message to every slave once system_status=RUN, time sync has occurred,
// at least one connected configured slave exists, and the derived cycle
// period has elapsed since the last broadcast.
func (s *CoordinatorState) RunTDMASync() {
	if s.Status() != protocol.StatusRun || !s.isTimeSynced() {
		return
	}

	connected := s.registry.ConnectedSlavesInConfigOrder()
	if len(connected) == 0 {
		return
	}

	mode := s.Mode()
	intervalMs := s.IntervalMs()

	totalConduction := 0
	for _, d := range connected {
		totalConduction += int(d.Config.ConductionNum)
	}

	cycle := tdmaCycleMs(totalConduction, int(intervalMs))
	now := s.clock.NowMs()
	if now-s.lastSyncAt() < cycle {
		return
	}

	slots := make([]protocol.SyncSlot, len(connected))
	for i, d := range connected {
		slots[i] = protocol.SyncSlot{
			DeviceID: d.DeviceID,
			TimeSlot: byte(i),
			TestCount: testCountForMode(mode, struct {
				ConductionNum byte
				ResistanceNum byte
				ClipMode      byte
			}{d.Config.ConductionNum, d.Config.ResistanceNum, d.Config.ClipMode}),
		}
	}

	currentTimeUs := s.clock.NowUs()
	body := protocol.EncodeSync(protocol.SyncMsg{
		Mode:          mode,
		IntervalMs:    intervalMs,
		CurrentTimeUs: currentTimeUs,
		StartTimeUs:   currentTimeUs + uint64(protocol.TDMAStartupDelayMs)*1000,
		Slots:         slots,
	})

	if err := s.SendToSlave(protocol.BroadcastDeviceID, protocol.MsgSync, body); err != nil {
		logf("TDMA", "sync broadcast failed err=%v", err)
		return
	}

	s.setLastSyncAt(now)
	for _, d := range connected {
		if d.ResetPend {
			s.registry.SetResetPending(d.DeviceID, false)
		}
	}
}
