package coordinator

import (
	"github.com/tdma-harness/mastercoord/internal/registry"
	"github.com/tdma-harness/mastercoord/protocol"
)

// backendHandler is one BACKEND->MASTER message's two-phase handler, per
// §4.2: process answers locally when possible, execute mutates state and
// schedules outbound work. Unlike the original's RTTI dispatch, each
// handler here is a plain function keyed by message_id in a 256-entry
// table (backendHandlers), no singleton objects involved (§9).
type backendHandler func(ops CoordinatorOps, body []byte)

var backendHandlers [256]backendHandler

func init() {
	backendHandlers[protocol.MsgSlaveConfig] = handleSlaveConfig
	backendHandlers[protocol.MsgModeConfig] = handleModeConfig
	backendHandlers[protocol.MsgRst] = handleRst
	backendHandlers[protocol.MsgCtrl] = handleCtrl
	backendHandlers[protocol.MsgPingCtrl] = handlePingCtrl
	backendHandlers[protocol.MsgIntervalConfig] = handleIntervalConfig
	backendHandlers[protocol.MsgDeviceListReq] = handleDeviceListReq
	backendHandlers[protocol.MsgClearDeviceList] = handleClearDeviceList
}

// DispatchBackendMessage routes a decoded BACKEND->MASTER message to its
// handler. An unknown ID is logged and dropped, never fatal, per §4.2; the
// caller gets ErrUnknownMessageID back so it can count/alert on drops
// without DispatchBackendMessage itself deciding how that's surfaced.
func DispatchBackendMessage(ops CoordinatorOps, messageID byte, body []byte) error {
	h := backendHandlers[messageID]
	if h == nil {
		logf("Backend", "unknown message id 0x%02x, dropping", messageID)
		return protocol.ErrUnknownMessageID
	}
	h(ops, body)
	return nil
}

func deviceIDs(records []registry.DeviceRecord) []uint32 {
	ids := make([]uint32, len(records))
	for i, d := range records {
		ids[i] = d.DeviceID
	}
	return ids
}

// handleSlaveConfig answers locally: no slave confirmation is required to
// record the backend's declared per-slave configuration. The prior
// configuration is cleared first so config_order always reflects only this
// message's slave set (§3), never a stale union with an earlier one.
func handleSlaveConfig(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodeSlaveConfig(body)
	if err != nil {
		logf("Backend", "SlaveConfig decode error: %v", err)
		return
	}
	ops.Registry().ClearSlaveConfigs()
	for _, e := range msg.Slaves {
		ops.Registry().SetSlaveConfig(e.DeviceID, registry.SlaveConfig{
			ConductionNum: e.ConductionNum,
			ResistanceNum: e.ResistanceNum,
			ClipMode:      e.ClipMode,
			ClipStatus:    e.ClipStatus,
		})
	}
	ops.SendToBackend(protocol.RspSlaveConfig, protocol.EncodeSlaveConfigRsp(0, msg.Slaves))
}

// handleModeConfig applies the new detection mode immediately (it takes
// effect via the next Sync broadcast) and registers a fan-out entry keyed
// to the legacy per-mode Cfg-Rsp IDs, per §4.4's matching table. With no
// legacy slave in the loop this will generally resolve by timeout; see
// DESIGN.md for the open-question resolution.
func handleModeConfig(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodeModeConfig(body)
	if err != nil {
		logf("Backend", "ModeConfig decode error: %v", err)
		return
	}
	ops.SetMode(msg.Mode)

	targets := deviceIDs(ops.Registry().ConnectedSlavesInConfigOrder())
	if len(targets) == 0 {
		ops.SendToBackend(protocol.RspModeConfig, protocol.EncodeModeConfigRsp(0, msg.Mode))
		return
	}
	entry := ops.RegisterPendingBackendResponse(protocol.MsgModeConfig, targets)
	entry.Mode = msg.Mode
}

// handleRst forwards an explicit reset command to each named slave and
// registers the fan-out entry that §4.4 completes on RstResponse.
func handleRst(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodeRst(body)
	if err != nil {
		logf("Backend", "Rst decode error: %v", err)
		return
	}
	if len(msg.Slaves) == 0 {
		ops.SendToBackend(protocol.RspRst, protocol.EncodeRstRsp(0, nil))
		return
	}

	targets := make([]uint32, len(msg.Slaves))
	for i, e := range msg.Slaves {
		targets[i] = e.DeviceID
		body := protocol.EncodeSlaveRst(e.Lock, e.ClipStatus)
		if err := ops.EnqueuePendingCommand(e.DeviceID, protocol.MsgSlaveRst, body, protocol.DefaultMaxRetries); err != nil {
			logf("Backend", "Rst send failed target=%d err=%v", e.DeviceID, err)
		}
	}
	entry := ops.RegisterPendingBackendResponse(protocol.MsgRst, targets)
	entry.RstSlaves = msg.Slaves
}

// handleCtrl answers locally: run/stop/reset takes effect synchronously.
func handleCtrl(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodeCtrl(body)
	if err != nil {
		logf("Backend", "Ctrl decode error: %v", err)
		return
	}
	ops.SetStatus(msg.RunningStatus)
	ops.SendToBackend(protocol.RspCtrl, protocol.EncodeCtrlRsp(0, msg.RunningStatus))
}

// handlePingCtrl registers a ping session; the eventual summary response
// is emitted by the Tick loop's ping-session step, per §4.7.
func handlePingCtrl(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodePingCtrl(body)
	if err != nil {
		logf("Backend", "PingCtrl decode error: %v", err)
		return
	}
	ops.RegisterPingSession(msg.Dest, msg.Mode, msg.Count, msg.Interval)
}

// handleIntervalConfig answers locally: the new interval takes effect on
// the next Sync broadcast.
func handleIntervalConfig(ops CoordinatorOps, body []byte) {
	msg, err := protocol.DecodeIntervalConfig(body)
	if err != nil {
		logf("Backend", "IntervalConfig decode error: %v", err)
		return
	}
	ops.SetIntervalMs(msg.IntervalMs)
	ops.SendToBackend(protocol.RspIntervalConfig, protocol.EncodeIntervalConfigRsp(0, msg.IntervalMs))
}

// handleDeviceListReq answers locally from the registry snapshot.
func handleDeviceListReq(ops CoordinatorOps, body []byte) {
	if _, err := protocol.DecodeDeviceListReq(body); err != nil {
		logf("Backend", "DeviceListReq decode error: %v", err)
		return
	}

	all := ops.Registry().All()
	entries := make([]protocol.DeviceListEntry, len(all))
	for i, d := range all {
		entries[i] = protocol.DeviceListEntry{
			DeviceID:     d.DeviceID,
			ShortID:      d.ShortID,
			Online:       d.Online,
			VersionMajor: d.Version.Major,
			VersionMinor: d.Version.Minor,
			VersionPatch: d.Version.Patch,
		}
	}
	ops.SendToBackend(protocol.RspDeviceList, protocol.EncodeDeviceListRsp(entries))
}

// handleClearDeviceList answers locally: the registry and short-id pool
// reset immediately.
func handleClearDeviceList(ops CoordinatorOps, body []byte) {
	ops.Registry().Clear()
	ops.SendToBackend(protocol.RspClearDeviceList, protocol.EncodeClearDeviceListRsp(0))
}
