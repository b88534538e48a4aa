package coordinator

import (
	"github.com/tdma-harness/mastercoord/internal/registry"
	"github.com/tdma-harness/mastercoord/protocol"
)

type slaveHandler func(ops CoordinatorOps, deviceID uint32, messageID byte, body []byte)

var slaveHandlers [256]slaveHandler

func init() {
	slaveHandlers[protocol.MsgAnnounce] = handleAnnounce
	slaveHandlers[protocol.MsgShortIdConfirm] = handleShortIdConfirm
	slaveHandlers[protocol.MsgPingRsp] = handlePingRsp
	slaveHandlers[protocol.MsgRstResponse] = handleRstResponse
	slaveHandlers[protocol.MsgConductionCfgRsp] = handleLegacyCfgRsp
	slaveHandlers[protocol.MsgResistanceCfgRsp] = handleLegacyCfgRsp
	slaveHandlers[protocol.MsgClipCfgRsp] = handleLegacyCfgRsp
}

// DispatchSlaveMessage routes a decoded SLAVE->MASTER message to its
// handler, keyed by message_id exactly as DispatchBackendMessage is.
func DispatchSlaveMessage(ops CoordinatorOps, deviceID uint32, messageID byte, body []byte) error {
	h := slaveHandlers[messageID]
	if h == nil {
		logf("Slave", "unknown message id 0x%02x from device=%d, dropping", messageID, deviceID)
		return protocol.ErrUnknownMessageID
	}
	h(ops, deviceID, messageID, body)
	return nil
}

// handleAnnounce creates or refreshes a device record and, if it has no
// short_id yet, attempts to allocate one and sends ShortIdAssign. A
// refusal (pool exhausted or too many announces) leaves the device "seen"
// per §7 — it may retry on the next Announce until aged out.
func handleAnnounce(ops CoordinatorOps, deviceID uint32, _ byte, body []byte) {
	msg, err := protocol.DecodeAnnounce(body)
	if err != nil {
		logf("Slave", "Announce decode error: %v", err)
		return
	}
	// deviceID on the wire envelope and msg.DeviceID inside the body both
	// name the announcing slave; they must agree for a well-formed packet.
	if msg.DeviceID != deviceID {
		logf("Slave", "Announce device_id mismatch: envelope=%d body=%d", deviceID, msg.DeviceID)
		return
	}

	d := ops.Registry().Touch(deviceID, registry.Version{Major: msg.Major, Minor: msg.Minor, Patch: msg.Patch}, ops.Clock().NowMs())
	if d.HasShortID {
		return
	}

	shortID, err := ops.Registry().Assign(deviceID)
	if err != nil {
		logf("Slave", "short_id assignment refused for device=%d: %v", deviceID, err)
		return
	}
	if err := ops.EnqueuePendingCommand(deviceID, protocol.MsgShortIdAssign, protocol.EncodeShortIdAssign(shortID), protocol.DefaultMaxRetries); err != nil {
		logf("Slave", "ShortIdAssign send failed for device=%d: %v", deviceID, err)
	}
}

// handleShortIdConfirm completes the enrollment handshake §8 scenario 1.
func handleShortIdConfirm(ops CoordinatorOps, deviceID uint32, _ byte, body []byte) {
	msg, err := protocol.DecodeShortIdConfirm(body)
	if err != nil {
		logf("Slave", "ShortIdConfirm decode error: %v", err)
		return
	}
	ops.RemovePendingCommand(deviceID, protocol.MsgShortIdAssign)
	if msg.Status != 0 {
		logf("Slave", "device=%d rejected short_id=%d", deviceID, msg.ShortID)
		return
	}
	if err := ops.Registry().Confirm(deviceID, msg.ShortID); err != nil {
		logf("Slave", "Confirm failed for device=%d: %v", deviceID, err)
		return
	}
	ops.Registry().TouchPresence(deviceID, ops.Clock().NowMs())
}

// handlePingRsp credits the originating ping session, per §4.7, and
// refreshes the device's last-seen time: a slave that only ever answers
// pings would otherwise age out and have its short_id reclaimed.
func handlePingRsp(ops CoordinatorOps, deviceID uint32, _ byte, body []byte) {
	if _, err := protocol.DecodePingRsp(body); err != nil {
		logf("Slave", "PingRsp decode error: %v", err)
		return
	}
	ops.CompletePingRsp(deviceID)
	ops.Registry().TouchPresence(deviceID, ops.Clock().NowMs())
}

// handleRstResponse clears the retry entry and completes the backend
// fan-out, per §8 scenarios 3/4, and refreshes the device's last-seen
// time the same way the originating reset response does upstream.
func handleRstResponse(ops CoordinatorOps, deviceID uint32, _ byte, body []byte) {
	msg, err := protocol.DecodeRstResponse(body)
	if err != nil {
		logf("Slave", "RstResponse decode error: %v", err)
		return
	}
	ops.RemovePendingCommand(deviceID, protocol.MsgSlaveRst)
	ops.CompleteBackendResponseSlave(deviceID, protocol.MsgRstResponse, msg.Status)
	ops.Registry().TouchPresence(deviceID, ops.Clock().NowMs())
}

// handleLegacyCfgRsp completes a ModeConfig fan-out for slaves still
// running firmware that answers via the deprecated per-mode Cfg-Rsp
// messages, per §4.4's matching table and §9's legacy-interop note.
func handleLegacyCfgRsp(ops CoordinatorOps, deviceID uint32, messageID byte, body []byte) {
	msg, err := protocol.DecodeLegacyCfgRsp(body)
	if err != nil {
		logf("Slave", "legacy CfgRsp decode error: %v", err)
		return
	}
	ops.CompleteBackendResponseSlave(deviceID, messageID, msg.Status)
}
