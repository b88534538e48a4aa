package coordinator

import "github.com/tdma-harness/mastercoord/internal/registry"

// CoordinatorOps is the capability surface handlers are given instead of a
// pointer back to the whole server (§9's "cyclic ownership" design note).
// *CoordinatorState implements it; tests can substitute a narrower fake.
type CoordinatorOps interface {
	Registry() *registry.Registry
	Clock() Clock

	SendToSlave(deviceID uint32, messageID byte, body []byte) error
	SendToBackend(messageID byte, body []byte) error

	EnqueuePendingCommand(targetID uint32, messageID byte, body []byte, maxRetries int) error
	RemovePendingCommand(targetID uint32, messageID byte)
	ClearPendingCommands()

	RegisterPendingBackendResponse(requestClass byte, targets []uint32) *PendingBackendResponse
	CompleteBackendResponseSlave(deviceID uint32, replyMessageID byte, status byte)

	RegisterPingSession(target uint32, mode byte, total, intervalMs uint16)
	CompletePingRsp(target uint32)

	Mode() byte
	SetMode(byte)
	IntervalMs() byte
	SetIntervalMs(byte)
	Status() byte
	SetStatus(byte)
	MarkTimeSynced()
}

var _ CoordinatorOps = (*CoordinatorState)(nil)
