// Package coordinator implements the master's in-node orchestration
// engine: device enrollment, the TDMA sync broadcaster, backend-response
// correlation, the retry engine, ping sessions, and the three-loop
// concurrency model that drives them, all hung off one CoordinatorState.
package coordinator

import (
	"log"
	"sync"

	"github.com/tdma-harness/mastercoord/internal/registry"
	"github.com/tdma-harness/mastercoord/protocol"
	"github.com/tdma-harness/mastercoord/transport"
)

// CoordinatorState is the single owning value for everything the three
// loops share. It is logically partitioned into four lock domains
// (pending_commands, pending_backend_responses, legacy time_sync_requests,
// control_requests) plus the device registry's own internal mutex, rather
// than one coarse lock, so Tick's per-tick work never blocks behind a
// RadioRx/BackendRx Send.
type CoordinatorState struct {
	registry *registry.Registry
	clock    Clock

	radio   transport.RadioDriver
	backend transport.UDPDriver
	mtu     int

	radioReasm   *protocol.Reassembler
	backendReasm *protocol.Reassembler

	// pending_commands domain.
	pcMu            sync.Mutex
	pendingCommands map[pendingKey]*PendingCommand

	// pending_backend_responses domain. order preserves FIFO registration
	// per §5's "backend responses ... arrive in registration order".
	pbrMu    sync.Mutex
	pbr      map[string]*PendingBackendResponse
	pbrOrder []string

	// time_sync_requests domain (legacy). Nothing in this implementation
	// emits the deprecated per-slave time-sync sequence (Sync carries time
	// now), and nothing reads or writes this map after construction.
	tsMu               sync.Mutex
	legacyTimeSyncSeen map[uint32]int64

	// control_requests domain. Ctrl is answered synchronously today (no
	// slave fan-out), but the lock domain is kept distinct from cfgMu per
	// §5 so a future fan-out-based Ctrl doesn't need a relock restructure.
	crMu           sync.Mutex
	lastControlReq byte

	// ping sessions, walked once per Tick.
	pingMu   sync.Mutex
	sessions []*PingSession

	// run configuration.
	cfgMu           sync.Mutex
	mode            byte
	intervalMs      byte
	status          byte
	lastSyncAtMs    int64
	timeSynced      bool
	lastCleanupAtMs int64

	reentrancy int32
}

// Config bundles the construction-time collaborators for NewCoordinatorState.
type Config struct {
	Registry *registry.Registry
	Clock    Clock
	Radio    transport.RadioDriver
	Backend  transport.UDPDriver
	MTU      int
}

// NewCoordinatorState wires one coordinator's worth of state together.
func NewCoordinatorState(cfg Config) *CoordinatorState {
	mtu := cfg.MTU
	if mtu == 0 {
		mtu = protocol.DefaultMTU
	}
	return &CoordinatorState{
		registry:           cfg.Registry,
		clock:              cfg.Clock,
		radio:              cfg.Radio,
		backend:            cfg.Backend,
		mtu:                mtu,
		radioReasm:         protocol.NewReassembler(),
		backendReasm:       protocol.NewReassembler(),
		pendingCommands:    make(map[pendingKey]*PendingCommand),
		pbr:                make(map[string]*PendingBackendResponse),
		legacyTimeSyncSeen: make(map[uint32]int64),
		intervalMs:         protocol.DefaultIntervalMs,
	}
}

func (s *CoordinatorState) Registry() *registry.Registry { return s.registry }
func (s *CoordinatorState) Clock() Clock                 { return s.clock }

// Mode, IntervalMs, Status are read by the TDMA broadcaster and written by
// backend handlers; cfgMu makes both safe across Tick/BackendRx.

func (s *CoordinatorState) Mode() byte {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.mode
}

func (s *CoordinatorState) SetMode(mode byte) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.mode = mode
}

func (s *CoordinatorState) IntervalMs() byte {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.intervalMs
}

func (s *CoordinatorState) SetIntervalMs(ms byte) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.intervalMs = ms
}

func (s *CoordinatorState) Status() byte {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.status
}

// SetStatus applies a Ctrl(running_status) request. STOP clears the retry
// queue per §5; RESET flags every configured slave for reset on the next
// Sync broadcast.
func (s *CoordinatorState) SetStatus(status byte) {
	s.cfgMu.Lock()
	s.status = status
	s.cfgMu.Unlock()

	switch status {
	case protocol.StatusRun:
		// Mirrors startSlaveDataCollection: arm the Tick loop's TDMA
		// broadcaster. RunTDMASync still requires a connected configured
		// slave on every tick before it actually broadcasts (§3's
		// COLLECTING transition), so marking time-synced here is safe even
		// if none is connected yet.
		s.markTimeSynced()
	case protocol.StatusStop:
		s.ClearPendingCommands()
	case protocol.StatusReset:
		for _, d := range s.registry.All() {
			if d.HasConfig {
				s.registry.SetResetPending(d.DeviceID, true)
			}
		}
	}
}

func (s *CoordinatorState) markTimeSynced() {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.timeSynced = true
}

func (s *CoordinatorState) isTimeSynced() bool {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.timeSynced
}

func (s *CoordinatorState) lastSyncAt() int64 {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.lastSyncAtMs
}

func (s *CoordinatorState) setLastSyncAt(ms int64) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.lastSyncAtMs = ms
}

// SendToSlave fragments and transmits a MASTER->SLAVE message. Per §4.8's
// fragmentation send policy, a failed fragment aborts the remaining ones.
func (s *CoordinatorState) SendToSlave(deviceID uint32, messageID byte, body []byte) error {
	frames := protocol.PackMasterToSlave(deviceID, messageID, body, s.mtu)
	for _, f := range frames {
		if err := s.radio.Send(protocol.EncodeFrame(f)); err != nil {
			return err
		}
	}
	return nil
}

// SendToBackend fragments and transmits a MASTER->BACKEND message.
func (s *CoordinatorState) SendToBackend(messageID byte, body []byte) error {
	frames := protocol.PackMasterToBackend(messageID, body, s.mtu)
	for _, f := range frames {
		if err := s.backend.SendTo(protocol.EncodeFrame(f)); err != nil {
			return err
		}
	}
	return nil
}

// ForwardSlaveToBackend passes a reassembled SLAVE->BACKEND payload straight
// through to the backend, per §2's RadioRx responsibility; the coordinator
// never parses its body. The payload is re-fragmented to the coordinator's
// configured MTU (the same one every outbound send uses) rather than the
// original radio frames being copied through.
func (s *CoordinatorState) ForwardSlaveToBackend(payload []byte) error {
	for _, f := range protocol.FragmentPacket(protocol.ClassSlaveToBackend, payload, s.mtu) {
		if err := s.backend.SendTo(protocol.EncodeFrame(f)); err != nil {
			return err
		}
	}
	return nil
}

func logf(component, format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{component}, args...)...)
}
