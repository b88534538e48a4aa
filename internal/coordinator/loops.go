package coordinator

import (
	"time"

	"github.com/tdma-harness/mastercoord/protocol"
)

// tickPeriod is the Tick loop's nominal period (§2: "runs periodically
// (≈1 ms)").
const tickPeriod = time.Millisecond

// radioReceiveTimeout and backendReceiveTimeout bound each Rx loop's
// blocking receive so Stop() is observed promptly even with no traffic.
const (
	radioReceiveTimeout   = 50 * time.Millisecond
	backendReceiveTimeout = 50 * time.Millisecond
)

// RunRadioRxLoop drains frames from the radio, reassembles them, and
// dispatches SLAVE->MASTER messages; SLAVE->BACKEND frames pass straight
// through to UDP without decoding, per §2.
func (s *CoordinatorState) RunRadioRxLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, err := s.radio.Receive(radioReceiveTimeout)
		if err != nil {
			continue
		}
		s.radioReasm.ProcessReceived(frame)

		for {
			packet, ok := s.radioReasm.NextCompletePacket()
			if !ok {
				break
			}
			s.handleRadioPacket(packet)
		}
	}
}

func (s *CoordinatorState) handleRadioPacket(packet protocol.CompletePacket) {
	switch packet.Class {
	case protocol.ClassSlaveToMaster:
		deviceID, messageID, body, err := protocol.ParseSlaveOrMasterPayload(packet.Payload)
		if err != nil {
			logf("RadioRx", "parse error: %v", err)
			return
		}
		_ = DispatchSlaveMessage(s, deviceID, messageID, body)
	case protocol.ClassSlaveToBackend:
		if err := s.ForwardSlaveToBackend(packet.Payload); err != nil {
			logf("RadioRx", "forward to backend failed: %v", err)
		}
	default:
		// Any other class arriving over the radio transport is out of
		// contract; ignore it to avoid loopback.
	}
}

// RunBackendRxLoop drains datagrams from UDP, reassembles them, and
// dispatches BACKEND->MASTER messages. Any other packet class is dropped
// to avoid loopback, per §2.
func (s *CoordinatorState) RunBackendRxLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		datagram, err := s.backend.Receive(backendReceiveTimeout)
		if err != nil {
			continue
		}
		s.backendReasm.ProcessReceived(datagram)

		for {
			packet, ok := s.backendReasm.NextCompletePacket()
			if !ok {
				break
			}
			if packet.Class != protocol.ClassBackendToMaster {
				continue
			}
			messageID, body, err := protocol.ParseBackendOrMasterPayload(packet.Payload)
			if err != nil {
				logf("BackendRx", "parse error: %v", err)
				continue
			}
			_ = DispatchBackendMessage(s, messageID, body)
		}
	}
}

// RunTickLoop runs the higher-priority periodic step at tickPeriod,
// executing the six sub-steps in the fixed order mandated by §5: retries,
// ping sessions, backend-response correlation, TDMA sync, presence aging,
// health check.
func (s *CoordinatorState) RunTickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one iteration of the Tick loop's ordered sub-steps. Exposed
// directly so tests can drive it deterministically without a real ticker.
func (s *CoordinatorState) Tick() {
	s.RunRetries()
	s.RunPingSessions()
	s.ProcessPendingBackendResponses()
	s.RunTDMASync()
	s.RunPresenceAging()
	s.RunHealthCheck()
}
