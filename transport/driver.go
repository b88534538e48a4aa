// Package transport wraps the coordinator's two physical links: the UWB
// radio (to slaves) and UDP (to the backend). Both collaborators are
// treated as black boxes per the system's scope — this package only
// defines the interfaces the coordinator drives them through, plus the
// RadioGate back-pressure wrapper and a net.UDPConn-backed UDPDriver.
package transport

import "time"

// RadioDriver is the interface the coordinator uses to talk to the UWB
// radio PHY. The PHY itself (channel, addressing, modulation) is out of
// scope; this is the blocking send / timed receive contract it exposes.
type RadioDriver interface {
	Send(frame []byte) error
	Receive(timeout time.Duration) ([]byte, error)
}

// UDPDriver is the interface the coordinator uses to talk to the backend
// over UDP.
type UDPDriver interface {
	SendTo(datagram []byte) error
	Receive(timeout time.Duration) ([]byte, error)
}
