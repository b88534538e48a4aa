package transport

import (
	"net"
	"strconv"
	"time"
)

// UDPSocket is a UDPDriver backed by a real net.UDPConn: one socket bound
// locally, sending datagrams to and reading them from a fixed backend
// address. The read deadline / timeout pattern follows the single UDP
// consumer in the retrieved example pack (a MAVLink GCS bridge reading a
// vehicle's UDP stream with SetReadDeadline in a loop).
type UDPSocket struct {
	conn    *net.UDPConn
	backend *net.UDPAddr
}

// NewUDPSocket binds a local UDP socket and targets the given backend
// host:port for all outbound datagrams.
func NewUDPSocket(localPort int, backendHost string, backendPort int) (*UDPSocket, error) {
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: localPort}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(backendHost, strconv.Itoa(backendPort)))
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &UDPSocket{conn: conn, backend: raddr}, nil
}

func (s *UDPSocket) SendTo(datagram []byte) error {
	_, err := s.conn.WriteToUDP(datagram, s.backend)
	return err
}

func (s *UDPSocket) Receive(timeout time.Duration) ([]byte, error) {
	buf := make([]byte, 512)
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

func (s *UDPSocket) Close() error {
	return s.conn.Close()
}
