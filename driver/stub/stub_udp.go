package stub

import (
	"sync"
	"time"

	"github.com/tdma-harness/mastercoord/transport"
)

// UDPDriver is a mock transport.UDPDriver for tests, standing in for the
// backend socket the same way Driver stands in for the radio.
type UDPDriver struct {
	mu    sync.Mutex
	rxBuf ringBuffer
	txLog [][]byte
}

// NewUDP returns a fresh UDPDriver with empty tx/rx queues.
func NewUDP() *UDPDriver { return &UDPDriver{} }

func (d *UDPDriver) SendTo(datagram []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	d.txLog = append(d.txLog, cp)
	return nil
}

func (d *UDPDriver) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		dg, ok := d.rxBuf.pop()
		d.mu.Unlock()
		if ok {
			return dg, nil
		}
		if time.Now().After(deadline) {
			return nil, transport.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// InjectReceive queues a datagram to be returned by the next Receive call.
func (d *UDPDriver) InjectReceive(datagram []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	d.rxBuf.push(cp)
}

// TxLog returns a copy of every datagram handed to SendTo so far.
func (d *UDPDriver) TxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.txLog))
	for i, f := range d.txLog {
		cp := make([]byte, len(f))
		copy(cp, f)
		out[i] = cp
	}
	return out
}
