// Package stub provides an in-memory RadioDriver for host-side testing,
// standing in for the real UWB radio. It mirrors the teacher's own
// host-testing stub: a small mutex-guarded ring buffer feeding Receive.
package stub

import (
	"sync"
	"time"

	"github.com/tdma-harness/mastercoord/transport"
)

// Driver is a mock transport.RadioDriver for tests.
type Driver struct {
	mu    sync.Mutex
	rxBuf ringBuffer
	txLog [][]byte

	failNextSend bool
}

// New returns a fresh Driver with empty tx/rx queues.
func New() *Driver { return &Driver{} }

func (d *Driver) Send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNextSend {
		d.failNextSend = false
		return transport.ErrSuppressed
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.txLog = append(d.txLog, cp)
	return nil
}

func (d *Driver) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		frame, ok := d.rxBuf.pop()
		d.mu.Unlock()
		if ok {
			return frame, nil
		}
		if time.Now().After(deadline) {
			return nil, transport.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// InjectReceive queues a frame to be returned by the next Receive call.
func (d *Driver) InjectReceive(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.rxBuf.push(cp)
}

// FailNextSend makes the next Send call return an error, for exercising
// retry/back-pressure logic.
func (d *Driver) FailNextSend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNextSend = true
}

// TxLog returns a copy of every frame handed to Send so far.
func (d *Driver) TxLog() [][]byte {
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

const ringCapacity = 256

type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int
	count      int
}

func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}
