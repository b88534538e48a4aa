package transport

import (
	"errors"
	"testing"
	"time"
)

type flakyDriver struct {
	failCount int
	sent      [][]byte
}

func (f *flakyDriver) Send(frame []byte) error {
	if f.failCount > 0 {
		f.failCount--
		return errors.New("simulated radio failure")
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *flakyDriver) Receive(timeout time.Duration) ([]byte, error) {
	return nil, ErrTimeout
}

func TestRadioGateSuppressesAfterConsecutiveFailures(t *testing.T) {
	driver := &flakyDriver{failCount: 100}
	gate := NewRadioGate(driver, 3, 30*time.Second)

	for i := 0; i < 3; i++ {
		if err := gate.Send([]byte{1}); err == nil {
			t.Fatalf("send %d: expected failure, got nil", i)
		}
	}

	if err := gate.Send([]byte{1}); !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected ErrSuppressed after 3 consecutive failures, got %v", err)
	}
}

func TestRadioGateResetsOnSuccess(t *testing.T) {
	driver := &flakyDriver{failCount: 2}
	gate := NewRadioGate(driver, 3, 30*time.Second)

	gate.Send([]byte{1})
	gate.Send([]byte{1})
	if err := gate.Send([]byte{1}); err != nil {
		t.Fatalf("third send should succeed, got %v", err)
	}

	// consecutiveErr should now be reset; further failures start a fresh count.
	driver.failCount = 3
	if err := gate.Send([]byte{1}); err == nil {
		t.Fatal("expected failure")
	}
	if err := gate.Send([]byte{1}); err == nil {
		t.Fatal("expected failure")
	}
	if err := gate.Send([]byte{1}); err == nil {
		t.Fatal("expected failure")
	}
	if err := gate.Send([]byte{1}); !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected suppression after 3 fresh consecutive failures, got %v", err)
	}
}

func TestRadioGateDecaysAfterResetInterval(t *testing.T) {
	driver := &flakyDriver{failCount: 100}
	gate := NewRadioGate(driver, 2, 10*time.Millisecond)

	gate.Send([]byte{1})
	gate.Send([]byte{1})
	if err := gate.Send([]byte{1}); !errors.Is(err, ErrSuppressed) {
		t.Fatalf("expected suppression, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	driver.failCount = 0
	if err := gate.Send([]byte{1}); err != nil {
		t.Fatalf("expected decay to clear suppression, got %v", err)
	}
}
