package transport

import "errors"

// ErrSuppressed is returned by RadioGate.Send while the consecutive-failure
// back-pressure policy is suppressing outbound transmission.
var ErrSuppressed = errors.New("transport: radio send suppressed by back-pressure")

// ErrTimeout is returned by a driver's Receive when no data arrives before
// the requested timeout elapses.
var ErrTimeout = errors.New("transport: receive timed out")
