package routeros

import (
	"errors"
	"fmt"
)

// ErrAuth indicates the device rejected the supplied credentials.
var ErrAuth = errors.New("routeros: invalid credentials")

// ErrClosed indicates the client was used after Close.
var ErrClosed = errors.New("routeros: client closed")

// ConnError wraps a transport-level failure (unreachable host, refused
// connection, dropped socket).
type ConnError struct {
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("routeros: connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed or unexpected reply on the wire.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "routeros: protocol error: " + e.Reason
}

// DeviceError carries a !trap reply: the device understood the sentence but
// refused to execute it.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "routeros: device error: " + e.Message
}
