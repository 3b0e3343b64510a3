package cmclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no payload.
var (
	ErrNoServers    = errors.New("cmclient: no bootstrap servers configured")
	ErrNotConnected = errors.New("cmclient: not connected")
)

// EncryptionFailedError is surfaced when ChannelEncryptResult carries a
// non-OK result code (spec.md §7).
type EncryptionFailedError struct {
	ResultCode int32
}

func (e *EncryptionFailedError) Error() string {
	return fmt.Sprintf("cmclient: encryption fail: %d", e.ResultCode)
}

// DisconnectedError is surfaced once per unexpected teardown of a
// previously-Ready session (spec.md §4.7, §7).
type DisconnectedError struct {
	Cause error
}

func (e *DisconnectedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cmclient: disconnected: %v", e.Cause)
	}
	return "cmclient: disconnected"
}

func (e *DisconnectedError) Unwrap() error { return e.Cause }

// CannotConnectError is surfaced once when auto-retry is disabled and the
// first connect attempt fails (spec.md §4.7, §7).
type CannotConnectError struct {
	Cause error
}

func (e *CannotConnectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cmclient: cannot connect: %v", e.Cause)
	}
	return "cmclient: cannot connect"
}

func (e *CannotConnectError) Unwrap() error { return e.Cause }

// ProtocolError marks a header decode failure or an impossible header
// variant; fatal for the connection (spec.md §7).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cmclient: protocol error: %s", e.Reason)
}
