// ABOUTME: Error kinds for connecting to and dispatching over the engine session
// ABOUTME: Typed errors carry a Kind and unwrap to package sentinels for errors.Is

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is against ConnectError and DispatchError.
var (
	ErrUnreachable       = errors.New("engine unreachable")
	ErrHandshakeRejected = errors.New("engine handshake rejected")
	ErrTimeout           = errors.New("engine timeout")
	ErrNotConnected      = errors.New("not connected to engine")
	ErrConnectionLost    = errors.New("engine connection lost")
	ErrCanceled          = errors.New("request canceled")
)

// Kind classifies a connect or dispatch failure.
type Kind string

const (
	KindUnreachable       Kind = "unreachable"
	KindHandshakeRejected Kind = "handshake_rejected"
	KindTimeout           Kind = "timeout"
	KindNotConnected      Kind = "not_connected"
	KindConnectionLost    Kind = "connection_lost"
	KindCanceled          Kind = "canceled"
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnreachable:
		return ErrUnreachable
	case KindHandshakeRejected:
		return ErrHandshakeRejected
	case KindTimeout:
		return ErrTimeout
	case KindNotConnected:
		return ErrNotConnected
	case KindConnectionLost:
		return ErrConnectionLost
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// ConnectError reports why Connect failed.
type ConnectError struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connect %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("connect %s: %s", e.Endpoint, e.Kind)
}

func (e *ConnectError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// DispatchError reports why Execute failed. CorrelationID is empty when the
// command was never sent.
type DispatchError struct {
	Kind          Kind
	CorrelationID string
	Err           error
}

func (e *DispatchError) Error() string {
	msg := "dispatch"
	if e.CorrelationID != "" {
		msg += " " + e.CorrelationID
	}
	msg += ": " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the Kind of a ConnectError or DispatchError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
