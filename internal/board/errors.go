package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a connection attempt failed.
type FailureKind string

const (
	FailureUnsupportedPlatform FailureKind = "unsupported_platform"
	FailureInsecureContext     FailureKind = "insecure_context"
	FailureDeviceNotFound      FailureKind = "device_not_found"
	FailurePermissionDenied    FailureKind = "permission_denied"
	FailureGattUnsupported     FailureKind = "gatt_unsupported"
)

// ConnectError is a classified connection-establishment failure. It is
// returned to the caller with a human-readable reason; it is never raised
// as a panic or allowed to kill the notification stream.
type ConnectError struct {
	Kind FailureKind
	Msg  string
}

func (e *ConnectError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare ConnectError values by Kind.
func (e *ConnectError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedPlatform = &ConnectError{Kind: FailureUnsupportedPlatform}
	ErrInsecureContext     = &ConnectError{Kind: FailureInsecureContext}
	ErrDeviceNotFound      = &ConnectError{Kind: FailureDeviceNotFound}
	ErrPermissionDenied    = &ConnectError{Kind: FailurePermissionDenied}
	ErrGattUnsupported     = &ConnectError{Kind: FailureGattUnsupported}
)

// ErrAlreadyConnected is returned by Connect when a session is already
// established or being established.
var ErrAlreadyConnected = errors.New("already connected")

// classifyConnectError maps lower-layer failures onto the ConnectError
// taxonomy. Unrecognized errors pass through untouched.
func classifyConnectError(stage string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *ConnectError
	if errors.As(err, &cerr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectError{Kind: FailureDeviceNotFound, Msg: fmt.Sprintf("%s timed out: no board in range", stage)}
	case strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") || strings.Contains(msg, "access denied"):
		return &ConnectError{Kind: FailurePermissionDenied, Msg: fmt.Sprintf("%s: %v", stage, err)}
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "no bluetooth") || strings.Contains(msg, "invalid state"):
		return &ConnectError{Kind: FailureUnsupportedPlatform, Msg: fmt.Sprintf("%s: %v", stage, err)}
	case strings.Contains(msg, "insecure"):
		return &ConnectError{Kind: FailureInsecureContext, Msg: fmt.Sprintf("%s: %v", stage, err)}
	default:
		return fmt.Errorf("%s: %w", stage, err)
	}
}
