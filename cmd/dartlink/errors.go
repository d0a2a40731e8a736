package main

import (
	"errors"

	"github.com/openboard/dartlink/internal/board"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the board connection was unexpectedly lost
	// during operation, as opposed to never having been established.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError maps internal errors to actionable one-line messages for
// the terminal. Unclassified errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, board.ErrDeviceNotFound):
		return "no board found - make sure the board is powered on and in range"
	case errors.Is(err, board.ErrPermissionDenied):
		return "Bluetooth permission denied - grant Bluetooth access to this terminal and retry"
	case errors.Is(err, board.ErrUnsupportedPlatform):
		return "Bluetooth is unavailable - " + err.Error()
	case errors.Is(err, board.ErrGattUnsupported):
		return "connected device does not look like a supported dartboard (" + err.Error() + ")"
	case errors.Is(err, board.ErrAlreadyConnected):
		return "a board session is already active"
	case errors.Is(err, ErrConnectionLost):
		return "board connection lost"
	default:
		return err.Error()
	}
}
