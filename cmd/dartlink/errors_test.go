package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openboard/dartlink/internal/board"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "device not found",
			err:  &board.ConnectError{Kind: board.FailureDeviceNotFound, Msg: "discovery timed out"},
			want: "no board found - make sure the board is powered on and in range",
		},
		{
			name: "permission denied",
			err:  &board.ConnectError{Kind: board.FailurePermissionDenied},
			want: "Bluetooth permission denied - grant Bluetooth access to this terminal and retry",
		},
		{
			name: "already connected",
			err:  board.ErrAlreadyConnected,
			want: "a board session is already active",
		},
		{
			name: "connection lost",
			err:  ErrConnectionLost,
			want: "board connection lost",
		},
		{
			name: "unclassified passes through",
			err:  errors.New("something else"),
			want: "something else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
