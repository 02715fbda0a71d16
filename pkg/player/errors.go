package player

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyPlaying is returned by Play when the controller is not idle
	ErrAlreadyPlaying = errors.New("player is already playing")

	// ErrInvalidState is returned by controls issued in a state that does not
	// accept them
	ErrInvalidState = errors.New("invalid player state")

	// ErrDisconnected is reported when Disconnect wins a race with Play
	ErrDisconnected = errors.New("player was disconnected")

	// ErrTooManyFailures ends a session whose tracks keep failing
	ErrTooManyFailures = errors.New("too many consecutive track failures")
)

// ConnectError reports a voice session that could not be acquired
type ConnectError struct {
	ChannelID string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to voice channel %s: %v", e.ChannelID, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
