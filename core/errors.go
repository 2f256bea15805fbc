package orchestration

import (
	"errors"
	"fmt"
)

// ErrAgentUnavailable is returned by Start when the agent is inactive or
// outside its working hours.
var ErrAgentUnavailable = errors.New("agent is not available")

// DeviceError reports a microphone acquisition or device failure. Fatal:
// there is no way to recover without new user consent, so the session
// ends.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("audio device error: %v", e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

// ServiceError reports a failed STT/LLM/TTS call. Recoverable: the
// session returns to listening so the user can retry.
type ServiceError struct {
	Stage State
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error while %s: %v", e.Stage, e.Err)
}
func (e *ServiceError) Unwrap() error { return e.Err }

// PlaybackError reports a decode or playback fault. Treated as turn
// completion so a broken reply cannot hang the session.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("playback error: %v", e.Err) }
func (e *PlaybackError) Unwrap() error { return e.Err }

// PersistError reports a failed conversation save. The in-memory session
// is unaffected; retrying the save is safe.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("failed to persist conversation: %v", e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }
