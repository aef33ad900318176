package voice

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when voice input is not OFF. It
	// signals a no-op; nothing was acquired or changed.
	ErrAlreadyRunning = errors.New("voice: already running")

	// ErrPermissionDenied is returned by Start when microphone access is not
	// granted. Nothing was acquired.
	ErrPermissionDenied = errors.New("voice: microphone permission denied")

	// ErrEngineInitFailed is returned by Start when the recognition engine
	// could not be loaded. The audio source was never opened.
	ErrEngineInitFailed = errors.New("voice: recognition engine initialization failed")

	// ErrInvalidTransition reports a rejected ServiceState change.
	ErrInvalidTransition = errors.New("voice: invalid state transition")
)
