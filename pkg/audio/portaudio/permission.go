package portaudio

import (
	"context"
	"errors"
	"fmt"

	pa "github.com/gordonklaus/portaudio"
)

// ErrNoInputDevice is returned by [PermissionChecker.CheckMicrophone] when no
// capture-capable default device is visible to the process.
var ErrNoInputDevice = errors.New("portaudio: no accessible input device")

// PermissionChecker reports whether the process can reach a microphone. On
// desktop systems an inaccessible or missing default input device is the
// observable form of a denied microphone permission.
type PermissionChecker struct{}

// CheckMicrophone returns nil when a default input device with at least one
// input channel is available.
func (PermissionChecker) CheckMicrophone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer func() { _ = pa.Terminate() }()

	dev, err := pa.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 {
		return ErrNoInputDevice
	}
	return nil
}
