// Package portaudio implements [audio.Opener] on top of PortAudio's blocking
// read API. Each Read call blocks until one full frame has been captured, which
// bounds how long the pipeline worker waits before observing its run flag.
//
// PortAudio is initialised when a source is opened and terminated when it is
// closed; PortAudio reference-counts these calls internally.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxctl/pkg/audio"
)

// Compile-time assertion that Opener satisfies audio.Opener.
var _ audio.Opener = (*Opener)(nil)

// Opener opens PortAudio capture streams.
type Opener struct{}

// New returns a PortAudio-backed [audio.Opener].
func New() *Opener { return &Opener{} }

// Open initialises PortAudio, opens the configured input device (or the system
// default) and starts the stream.
func (o *Opener) Open(ctx context.Context, cfg audio.Config) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: context already cancelled: %w", err)
	}
	if cfg.Channels > 1 {
		return nil, fmt.Errorf("portaudio: %d channels requested, only mono is supported", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]int16, cfg.FrameSamples())
	stream, err := openStream(cfg, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	slog.Debug("portaudio: capture started",
		"device", deviceLabel(cfg.Device),
		"sample_rate", cfg.SampleRate,
		"frame_samples", len(buf),
	)
	return &source{stream: stream, buf: buf}, nil
}

// openStream opens either the default input stream or the named device.
func openStream(cfg audio.Config, buf []int16) (*pa.Stream, error) {
	if cfg.Device == "" {
		stream, err := pa.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: len(buf),
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open device %q: %w", cfg.Device, err)
	}
	return stream, nil
}

// findDevice returns the input-capable device whose name equals name.
func findDevice(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: input device %q not found", name)
}

func deviceLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}

// source is a live PortAudio capture stream. Read is only called from the
// pipeline worker goroutine.
type source struct {
	stream *pa.Stream
	buf    []int16

	closeOnce sync.Once
	closeErr  error
}

// Read blocks until one frame is captured and copies it into buf.
func (s *source) Read(buf []int16) (int, error) {
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, pa.InputOverflowed) {
			return 0, fmt.Errorf("portaudio: read: %w", err)
		}
		// Overflow still delivers a full buffer; older samples were dropped.
		slog.Debug("portaudio: input overflowed")
	}
	return copy(buf, s.buf), nil
}

// Close stops and closes the stream and terminates PortAudio.
func (s *source) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
