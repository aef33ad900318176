// Package malgo implements [audio.Opener] using miniaudio through the malgo
// bindings. Capture is callback driven: the device callback pushes samples into
// a bounded queue and Read waits for one frame with a timeout of two frame
// durations, so a stalled device never blocks the pipeline worker indefinitely.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ma "github.com/gen2brain/malgo"

	"github.com/MrWong99/voxctl/pkg/audio"
)

// maxQueued bounds the capture backlog. Older samples are dropped when the
// worker falls behind.
const maxQueued = 5 * time.Second

// Compile-time assertion that Opener satisfies audio.Opener.
var _ audio.Opener = (*Opener)(nil)

// Opener opens miniaudio capture devices.
type Opener struct{}

// New returns a malgo-backed [audio.Opener].
func New() *Opener { return &Opener{} }

// Open initialises a miniaudio context, configures a mono S16 capture device
// at cfg.SampleRate and starts it.
func (o *Opener) Open(ctx context.Context, cfg audio.Config) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("malgo: context already cancelled: %w", err)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	frameDur := cfg.FrameDuration
	if frameDur <= 0 {
		frameDur = audio.FrameDuration
	}

	mctx, err := ma.InitContext(nil, ma.ContextConfig{}, func(msg string) {
		slog.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}

	devCfg := ma.DefaultDeviceConfig(ma.Capture)
	devCfg.Capture.Format = ma.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(cfg.SampleRate)
	if cfg.Device != "" {
		id, err := findDevice(mctx, cfg.Device)
		if err != nil {
			freeContext(mctx)
			return nil, err
		}
		devCfg.Capture.DeviceID = id.Pointer()
	}

	q := newFrameQueue(int(int64(cfg.SampleRate) * int64(maxQueued) / int64(time.Second)))
	callbacks := ma.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			q.push(audio.BytesToInt16(input))
		},
	}

	device, err := ma.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		freeContext(mctx)
		return nil, fmt.Errorf("malgo: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return nil, fmt.Errorf("malgo: start device: %w", err)
	}

	slog.Debug("malgo: capture started", "device", cfg.Device, "sample_rate", cfg.SampleRate)
	return &source{
		ctx:     mctx,
		device:  device,
		queue:   q,
		timeout: 2 * frameDur,
	}, nil
}

// findDevice returns the ID of the capture device named name.
func findDevice(mctx *ma.AllocatedContext, name string) (ma.DeviceID, error) {
	infos, err := mctx.Devices(ma.Capture)
	if err != nil {
		return ma.DeviceID{}, fmt.Errorf("malgo: list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, nil
		}
	}
	return ma.DeviceID{}, fmt.Errorf("malgo: capture device %q not found", name)
}

func freeContext(mctx *ma.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		slog.Warn("malgo: uninit context", "err", err)
	}
	mctx.Free()
}

// source is a live miniaudio capture device.
type source struct {
	ctx     *ma.AllocatedContext
	device  *ma.Device
	queue   *frameQueue
	timeout time.Duration

	closeOnce sync.Once
}

// Read waits up to two frame durations for len(buf) samples. On timeout it
// returns whatever is queued, possibly zero samples.
func (s *source) Read(buf []int16) (int, error) {
	n := s.queue.pop(buf, s.timeout)
	if n == 0 && s.queue.isClosed() {
		return 0, errors.New("malgo: source closed")
	}
	return n, nil
}

// Close stops the device and releases the miniaudio context.
func (s *source) Close() error {
	s.closeOnce.Do(func() {
		s.device.Uninit()
		s.queue.close()
		freeContext(s.ctx)
	})
	return nil
}
