// Package wavfile implements [audio.Opener] by replaying a 16 kHz mono 16-bit
// WAV recording. It is used for offline runs, demos and reproducible tests of
// the recognition pipeline without a microphone.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/voxctl/pkg/audio"
)

// Compile-time assertion that Opener satisfies audio.Opener.
var _ audio.Opener = (*Opener)(nil)

// Opener opens WAV files named by [audio.Config.File].
type Opener struct{}

// New returns a WAV-replaying [audio.Opener].
func New() *Opener { return &Opener{} }

// Open validates the file format against the capture contract and returns a
// Source positioned at the first PCM sample. When cfg.Realtime is set, reads
// are paced to one frame per frame duration.
func (o *Opener) Open(ctx context.Context, cfg audio.Config) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wavfile: context already cancelled: %w", err)
	}
	if cfg.File == "" {
		return nil, errors.New("wavfile: audio.file must not be empty")
	}

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", cfg.File, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("wavfile: %q is not a valid WAV file", cfg.File)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: seek to PCM data in %q: %w", cfg.File, err)
	}

	want := cfg.SampleRate
	if want <= 0 {
		want = audio.SampleRate
	}
	if int(dec.SampleRate) != want || dec.NumChans != 1 || dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("wavfile: %q is %d Hz/%d ch/%d bit, want %d Hz mono 16 bit",
			cfg.File, dec.SampleRate, dec.NumChans, dec.BitDepth, want)
	}

	frameDur := cfg.FrameDuration
	if frameDur <= 0 {
		frameDur = audio.FrameDuration
	}
	return &source{
		file:     f,
		dec:      dec,
		realtime: cfg.Realtime,
		frameDur: frameDur,
		format:   &goaudio.Format{NumChannels: 1, SampleRate: want},
	}, nil
}

// source streams PCM samples out of a WAV decoder.
type source struct {
	file     *os.File
	dec      *wav.Decoder
	realtime bool
	frameDur time.Duration
	format   *goaudio.Format

	ib       *goaudio.IntBuffer
	nextDue  time.Time
	closeErr error
	once     sync.Once
}

// Read copies up to len(buf) samples. At end of file it returns 0 and io.EOF,
// which the pipeline treats like any other empty read.
func (s *source) Read(buf []int16) (int, error) {
	if s.realtime {
		now := time.Now()
		if s.nextDue.IsZero() {
			s.nextDue = now
		}
		if wait := s.nextDue.Sub(now); wait > 0 {
			time.Sleep(wait)
		}
		s.nextDue = s.nextDue.Add(s.frameDur)
	}

	if s.ib == nil || len(s.ib.Data) != len(buf) {
		s.ib = &goaudio.IntBuffer{Data: make([]int, len(buf)), Format: s.format, SourceBitDepth: 16}
	}
	n, err := s.dec.PCMBuffer(s.ib)
	if err != nil {
		return 0, fmt.Errorf("wavfile: read PCM: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := range n {
		buf[i] = int16(s.ib.Data[i])
	}
	return n, nil
}

// Close releases the underlying file.
func (s *source) Close() error {
	s.once.Do(func() { s.closeErr = s.file.Close() })
	return s.closeErr
}
