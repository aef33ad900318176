// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Opener] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{Frames: [][]int16{make([]int16, 1600)}}
//	opener := &mock.Opener{Source: src}
//	got, err := opener.Open(ctx, audio.DefaultConfig())
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/voxctl/pkg/audio"
)

// defaultIdleDelay is how long Read sleeps once the scripted frames are
// exhausted, so that worker loops do not spin.
const defaultIdleDelay = time.Millisecond

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("mock: source closed")

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
// Frames are returned in order, one per Read. Once exhausted, Read sleeps for
// IdleDelay and reports zero samples.
type Source struct {
	mu sync.Mutex

	// Frames are delivered one per Read call, truncated to the buffer size.
	Frames [][]int16

	// IdleDelay is slept by Read when no frames remain. Defaults to 1ms.
	IdleDelay time.Duration

	// ReadDelay is slept by every Read before returning data, simulating a
	// blocking device.
	ReadDelay time.Duration

	// ReadErr, if non-nil, is returned by every Read together with zero samples.
	ReadErr error

	// CloseErr is returned by Close.
	CloseErr error

	// OnCall, if set, is invoked with the method name ("Read", "Close") at the
	// start of every call. Useful to build a cross-mock call log.
	OnCall func(method string)

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// ReadsAfterClose counts Read calls that happened after Close.
	ReadsAfterClose int

	next   int
	closed bool
}

// Read implements [audio.Source].
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	onCall := s.OnCall
	s.mu.Unlock()
	if onCall != nil {
		onCall("Read")
	}

	s.mu.Lock()
	s.CallCountRead++
	if s.closed {
		s.ReadsAfterClose++
		s.mu.Unlock()
		return 0, ErrClosed
	}
	readDelay := s.ReadDelay
	if s.ReadErr != nil {
		err := s.ReadErr
		s.mu.Unlock()
		time.Sleep(readDelay)
		return 0, err
	}
	if s.next >= len(s.Frames) {
		idle := s.IdleDelay
		if idle <= 0 {
			idle = defaultIdleDelay
		}
		s.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	frame := s.Frames[s.next]
	s.next++
	s.mu.Unlock()

	time.Sleep(readDelay)
	return copy(buf, frame), nil
}

// Close implements [audio.Source]. Returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	onCall := s.OnCall
	s.mu.Unlock()
	if onCall != nil {
		onCall("Close")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	return s.CloseErr
}

// Remaining returns how many scripted frames have not been read yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames) - s.next
}

// Reads returns how many times Read was called. Thread-safe.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRead
}

// Closes returns how many times Close was called. Thread-safe.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

// LateReads returns how many Read calls happened after Close. Thread-safe.
func (s *Source) LateReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReadsAfterClose
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// ─── Opener ───────────────────────────────────────────────────────────────────

// Opener is a mock implementation of [audio.Opener].
type Opener struct {
	mu sync.Mutex

	// Source is returned by Open. If nil, a new empty Source is returned.
	Source audio.Source

	// NewSource, if set, is called on every Open to build a fresh Source. It
	// takes precedence over Source.
	NewSource func() audio.Source

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OnCall, if set, is invoked with "Open" at the start of every call.
	OnCall func(method string)

	// OpenCalls records the Config of every Open invocation.
	OpenCalls []audio.Config
}

// Open implements [audio.Opener].
func (o *Opener) Open(_ context.Context, cfg audio.Config) (audio.Source, error) {
	o.mu.Lock()
	onCall := o.OnCall
	o.mu.Unlock()
	if onCall != nil {
		onCall("Open")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, cfg)
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.NewSource != nil {
		return o.NewSource(), nil
	}
	if o.Source != nil {
		return o.Source, nil
	}
	return &Source{}, nil
}

// OpenCallCount returns the number of Open calls. Thread-safe.
func (o *Opener) OpenCallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.OpenCalls)
}

// Ensure Opener implements audio.Opener at compile time.
var _ audio.Opener = (*Opener)(nil)
