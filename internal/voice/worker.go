package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxctl/internal/observe"
	"github.com/MrWong99/voxctl/pkg/audio"
	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// readErrorBackoff is slept after a failed read so a broken or exhausted
// source does not spin the worker.
const readErrorBackoff = 10 * time.Millisecond

// worker is the pipeline loop. It is the only code that touches the stream,
// so decoding never runs concurrently.
type worker struct {
	src          audio.Source
	stream       stt.Stream
	seg          *Segmenter
	dedup        Deduper
	sink         func(Transcript)
	onEndpoint   func()
	metrics      *observe.Metrics
	running      *atomic.Bool
	frameSamples int
	sampleRate   int
	log          *slog.Logger
}

// run loops while the run flag is set and closes the stream on exit.
func (w *worker) run() {
	ctx := context.Background()
	defer func() {
		if err := w.stream.Close(); err != nil {
			w.log.Warn("voice: close stream", "err", err)
		}
	}()

	buf := make([]int16, w.frameSamples)
	for w.running.Load() {
		n, err := w.src.Read(buf)
		if err != nil || n <= 0 {
			w.metrics.ReadsSkipped.Add(ctx, 1)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					w.log.Debug("voice: audio read failed", "err", err)
				}
				time.Sleep(readErrorBackoff)
			}
			continue
		}
		w.metrics.FramesRead.Add(ctx, 1)
		w.step(ctx, buf[:n])
	}
}

// step feeds one frame and handles a resulting endpoint.
func (w *worker) step(ctx context.Context, frame []int16) {
	w.stream.AcceptWaveform(w.sampleRate, audio.Int16ToFloat32(frame))
	w.metrics.DecodeSteps.Add(ctx, int64(w.seg.Drain(w.stream)))

	endpoint := w.stream.IsEndpoint()
	if endpoint && w.seg.NeedsTailPadding() {
		w.metrics.TailPaddings.Add(ctx, 1)
	}
	text := w.seg.Finalize(w.stream, endpoint)

	if tr, ok := w.dedup.Next(text, endpoint); ok {
		w.emit(ctx, tr)
	}
	if endpoint {
		w.metrics.Endpoints.Add(ctx, 1)
		w.seg.Reset(w.stream)
		w.dedup.Reset()
		if w.onEndpoint != nil {
			w.notifyEndpoint()
		}
	}
}

func (w *worker) notifyEndpoint() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("voice: endpoint hook panicked", "panic", r)
		}
	}()
	w.onEndpoint()
}

// emit invokes the sink and contains a panicking callback.
func (w *worker) emit(ctx context.Context, tr Transcript) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("voice: text callback panicked", "panic", r)
		}
	}()
	w.metrics.RecordTranscript(ctx, tr.IsFinal)
	w.sink(tr)
}
