package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Int16ToFloat32 converts signed 16-bit samples to float32 normalised to the
// range [-1.0, 1.0).
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// BytesToInt16 decodes 16-bit signed little-endian PCM. Any trailing odd byte
// is silently ignored.
func BytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

// Silence returns d worth of zero-valued float32 samples at sampleRate.
func Silence(sampleRate int, d time.Duration) []float32 {
	if sampleRate <= 0 || d <= 0 {
		return nil
	}
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return make([]float32, n)
}

// RMS returns the root-mean-square energy of samples in PCM units
// (0–32 767). Returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DurationOf returns the playback duration of n mono samples at sampleRate.
func DurationOf(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}
