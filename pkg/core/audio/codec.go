// Package audio converts between raw floating-point samples and the
// little-endian 16-bit PCM wire encoding used by the live session, and
// carries the duration math shared by the capture and playback paths.
package audio

import (
	"math"
	"time"
)

// EncodingPCM16 is signed 16-bit little-endian PCM, the only wire encoding
// the remote session negotiates.
const EncodingPCM16 = "pcm_s16le"

const bytesPerSample = 2

// Format describes the shape of a PCM stream.
type Format struct {
	Encoding     string
	SampleRateHz int
	Channels     int
}

// CaptureFormat is the fixed microphone format: 16 kHz mono.
func CaptureFormat() Format {
	return Format{Encoding: EncodingPCM16, SampleRateHz: 16000, Channels: 1}
}

// PlaybackFormat is the fixed output format: 24 kHz mono.
func PlaybackFormat() Format {
	return Format{Encoding: EncodingPCM16, SampleRateHz: 24000, Channels: 1}
}

// BytesPerSecond returns the PCM byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRateHz * f.Channels * bytesPerSample
}

// BytesFor returns the PCM byte count covering d, rounded down to a whole
// number of samples.
func (f Format) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%bytesPerSample
}

// DurationOf returns the playback duration of n PCM bytes.
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// SamplesFor returns the sample count covering d.
func (f Format) SamplesFor(d time.Duration) int {
	return f.BytesFor(d) / bytesPerSample
}

// EncodePCM16 converts float samples in [-1, 1] to s16le bytes.
// Out-of-range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * 32767.0)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 converts s16le bytes to float samples in [-1, 1].
// A trailing odd byte is dropped.
func DecodePCM16(pcm []byte) []float32 {
	samples := len(pcm) / bytesPerSample
	out := make([]float32, samples)
	for i := 0; i < samples; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMSLevel computes the root-mean-square energy of float samples.
// Returns a value between 0.0 and 1.0.
func RMSLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSEnergy computes the root-mean-square energy of s16le PCM audio.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / bytesPerSample
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in s16le PCM audio.
// Returns a value between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	var maxAbs float64
	for _, v := range DecodePCM16(pcm) {
		abs := math.Abs(float64(v))
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs
}
