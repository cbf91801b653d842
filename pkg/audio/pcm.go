package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// bytesPerSample for 16-bit signed PCM.
const bytesPerSample = 2

// Buffer is a decoded sample buffer: raw int16 little-endian PCM plus its
// declared format.
type Buffer struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Samples returns the number of samples per channel in the buffer.
func (b *Buffer) Samples() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / bytesPerSample / b.Channels
}

// Duration returns the exact playback duration of the buffer at its
// declared sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Samples()) * time.Second / time.Duration(b.SampleRate)
}

// DecodePCM16 validates an inbound payload of raw int16 little-endian PCM
// and wraps it as a Buffer. A malformed payload yields a DecodeError; the
// caller drops that chunk and continues.
func DecodePCM16(payload []byte, sampleRate, channels int) (*Buffer, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	if len(payload)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(payload))}
	}
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	return &Buffer{Data: payload, SampleRate: sampleRate, Channels: channels}, nil
}

// FloatToPCM16 clamps float samples to [-1, 1] and quantizes them to
// int16 little-endian PCM bytes.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// PCM16ToInt16 reinterprets int16 little-endian PCM bytes as samples.
// Trailing odd bytes are ignored.
func PCM16ToInt16(data []byte) []int16 {
	n := len(data) / bytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return out
}

// BytesToFloat32 reinterprets float32 little-endian bytes as samples, as
// delivered by a capture device configured for 32-bit float frames.
// Trailing partial samples are ignored.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// PCMDuration returns the playback duration of raw PCM bytes in the given
// format.
func PCMDuration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / bytesPerSample / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
