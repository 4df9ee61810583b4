package audio

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

// Chunk is one encoded capture chunk ready for the realtime uplink.
type Chunk struct {
	Payload  string // base64 16-bit little-endian PCM
	MimeType string // audio/pcm;rate=<sampleRate>
}

// EncodeCaptureChunk converts float samples in [-1,1] to the wire format.
// Samples outside the range are clamped before scaling; encoding 1.5 must not
// wrap to a negative value. The declared mime rate is always the rate actually
// negotiated with the capture device; a hard-coded nominal rate distorts pitch
// on the remote side.
func EncodeCaptureChunk(samples []float32, sampleRate int) Chunk {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := clampSample(s)
		var n int16
		if v >= 0 {
			n = int16(v * 32767)
		} else {
			n = int16(v * 32768)
		}
		buf[i*2] = byte(n)
		buf[i*2+1] = byte(uint16(n) >> 8)
	}
	return Chunk{
		Payload:  base64.StdEncoding.EncodeToString(buf),
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// DecodePlaybackChunk interprets a base64 payload as signed 16-bit
// little-endian integers and normalizes by 32768. Truncated or odd-length
// buffers yield a shorter result rather than an error, since network chunking
// may split frames arbitrarily.
func DecodePlaybackChunk(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return DecodePCM16(raw), nil
}

// DecodePCM16 converts raw little-endian 16-bit PCM bytes to float samples.
// A trailing odd byte is dropped.
func DecodePCM16(raw []byte) []float32 {
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(v) / 32768
	}
	return samples
}

// Duration reports the play time of a sample buffer at the given rate.
func Duration(sampleCount, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := sampleCount / channels
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

// Level computes an RMS input level scaled to 0-100 for UI feedback.
func Level(samples []float32) int {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(clampSample(s))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	level := int(rms * 100 * 4) // speech RMS rarely exceeds 0.25
	if level > 100 {
		level = 100
	}
	return level
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
