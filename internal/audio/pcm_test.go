package audio

import (
	"encoding/base64"
	"math"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{-1, -0.5, -0.25, 0, 0.25, 0.5, 0.9999, 1}
	chunk := EncodeCaptureChunk(in, 48000)
	if chunk.MimeType != "audio/pcm;rate=48000" {
		t.Fatalf("unexpected mime type: %s", chunk.MimeType)
	}
	out, err := DecodePlaybackChunk(chunk.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 1.0/32768 {
			t.Fatalf("sample %d: got %f want %f (diff %f)", i, out[i], in[i], diff)
		}
	}
}

func TestEncodeClampsExcursions(t *testing.T) {
	chunk := EncodeCaptureChunk([]float32{1.5, -1.5}, 16000)
	out, err := DecodePlaybackChunk(chunk.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out[0] < 0.99 {
		t.Fatalf("1.5 must clamp to full scale, not wrap: got %f", out[0])
	}
	if out[1] > -0.99 {
		t.Fatalf("-1.5 must clamp to negative full scale: got %f", out[1])
	}
}

func TestMimeRateMatchesNegotiatedRate(t *testing.T) {
	for _, rate := range []int{16000, 24000, 44100, 48000} {
		chunk := EncodeCaptureChunk([]float32{0}, rate)
		want := "audio/pcm;rate=" + itoa(rate)
		if chunk.MimeType != want {
			t.Fatalf("expected %s, got %s", want, chunk.MimeType)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestDecodeOddLengthBuffer(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x00, 0x40, 0x7f})
	out, err := DecodePlaybackChunk(payload)
	if err != nil {
		t.Fatalf("odd-length buffer must not error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected trailing byte dropped, got %d samples", len(out))
	}
}

func TestDecodeInvalidBase64(t *testing.T) {
	if _, err := DecodePlaybackChunk("not base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(24000, 24000, 1); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
	if d := Duration(24000, 24000, 2); d != 500*time.Millisecond {
		t.Fatalf("expected 500ms for stereo, got %v", d)
	}
	if d := Duration(100, 0, 1); d != 0 {
		t.Fatalf("expected 0 for invalid rate, got %v", d)
	}
}

func TestLevel(t *testing.T) {
	if l := Level(nil); l != 0 {
		t.Fatalf("empty buffer level: %d", l)
	}
	silence := make([]float32, 480)
	if l := Level(silence); l != 0 {
		t.Fatalf("silence level: %d", l)
	}
	loud := make([]float32, 480)
	for i := range loud {
		loud[i] = 1
	}
	if l := Level(loud); l != 100 {
		t.Fatalf("full-scale level: %d", l)
	}
}
