package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/canvaslabs/canvas-voice/internal/live"
	"github.com/canvaslabs/canvas-voice/internal/protocol"
	"golang.org/x/image/draw"
)

const (
	previewFetchTimeout = 10 * time.Second
	previewMaxBytes     = 8 << 20
	frameJPEGQuality    = 80
)

// streamVisualContext loads the given queue previews, downscales them and
// feeds them into the live session as inline frames. It runs detached from
// the tool call that requested it; per-image failures are logged and skipped.
func (e *Engine) streamVisualContext(sess *session, images []protocol.QueueImage) {
	for _, img := range images {
		select {
		case <-sess.ctx.Done():
			return
		default:
		}

		frame, err := e.renderFrame(sess.ctx, img.Preview)
		if err != nil {
			e.log.Warn("skipping visual context frame",
				slog.String("image_id", img.ID), slogError(err))
			continue
		}
		if err := sess.conn.SendMedia(frame); err != nil {
			e.log.Warn("failed to send visual context frame",
				slog.String("image_id", img.ID), slogError(err))
			return
		}
	}
}

// renderFrame fetches one preview, scales it down to the configured maximum
// edge and re-encodes it as JPEG.
func (e *Engine) renderFrame(ctx context.Context, src string) (live.MediaChunk, error) {
	raw, err := loadPreview(ctx, src)
	if err != nil {
		return live.MediaChunk{}, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return live.MediaChunk{}, fmt.Errorf("decode preview: %w", err)
	}

	scaled := downscale(decoded, e.cfg.VisualContextMaxEdge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return live.MediaChunk{}, fmt.Errorf("encode frame: %w", err)
	}
	return live.MediaChunk{
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// loadPreview reads a data: URI inline or fetches an http(s) URL.
func loadPreview(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		_, payload, found := strings.Cut(src, ";base64,")
		if !found {
			return nil, fmt.Errorf("unsupported data URI encoding")
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		return raw, nil
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return nil, fmt.Errorf("unsupported preview source %q", src)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, previewFetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build preview request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch preview: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch preview: status %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, previewMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read preview body: %w", err)
	}
	return raw, nil
}

// downscale fits the image within maxEdge on its longer side, preserving
// aspect ratio. Images already small enough pass through untouched.
func downscale(img image.Image, maxEdge int) image.Image {
	if maxEdge <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(longer)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
