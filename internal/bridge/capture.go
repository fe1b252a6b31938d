package bridge

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"

	"fpbridge/internal/fpdev"
	"fpbridge/pkg/types"
)

// Image events carry JPEG at full quality; finger events carry lossless PNG.
const jpegQuality = 100

func (b *Bridge) captureImage(ctx context.Context, d fpdev.Device, ev *types.Event) {
	b.cue(ctx, CuePlaceFinger)
	img, err := d.CaptureImage(ctx)
	if serr := d.StopCapture(); serr != nil {
		b.log.Warn().Err(serr).Str("task", ev.TaskID).Msg("stop capture failed")
	}
	if !b.captureOK(ev, err) || img == nil {
		return
	}
	buf, err := encodeJPEG(img)
	if err != nil {
		b.captureFailed(ev, err)
		return
	}
	b.cue(ctx, CueCaptured)
	ev.Bitmap = buf
}

func (b *Bridge) captureFeature(ctx context.Context, d fpdev.Device, ev *types.Event) {
	b.cue(ctx, CuePlaceFinger)
	tpl, err := d.CaptureFeature(ctx)
	if !b.captureOK(ev, err) || tpl == nil {
		return
	}
	b.cue(ctx, CueCaptured)
	s := EncodeTemplate(tpl)
	ev.Feature = &s
}

func (b *Bridge) captureFinger(ctx context.Context, d fpdev.Device, ev *types.Event) {
	b.cue(ctx, CuePlaceFinger)
	f, err := d.CaptureFinger(ctx)
	if !b.captureOK(ev, err) || f == nil {
		return
	}
	var bitmap []byte
	if f.Image != nil {
		if bitmap, err = encodePNG(f.Image); err != nil {
			b.captureFailed(ev, err)
			return
		}
	}
	b.cue(ctx, CueCaptured)
	if f.Feature != nil {
		s := EncodeTemplate(f.Feature)
		ev.Feature = &s
	}
	ev.Bitmap = bitmap
	ev.Quality = f.Quality
}

// captureOK classifies a capture error. A deadline means nobody touched the
// sensor; other errors are device faults. Both leave ev absent.
func (b *Bridge) captureOK(ev *types.Event, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.DeadlineExceeded):
		b.log.Debug().Str("task", ev.TaskID).Msg("no finger before capture timeout")
	case errors.Is(err, context.Canceled):
		b.log.Debug().Str("task", ev.TaskID).Msg("capture interrupted")
	default:
		b.captureFailed(ev, err)
	}
	return false
}

func (b *Bridge) captureFailed(ev *types.Event, err error) {
	b.recordErr(err)
	b.log.Warn().Err(err).Str("task", ev.TaskID).Str("command", ev.Command).Msg("capture failed")
	ev.Bitmap, ev.Feature, ev.Quality = nil, nil, 0
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
