package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
)

// Synthetic renders a deterministic placeholder image. It is used when no
// API key is configured so the pipeline still runs end to end locally.
type Synthetic struct {
	Size int
}

// Render returns a flat PNG whose colour is derived from the request.
func (s Synthetic) Render(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.InputRef == "" || req.TargetRef == "" {
		return nil, &Error{Class: ClassInvalid, Code: "missing_reference", Message: "garment and target are required"}
	}
	size := s.Size
	if size <= 0 {
		size = 64
	}
	sum := sha256.Sum256([]byte(string(req.Kind) + "|" + req.InputRef + "|" + req.TargetRef))
	fill := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &Result{Data: buf.Bytes(), MIME: "image/png", Width: size, Height: size}, nil
}

var _ Renderer = Synthetic{}
