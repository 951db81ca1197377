// Package transform shapes raw captured frames: pixel-format normalization,
// cropping, and scaling. Crop runs before scale so pixels that will be
// discarded are never resampled.
package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/captura-dev/captura/internal/domain"

	"golang.org/x/image/draw"
)

// maxFrameDim bounds frame dimensions accepted from the wire. Anything larger
// is a protocol violation, and unchecked values would overflow the buffer
// size arithmetic below.
const maxFrameDim = 1 << 15

// Apply normalizes frame to RGBA and applies opts in order: crop, then scale.
// A region that falls partially outside the frame is clamped to the
// intersection; a region fully outside yields an error.
func Apply(frame *domain.RawFrame, opts domain.TransformOptions) (*domain.RawFrame, error) {
	if opts.Scale < 0 || math.IsNaN(opts.Scale) || math.IsInf(opts.Scale, 0) {
		return nil, fmt.Errorf("invalid scale factor %v", opts.Scale)
	}

	img, err := toRGBA(frame)
	if err != nil {
		return nil, err
	}

	if opts.Region != nil {
		img, err = crop(img, *opts.Region)
		if err != nil {
			return nil, err
		}
	}

	if opts.Scale > 0 && opts.Scale != 1 {
		img = scale(img, opts.Scale)
	}

	bounds := img.Bounds()
	return &domain.RawFrame{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		PixelFormat: domain.PixelFormatRGBA,
		Data:        img.Pix,
	}, nil
}

// toRGBA converts the wire pixel layout into a canonical RGBA image. All
// supported formats are 4 bytes per pixel.
func toRGBA(frame *domain.RawFrame) (*image.RGBA, error) {
	if frame.Width <= 0 || frame.Height <= 0 || frame.Width > maxFrameDim || frame.Height > maxFrameDim {
		return nil, fmt.Errorf("malformed frame: %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	expected := frame.Width * frame.Height * 4
	if len(frame.Data) < expected {
		return nil, fmt.Errorf("malformed frame: %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))

	switch frame.PixelFormat {
	case domain.PixelFormatRGBA:
		copy(img.Pix, frame.Data[:expected])
	case domain.PixelFormatRGBX:
		copy(img.Pix, frame.Data[:expected])
		opaque(img.Pix)
	case domain.PixelFormatBGRA:
		swapRB(img.Pix, frame.Data[:expected])
	case domain.PixelFormatBGRX:
		swapRB(img.Pix, frame.Data[:expected])
		opaque(img.Pix)
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", frame.PixelFormat)
	}

	return img, nil
}

func swapRB(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
		dst[i+3] = src[i+3]
	}
}

func opaque(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
}

func crop(img *image.RGBA, region domain.Region) (*image.RGBA, error) {
	want := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	clamped := want.Intersect(img.Bounds())
	if clamped.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside frame bounds %v", want, img.Bounds())
	}

	out := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(out, out.Bounds(), img, clamped.Min, draw.Src)
	return out, nil
}

func scale(img *image.RGBA, factor float64) *image.RGBA {
	bounds := img.Bounds()
	w := int(math.Round(float64(bounds.Dx()) * factor))
	h := int(math.Round(float64(bounds.Dy()) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, bounds, draw.Src, nil)
	return out
}
