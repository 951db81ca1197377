package transform

import (
	"math"
	"testing"

	"github.com/captura-dev/captura/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientFrame builds a frame whose red channel encodes the x coordinate and
// green channel the y coordinate, so crops can be verified by pixel content.
func gradientFrame(width, height int, format domain.PixelFormat) *domain.RawFrame {
	data := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			r, g, b, a := byte(x), byte(y), byte(0x42), byte(0xFF)
			switch format {
			case domain.PixelFormatRGBA, domain.PixelFormatRGBX:
				data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
			case domain.PixelFormatBGRA, domain.PixelFormatBGRX:
				data[i], data[i+1], data[i+2], data[i+3] = b, g, r, a
			}
		}
	}
	return &domain.RawFrame{Width: width, Height: height, PixelFormat: format, Data: data}
}

func TestApply_NoOpKeepsDimensions(t *testing.T) {
	frame := gradientFrame(16, 8, domain.PixelFormatRGBA)

	out, err := Apply(frame, domain.TransformOptions{})
	require.NoError(t, err)
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 8, out.Height)
	assert.Equal(t, domain.PixelFormatRGBA, out.PixelFormat)
	assert.Equal(t, frame.Data, out.Data)
}

func TestApply_NormalizesBGRA(t *testing.T) {
	frame := gradientFrame(4, 2, domain.PixelFormatBGRA)

	out, err := Apply(frame, domain.TransformOptions{})
	require.NoError(t, err)

	// Pixel (3,1): red channel must carry x=3 after the swap.
	i := (1*4 + 3) * 4
	assert.Equal(t, byte(3), out.Data[i])
	assert.Equal(t, byte(1), out.Data[i+1])
	assert.Equal(t, byte(0x42), out.Data[i+2])
	assert.Equal(t, byte(0xFF), out.Data[i+3])
}

func TestApply_RGBXForcedOpaque(t *testing.T) {
	frame := gradientFrame(2, 2, domain.PixelFormatRGBX)
	frame.Data[3] = 0x00 // padding byte carries garbage on the wire

	out, err := Apply(frame, domain.TransformOptions{})
	require.NoError(t, err)
	for i := 3; i < len(out.Data); i += 4 {
		assert.Equal(t, byte(0xFF), out.Data[i])
	}
}

func TestApply_CropSelectsRegion(t *testing.T) {
	frame := gradientFrame(32, 32, domain.PixelFormatRGBA)

	out, err := Apply(frame, domain.TransformOptions{
		Region: &domain.Region{X: 10, Y: 20, Width: 8, Height: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 4, out.Height)

	// Top-left pixel of the crop is (10,20) in the source.
	assert.Equal(t, byte(10), out.Data[0])
	assert.Equal(t, byte(20), out.Data[1])
}

func TestApply_CropClampsToFrameBounds(t *testing.T) {
	frame := gradientFrame(16, 16, domain.PixelFormatRGBA)

	out, err := Apply(frame, domain.TransformOptions{
		Region: &domain.Region{X: 12, Y: 12, Width: 10, Height: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 4, out.Height)
}

func TestApply_CropOutsideFrameFails(t *testing.T) {
	frame := gradientFrame(16, 16, domain.PixelFormatRGBA)

	_, err := Apply(frame, domain.TransformOptions{
		Region: &domain.Region{X: 100, Y: 100, Width: 8, Height: 8},
	})
	require.Error(t, err)
}

func TestApply_CropRunsBeforeScale(t *testing.T) {
	frame := gradientFrame(64, 64, domain.PixelFormatRGBA)

	out, err := Apply(frame, domain.TransformOptions{
		Region: &domain.Region{X: 0, Y: 0, Width: 32, Height: 16},
		Scale:  0.5,
	})
	require.NoError(t, err)

	// Scale applies to the cropped size, not the source size.
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 8, out.Height)
}

func TestApply_ScaleUp(t *testing.T) {
	frame := gradientFrame(8, 8, domain.PixelFormatRGBA)

	out, err := Apply(frame, domain.TransformOptions{Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, 16, out.Width)
	assert.Equal(t, 16, out.Height)
	assert.Len(t, out.Data, 16*16*4)
}

func TestApply_OversizedDimensionsFail(t *testing.T) {
	// Width*Height*4 wraps to zero here; the dimension bound must reject the
	// frame before the size arithmetic, not panic in image.NewRGBA.
	frame := &domain.RawFrame{
		Width:       1 << 31,
		Height:      1 << 31,
		PixelFormat: domain.PixelFormatRGBA,
		Data:        []byte{1, 2, 3, 4},
	}

	_, err := Apply(frame, domain.TransformOptions{})
	require.Error(t, err)
}

func TestApply_InvalidScaleFails(t *testing.T) {
	frame := gradientFrame(4, 4, domain.PixelFormatRGBA)

	for _, factor := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := Apply(frame, domain.TransformOptions{Scale: factor})
		require.Error(t, err, "scale factor %v must be rejected", factor)
	}
}

func TestApply_MalformedFrameFails(t *testing.T) {
	frame := &domain.RawFrame{Width: 8, Height: 8, PixelFormat: domain.PixelFormatRGBA, Data: []byte{1, 2, 3}}

	_, err := Apply(frame, domain.TransformOptions{})
	require.Error(t, err)
}

func TestApply_UnknownPixelFormatFails(t *testing.T) {
	frame := gradientFrame(2, 2, domain.PixelFormatRGBA)
	frame.PixelFormat = "yuv420"

	_, err := Apply(frame, domain.TransformOptions{})
	require.Error(t, err)
}
