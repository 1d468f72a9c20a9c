package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/strip-detect/internal/models"
)

// ScaleFactors are the per-channel multipliers that map the reference
// colour to neutral white.
type ScaleFactors struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// ReferenceScale reads the colour at white and returns 255/sample for each
// colour channel.
func ReferenceScale(buf *PixelBuffer, white models.Point) (ScaleFactors, error) {
	if err := buf.Validate(); err != nil {
		return ScaleFactors{}, err
	}
	if !buf.InBounds(white.X, white.Y) {
		return ScaleFactors{}, fmt.Errorf("%w: white point (%d,%d) outside %dx%d image",
			ErrOutOfBounds, white.X, white.Y, buf.Width, buf.Height)
	}
	r, g, b := buf.RGB(white.X, white.Y)
	if r == 0 || g == 0 || b == 0 {
		return ScaleFactors{}, fmt.Errorf("%w: reference colour (%d,%d,%d) at (%d,%d)",
			ErrZeroReferenceChannel, r, g, b, white.X, white.Y)
	}
	return ScaleFactors{
		R: 255 / float64(r),
		G: 255 / float64(g),
		B: 255 / float64(b),
	}, nil
}

// RetinexCorrect white-balances buf so the pixel at white becomes
// (255,255,255). Every colour channel c is replaced by
// clamp(round(c*scale_c), 0, 255); alpha, when present, is forced opaque.
// The input buffer is not modified.
func RetinexCorrect(buf *PixelBuffer, white models.Point) (*PixelBuffer, ScaleFactors, error) {
	scale, err := ReferenceScale(buf, white)
	if err != nil {
		return nil, ScaleFactors{}, err
	}

	out := &PixelBuffer{
		Width:    buf.Width,
		Height:   buf.Height,
		Channels: buf.Channels,
		Pix:      make([]uint8, len(buf.Pix)),
	}
	ch := buf.Channels
	for i := 0; i < len(buf.Pix); i += ch {
		out.Pix[i] = scaleChannel(buf.Pix[i], scale.R)
		out.Pix[i+1] = scaleChannel(buf.Pix[i+1], scale.G)
		out.Pix[i+2] = scaleChannel(buf.Pix[i+2], scale.B)
		if ch == 4 {
			out.Pix[i+3] = 0xFF
		}
	}
	return out, scale, nil
}

func scaleChannel(v uint8, scale float64) uint8 {
	s := math.Round(float64(v) * scale)
	if s > 255 {
		return 255
	}
	if s < 0 {
		return 0
	}
	return uint8(s)
}
