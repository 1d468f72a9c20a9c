package imaging

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/strip-detect/internal/models"
)

// SampleCircles reads the colour at the centre of each circle.
//
// Centres are rounded to the nearest pixel (halves away from zero). The
// result is in the same order as circles. If any rounded centre lies outside
// the buffer, ErrOutOfBounds is returned and no partial result is produced.
//
// Each sample also carries the colour as "#rrggbb" and as CIE L*a*b*
// (D65), computed by go-colorful from the sRGB values.
func SampleCircles(buf *PixelBuffer, circles []models.Circle) ([]models.ColorSample, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	samples := make([]models.ColorSample, 0, len(circles))
	for _, c := range circles {
		x := int(math.Round(c.X))
		y := int(math.Round(c.Y))
		if !buf.InBounds(x, y) {
			return nil, fmt.Errorf("%w: circle centre (%d,%d) outside %dx%d image",
				ErrOutOfBounds, x, y, buf.Width, buf.Height)
		}
		r, g, b := buf.RGB(x, y)
		samples = append(samples, describe(x, y, c.Radius, r, g, b))
	}
	return samples, nil
}

// SamplePoint reads the colour at a single pixel. Radius is left at zero.
func SamplePoint(buf *PixelBuffer, x, y int) (models.ColorSample, error) {
	if err := buf.Validate(); err != nil {
		return models.ColorSample{}, err
	}
	if !buf.InBounds(x, y) {
		return models.ColorSample{}, fmt.Errorf("%w: (%d,%d) outside %dx%d image",
			ErrOutOfBounds, x, y, buf.Width, buf.Height)
	}
	r, g, b := buf.RGB(x, y)
	return describe(x, y, 0, r, g, b), nil
}

func describe(x, y int, radius float64, r, g, b uint8) models.ColorSample {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	l, a, bb := c.Lab()
	return models.ColorSample{
		X:      x,
		Y:      y,
		Radius: radius,
		Red:    r,
		Green:  g,
		Blue:   b,
		Hex:    c.Hex(),
		Lab:    models.LabColor{L: round3(l * 100), A: round3(a * 100), B: round3(bb * 100)},
	}
}

// round3 rounds to three decimal places for stable JSON output.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
