package imaging

import (
	"fmt"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultColourBlurRadius is the sigma used to smooth the colour image
// before white balancing, so single noisy pixels do not skew the reference.
const DefaultColourBlurRadius = 3.0

// ColourBlur applies a Gaussian blur of the given sigma to every channel and
// returns a new buffer with the same channel layout. A zero radius returns
// a copy.
func ColourBlur(buf *PixelBuffer, radius float64) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: colour blur radius %v", ErrInvalidInput, radius)
	}
	if radius == 0 {
		return buf.Clone(), nil
	}
	return fromNRGBA(imaging.Blur(buf.ToImage(), radius), buf.Channels), nil
}
