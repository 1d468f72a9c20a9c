package imaging

import (
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// EdgeParams configures edge extraction.
type EdgeParams struct {
	// BlurRadius is the radius of the Gaussian applied to the luminance
	// image before gradients are taken. Zero disables smoothing.
	BlurRadius float64 `json:"blur_radius"`

	// ThresholdLow is the weak-edge gradient threshold. Weak pixels survive
	// only when linked to a strong pixel.
	ThresholdLow float64 `json:"threshold_low"`

	// ThresholdHigh is the strong-edge gradient threshold.
	ThresholdHigh float64 `json:"threshold_high"`
}

// DefaultEdgeParams returns the parameters used for photographed strips.
func DefaultEdgeParams() EdgeParams {
	return EdgeParams{BlurRadius: 1, ThresholdLow: 100, ThresholdHigh: 200}
}

// Validate checks that the parameters describe a usable edge extraction.
func (p EdgeParams) Validate() error {
	if p.BlurRadius < 0 || math.IsNaN(p.BlurRadius) || math.IsInf(p.BlurRadius, 0) {
		return fmt.Errorf("%w: blur radius %v", ErrInvalidInput, p.BlurRadius)
	}
	if math.IsNaN(p.ThresholdLow) || math.IsNaN(p.ThresholdHigh) ||
		p.ThresholdLow < 0 || p.ThresholdHigh <= 0 || p.ThresholdLow > p.ThresholdHigh {
		return fmt.Errorf("%w: thresholds low=%v high=%v", ErrInvalidInput, p.ThresholdLow, p.ThresholdHigh)
	}
	return nil
}

// ExtractEdges produces a binary edge mask the same size as buf.
//
// # Algorithm
//
//  1. Luminance: ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B)
//  2. Separable Gaussian blur of the given radius
//  3. 3x3 Sobel gradients on the 0-255 scale, magnitude = sqrt(Gx² + Gy²)
//  4. Non-maximum suppression along the quantised gradient direction
//  5. Hysteresis: pixels at or above ThresholdHigh seed edges, which then
//     grow through 8-connected pixels at or above ThresholdLow
//
// Border pixels are never edges. Output samples are exactly 0 or 255.
func ExtractEdges(buf *PixelBuffer, params EdgeParams) (*EdgeMask, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	width, height := buf.Width, buf.Height
	gray := luminance(buf, params.BlurRadius)
	magnitude, direction := sobel(gray, width, height)
	suppressed := suppressNonMaxima(magnitude, direction, width, height)

	return &EdgeMask{
		Width:  width,
		Height: height,
		Pix:    hysteresis(suppressed, width, height, params.ThresholdLow, params.ThresholdHigh),
	}, nil
}

// luminance converts buf to grayscale and smooths it, returning one float
// per pixel on the 0-255 scale.
func luminance(buf *PixelBuffer, radius float64) []float64 {
	var img image.Image = imaging.Grayscale(buf.ToImage())
	if radius > 0 {
		img = blur.Gaussian(img, radius)
	}

	var pix []uint8
	var stride int
	switch v := img.(type) {
	case *image.RGBA:
		pix, stride = v.Pix, v.Stride
	case *image.NRGBA:
		pix, stride = v.Pix, v.Stride
	}

	gray := make([]float64, buf.Width*buf.Height)
	for y := 0; y < buf.Height; y++ {
		row := pix[y*stride:]
		for x := 0; x < buf.Width; x++ {
			gray[y*buf.Width+x] = float64(row[x*4])
		}
	}
	return gray
}

var (
	sobelX = [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY = [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// sobel computes gradient magnitude and direction. Out-of-range taps use
// clamped (replicated) edge values.
func sobel(gray []float64, width, height int) (magnitude, direction []float64) {
	magnitude = make([]float64, width*height)
	direction = make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				py := clamp(y+ky, 0, height-1)
				for kx := -1; kx <= 1; kx++ {
					px := clamp(x+kx, 0, width-1)
					v := gray[py*width+px]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			i := y*width + x
			magnitude[i] = math.Sqrt(gx*gx + gy*gy)
			direction[i] = math.Atan2(gy, gx)
		}
	}
	return magnitude, direction
}

// suppressNonMaxima keeps only pixels that are local maxima along their
// gradient direction, thinning edges to roughly one pixel.
func suppressNonMaxima(magnitude, direction []float64, width, height int) []float64 {
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			default:
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}
	return suppressed
}

// hysteresis links weak edges to strong ones with an explicit stack.
func hysteresis(suppressed []float64, width, height int, low, high float64) []uint8 {
	out := make([]uint8, width*height)
	stack := make([]int, 0, 256)

	for i, v := range suppressed {
		if v > 0 && v >= high {
			out[i] = 255
			stack = append(stack, i)
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width

		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
					continue
				}
				n := ny*width + nx
				if out[n] == 0 && suppressed[n] > 0 && suppressed[n] >= low {
					out[n] = 255
					stack = append(stack, n)
				}
			}
		}
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// EdgeDetectResult contains an edge mask encoded as base64 PNG.
type EdgeDetectResult struct {
	// Width of the mask in pixels (same as input).
	Width int `json:"width"`

	// Height of the mask in pixels (same as input).
	Height int `json:"height"`

	// EdgePixels is the number of pixels marked as edges.
	EdgePixels int `json:"edge_pixels"`

	// ImageBase64 is the mask encoded as base64 PNG, edges in white.
	ImageBase64 string `json:"image_base64"`

	// MimeType is always "image/png".
	MimeType string `json:"mime_type"`
}

// EdgeDetect runs ExtractEdges on an arbitrary image and encodes the mask.
func EdgeDetect(img image.Image, params EdgeParams) (*EdgeDetectResult, error) {
	buf, err := FromImage(img)
	if err != nil {
		return nil, err
	}
	mask, err := ExtractEdges(buf, params)
	if err != nil {
		return nil, err
	}

	data, err := EncodePNG(mask.ToGray())
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge image: %w", err)
	}

	return &EdgeDetectResult{
		Width:       mask.Width,
		Height:      mask.Height,
		EdgePixels:  mask.Count(),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/png",
	}, nil
}
