package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// PixelBuffer is a row-major 8-bit image with 3 (RGB) or 4 (RGBA) channels.
//
// Stages never mutate a buffer they were handed; transforms return a fresh
// buffer. Channel count and order are preserved end to end.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewPixelBuffer allocates a zeroed buffer. Channels must be 3 or 4.
func NewPixelBuffer(width, height, channels int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: buffer dimensions %dx%d", ErrInvalidInput, width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d channels, want 3 or 4", ErrInvalidInput, channels)
	}
	return &PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// FromImage converts any image.Image into a 4-channel, non-premultiplied buffer.
func FromImage(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image dimensions %dx%d", ErrInvalidInput, b.Dx(), b.Dy())
	}
	nrgba := imaging.Clone(img)
	return &PixelBuffer{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: 4,
		Pix:      nrgba.Pix,
	}, nil
}

// Validate checks the buffer's dimensions, channel count and backing slice.
func (p *PixelBuffer) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidInput)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: buffer dimensions %dx%d", ErrInvalidInput, p.Width, p.Height)
	}
	if p.Channels != 3 && p.Channels != 4 {
		return fmt.Errorf("%w: %d channels, want 3 or 4", ErrInvalidInput, p.Channels)
	}
	if len(p.Pix) != p.Width*p.Height*p.Channels {
		return fmt.Errorf("%w: pixel data has %d bytes, want %d",
			ErrInvalidInput, len(p.Pix), p.Width*p.Height*p.Channels)
	}
	return nil
}

// InBounds reports whether (x, y) addresses a pixel of the buffer.
func (p *PixelBuffer) InBounds(x, y int) bool {
	return x >= 0 && x < p.Width && y >= 0 && y < p.Height
}

// RGB returns the colour channels at (x, y). The caller must check bounds.
func (p *PixelBuffer) RGB(x, y int) (r, g, b uint8) {
	i := (y*p.Width + x) * p.Channels
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Clone returns a deep copy of the buffer.
func (p *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(p.Pix))
	copy(pix, p.Pix)
	return &PixelBuffer{Width: p.Width, Height: p.Height, Channels: p.Channels, Pix: pix}
}

// ToImage returns the buffer as an *image.NRGBA. Three-channel buffers are
// given an opaque alpha channel.
func (p *PixelBuffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	if p.Channels == 4 {
		copy(img.Pix, p.Pix)
		return img
	}
	for i, j := 0, 0; i < len(p.Pix); i, j = i+3, j+4 {
		img.Pix[j] = p.Pix[i]
		img.Pix[j+1] = p.Pix[i+1]
		img.Pix[j+2] = p.Pix[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img
}

// fromNRGBA copies img into a buffer with the given channel count.
func fromNRGBA(img *image.NRGBA, channels int) *PixelBuffer {
	b := img.Bounds()
	out := &PixelBuffer{Width: b.Dx(), Height: b.Dy(), Channels: channels}
	if channels == 4 && img.Stride == 4*b.Dx() {
		out.Pix = make([]uint8, len(img.Pix))
		copy(out.Pix, img.Pix)
		return out
	}
	out.Pix = make([]uint8, out.Width*out.Height*channels)
	for y := 0; y < out.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < out.Width; x++ {
			src := row[x*4:]
			dst := out.Pix[(y*out.Width+x)*channels:]
			copy(dst[:channels], src[:channels])
		}
	}
	return out
}

// EdgeMask is a single-channel binary image: 0 for non-edge, 255 for edge.
type EdgeMask struct {
	Width  int
	Height int
	Pix    []uint8
}

// IsEdge reports whether (x, y) is an edge pixel. The caller must check bounds.
func (m *EdgeMask) IsEdge(x, y int) bool {
	return m.Pix[y*m.Width+x] != 0
}

// Count returns the number of edge pixels.
func (m *EdgeMask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// ToGray returns the mask as an *image.Gray.
func (m *EdgeMask) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Pix)
	return img
}

// ToRGBA renders the mask as a grayscale-in-RGBA buffer for encoding.
func (m *EdgeMask) ToRGBA() *PixelBuffer {
	out := &PixelBuffer{
		Width:    m.Width,
		Height:   m.Height,
		Channels: 4,
		Pix:      make([]uint8, m.Width*m.Height*4),
	}
	for i, v := range m.Pix {
		out.Pix[4*i] = v
		out.Pix[4*i+1] = v
		out.Pix[4*i+2] = v
		out.Pix[4*i+3] = 0xFF
	}
	return out
}
