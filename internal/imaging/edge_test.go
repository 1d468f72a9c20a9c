package imaging

import (
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
)

// createEdgeTestImage creates a black rectangle on a white background
func createEdgeTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// createDiscImage draws a filled disc on a flat background
func createDiscImage(width, height, cx, cy, radius int, bg, fg color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, fg)
			} else {
				img.Set(x, y, bg)
			}
		}
	}
	return img
}

func TestExtractEdges_Step(t *testing.T) {
	// Vertical step from black to white at x = 20
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			if x < 20 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	buf, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}

	mask, err := ExtractEdges(buf, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	if mask.Width != 40 || mask.Height != 30 {
		t.Fatalf("mask dimensions: got %dx%d, want 40x30", mask.Width, mask.Height)
	}

	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			v := mask.Pix[y*mask.Width+x]
			if v != 0 && v != 255 {
				t.Fatalf("mask value at (%d,%d) is %d, want 0 or 255", x, y, v)
			}
			if v == 255 && (x < 17 || x > 22) {
				t.Errorf("unexpected edge at (%d,%d) far from the step", x, y)
			}
		}
	}

	// Every interior row crosses the step
	for y := 1; y < mask.Height-1; y++ {
		found := false
		for x := 17; x <= 22; x++ {
			if mask.IsEdge(x, y) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("row %d has no edge at the step", y)
		}
	}
}

func TestExtractEdges_BorderNeverEdge(t *testing.T) {
	buf, err := FromImage(createEdgeTestImage(60, 60))
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	mask, err := ExtractEdges(buf, EdgeParams{BlurRadius: 0, ThresholdLow: 10, ThresholdHigh: 50})
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	for x := 0; x < mask.Width; x++ {
		if mask.IsEdge(x, 0) || mask.IsEdge(x, mask.Height-1) {
			t.Fatalf("border pixel in column %d marked as edge", x)
		}
	}
	for y := 0; y < mask.Height; y++ {
		if mask.IsEdge(0, y) || mask.IsEdge(mask.Width-1, y) {
			t.Fatalf("border pixel in row %d marked as edge", y)
		}
	}
	if mask.Count() == 0 {
		t.Error("expected edges around the rectangle")
	}
}

func TestExtractEdges_DiscRing(t *testing.T) {
	img := createDiscImage(80, 80, 40, 40, 20, color.RGBA{220, 220, 220, 255}, color.RGBA{30, 30, 120, 255})
	buf, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}

	mask, err := ExtractEdges(buf, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	if mask.Count() < 60 {
		t.Fatalf("expected a ring of edges, got %d pixels", mask.Count())
	}
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if !mask.IsEdge(x, y) {
				continue
			}
			d := math.Hypot(float64(x-40), float64(y-40))
			if math.Abs(d-20) > 2.5 {
				t.Errorf("edge at (%d,%d) is %.1f from the centre, want about 20", x, y, d)
			}
		}
	}
}

func TestExtractEdges_Deterministic(t *testing.T) {
	buf, err := FromImage(createDiscImage(50, 50, 25, 25, 12, color.White, color.Black))
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	a, err := ExtractEdges(buf, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	b, err := ExtractEdges(buf, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	if string(a.Pix) != string(b.Pix) {
		t.Error("identical input produced different masks")
	}
}

func TestExtractEdges_UniformImage(t *testing.T) {
	buf := createInMemoryBuffer(t, 50, 50, color.RGBA{128, 128, 128, 255})

	mask, err := ExtractEdges(buf, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	if mask.Count() != 0 {
		t.Errorf("uniform image has %d edge pixels, want 0", mask.Count())
	}
}

func TestExtractEdges_InputNotModified(t *testing.T) {
	buf, err := FromImage(createEdgeTestImage(40, 40))
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	before := buf.Clone()
	if _, err := ExtractEdges(buf, DefaultEdgeParams()); err != nil {
		t.Fatalf("ExtractEdges failed: %v", err)
	}
	if string(before.Pix) != string(buf.Pix) {
		t.Error("ExtractEdges modified its input")
	}
}

func TestExtractEdges_InvalidInput(t *testing.T) {
	valid := createInMemoryBuffer(t, 10, 10, color.RGBA{0, 0, 0, 255})

	tests := []struct {
		name   string
		buf    *PixelBuffer
		params EdgeParams
	}{
		{"nil buffer", nil, DefaultEdgeParams()},
		{"zero width", &PixelBuffer{Width: 0, Height: 10, Channels: 4}, DefaultEdgeParams()},
		{"short pixel data", &PixelBuffer{Width: 10, Height: 10, Channels: 4, Pix: make([]uint8, 10)}, DefaultEdgeParams()},
		{"two channels", &PixelBuffer{Width: 2, Height: 2, Channels: 2, Pix: make([]uint8, 8)}, DefaultEdgeParams()},
		{"negative blur", valid, EdgeParams{BlurRadius: -1, ThresholdLow: 100, ThresholdHigh: 200}},
		{"low above high", valid, EdgeParams{BlurRadius: 1, ThresholdLow: 250, ThresholdHigh: 200}},
		{"zero high", valid, EdgeParams{BlurRadius: 1, ThresholdLow: 0, ThresholdHigh: 0}},
		{"NaN low", valid, EdgeParams{BlurRadius: 1, ThresholdLow: math.NaN(), ThresholdHigh: 200}},
		{"NaN high", valid, EdgeParams{BlurRadius: 1, ThresholdLow: 100, ThresholdHigh: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractEdges(tt.buf, tt.params)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestEdgeDetect(t *testing.T) {
	// Create an image with a clear edge (black rectangle on white background)
	img := createEdgeTestImage(100, 100)

	result, err := EdgeDetect(img, DefaultEdgeParams())
	if err != nil {
		t.Fatalf("EdgeDetect failed: %v", err)
	}

	if result.Width != 100 || result.Height != 100 {
		t.Errorf("dimensions: got %dx%d, want 100x100", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}
	if result.EdgePixels == 0 {
		t.Error("expected edge pixels around the rectangle")
	}

	// Verify base64 can be decoded
	decoded, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}

	// Verify it's a valid PNG
	edgeImg, err := png.Decode(strings.NewReader(string(decoded)))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	if edgeImg.Bounds().Dx() != 100 || edgeImg.Bounds().Dy() != 100 {
		t.Errorf("decoded image dimensions: got %dx%d, want 100x100",
			edgeImg.Bounds().Dx(), edgeImg.Bounds().Dy())
	}
}

func TestEdgeMask_ToRGBA(t *testing.T) {
	mask := &EdgeMask{Width: 2, Height: 1, Pix: []uint8{0, 255}}
	buf := mask.ToRGBA()
	if err := buf.Validate(); err != nil {
		t.Fatalf("ToRGBA produced an invalid buffer: %v", err)
	}
	want := []uint8{0, 0, 0, 255, 255, 255, 255, 255}
	if string(buf.Pix) != string(want) {
		t.Errorf("ToRGBA: got %v, want %v", buf.Pix, want)
	}
}
