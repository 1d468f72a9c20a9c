package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/strip-detect/internal/models"
)

type rgb struct{ r, g, b uint8 }

var (
	circleColor = rgb{255, 0, 0}
	whiteColor  = rgb{0, 160, 255}
	labelFG     = rgb{255, 255, 255}
	labelBG     = rgb{0, 0, 0}
)

// Annotate returns a copy of buf with each circle outlined, a crosshair at
// each centre and at the white point, and each circle's radius printed
// beside it. Marks falling outside the buffer are skipped.
func Annotate(buf *PixelBuffer, circles []models.Circle, white models.Point) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	out := buf.Clone()

	for _, c := range circles {
		cx := int(math.Round(c.X))
		cy := int(math.Round(c.Y))
		drawCircle(out, c.X, c.Y, c.Radius, circleColor)
		drawCross(out, cx, cy, 4, circleColor)
		label := fmt.Sprintf("%d", int(math.Round(c.Radius)))
		drawLabel(out, cx+int(c.Radius)+3, cy-3, label, labelFG, labelBG)
	}
	drawCross(out, white.X, white.Y, 6, whiteColor)

	return out, nil
}

func setPixel(buf *PixelBuffer, x, y int, c rgb) {
	if !buf.InBounds(x, y) {
		return
	}
	i := (y*buf.Width + x) * buf.Channels
	buf.Pix[i] = c.r
	buf.Pix[i+1] = c.g
	buf.Pix[i+2] = c.b
	if buf.Channels == 4 {
		buf.Pix[i+3] = 0xFF
	}
}

// drawCircle plots the outline with one sample per pixel of circumference.
func drawCircle(buf *PixelBuffer, cx, cy, radius float64, c rgb) {
	steps := int(math.Ceil(2*math.Pi*radius)) + 1
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		x := int(math.Round(cx + radius*math.Cos(t)))
		y := int(math.Round(cy + radius*math.Sin(t)))
		setPixel(buf, x, y, c)
	}
}

func drawCross(buf *PixelBuffer, x, y, size int, c rgb) {
	for d := -size; d <= size; d++ {
		setPixel(buf, x+d, y, c)
		setPixel(buf, x, y+d, c)
	}
}

// glyphs is a 3x5 pixel font for digits.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
}

// drawLabel draws text on a filled background box with its top-left at (x, y).
func drawLabel(buf *PixelBuffer, x, y int, text string, fg, bg rgb) {
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setPixel(buf, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setPixel(buf, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
