package detection

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
)

// ReferenceCircles splits two circles into the larger (reference) and the
// smaller (secondary). Equal radii are broken by the smaller centre X, then
// the smaller centre Y, so the choice never depends on input order.
func ReferenceCircles(circles []models.Circle) (reference, secondary models.Circle, err error) {
	if len(circles) != 2 {
		return models.Circle{}, models.Circle{}, fmt.Errorf("%w: need exactly 2 circles, got %d",
			imaging.ErrInvalidInput, len(circles))
	}
	a, b := circles[0], circles[1]
	switch {
	case a.Radius > b.Radius:
		return a, b, nil
	case b.Radius > a.Radius:
		return b, a, nil
	case a.X < b.X || (a.X == b.X && a.Y <= b.Y):
		return a, b, nil
	default:
		return b, a, nil
	}
}

// LocateWhitePoint extrapolates the neutral reference pixel from the two
// marker circles.
//
// With d the distance between centres, the point lies on the line from the
// secondary centre s through the reference centre c at
//
//	s + t·(c - s),  t = (d + 2·R) / d
//
// where R is the reference radius, i.e. 2R beyond the reference centre on
// the side away from the secondary circle. Coordinates are rounded to the nearest pixel.
// Coincident centres yield ErrDegenerateGeometry. The result is not checked
// against any image bounds; sampling does that.
func LocateWhitePoint(circles []models.Circle) (models.Point, error) {
	ref, sec, err := ReferenceCircles(circles)
	if err != nil {
		return models.Point{}, err
	}

	c := r2.Vec{X: ref.X, Y: ref.Y}
	s := r2.Vec{X: sec.X, Y: sec.Y}
	span := r2.Sub(c, s)
	d := r2.Norm(span)
	if d == 0 {
		return models.Point{}, fmt.Errorf("%w: both circle centres at (%g,%g)",
			imaging.ErrDegenerateGeometry, ref.X, ref.Y)
	}

	t := (d + 2*ref.Radius) / d
	wp := r2.Add(s, r2.Scale(t, span))
	return models.Point{X: int(math.Round(wp.X)), Y: int(math.Round(wp.Y))}, nil
}
