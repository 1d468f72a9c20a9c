package detection

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
)

// HoughParams configures circle voting.
type HoughParams struct {
	// MinRadius is the smallest radius voted for. Must be at least 1.
	MinRadius int `json:"min_radius"`

	// MaxRadius bounds the accumulator. Votes are cast for radii in
	// [MinRadius, MaxRadius); the MaxRadius plane exists but stays empty.
	MaxRadius int `json:"max_radius"`

	// VoteThreshold is the count a cell must strictly exceed to become a
	// candidate.
	VoteThreshold int `json:"vote_threshold"`

	// Workers is the number of voting goroutines. Zero uses one per CPU.
	Workers int `json:"workers,omitempty"`
}

// DefaultHoughParams returns the voting parameters used for photographed strips.
func DefaultHoughParams() HoughParams {
	return HoughParams{MinRadius: 10, MaxRadius: 60, VoteThreshold: 130}
}

// Validate checks the radius range and threshold.
func (p HoughParams) Validate() error {
	if p.MinRadius < 1 {
		return fmt.Errorf("%w: min radius %d, must be at least 1", imaging.ErrInvalidInput, p.MinRadius)
	}
	if p.MaxRadius < p.MinRadius {
		return fmt.Errorf("%w: max radius %d below min radius %d", imaging.ErrInvalidInput, p.MaxRadius, p.MinRadius)
	}
	if p.VoteThreshold < 0 {
		return fmt.Errorf("%w: vote threshold %d", imaging.ErrInvalidInput, p.VoteThreshold)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: %d workers", imaging.ErrInvalidInput, p.Workers)
	}
	return nil
}

// angleSteps is the angular resolution of voting: one step per degree.
const angleSteps = 360

// cosTable and sinTable hold cos/sin for each voting angle. They are
// written once at init and only read afterwards.
var cosTable, sinTable = trigTables()

func trigTables() (c, s [angleSteps]float64) {
	for t := 0; t < angleSteps; t++ {
		rad := float64(t) * math.Pi / 180
		c[t] = math.Cos(rad)
		s[t] = math.Sin(rad)
	}
	return c, s
}

// Accumulator is the (x, y, r) vote table of one voting run, stored as one
// flat slice in radius-major order.
//
// For a fixed cell every voting angle lands on exactly one edge pixel, so a
// cell can collect at most 360 votes and uint16 counts cannot overflow.
type Accumulator struct {
	Width     int
	Height    int
	MinRadius int
	MaxRadius int
	votes     []uint16
}

func (a *Accumulator) index(x, y, r int) int {
	return ((r-a.MinRadius)*a.Height+y)*a.Width + x
}

// plane returns the votes for one radius.
func (a *Accumulator) plane(r int) []uint16 {
	n := a.Width * a.Height
	start := (r - a.MinRadius) * n
	return a.votes[start : start+n]
}

// Votes returns the count at (x, y, r). Out-of-range cells have no votes.
func (a *Accumulator) Votes(x, y, r int) int {
	if x < 0 || x >= a.Width || y < 0 || y >= a.Height || r < a.MinRadius || r > a.MaxRadius {
		return 0
	}
	return int(a.votes[a.index(x, y, r)])
}

// Accumulate runs the voting phase over mask.
//
// For every edge pixel (x, y), radius r in [MinRadius, MaxRadius) and angle
// θ in whole degrees, the cell (x - round(r·cos θ), y - round(r·sin θ), r)
// gains one vote when it lies inside the image.
//
// Radii are split across Workers goroutines. Each goroutine owns the planes
// of its radii, so no two goroutines write the same cell and the result does
// not depend on scheduling.
func Accumulate(mask *imaging.EdgeMask, params HoughParams) (*Accumulator, error) {
	if err := validateMask(mask); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	acc := &Accumulator{
		Width:     mask.Width,
		Height:    mask.Height,
		MinRadius: params.MinRadius,
		MaxRadius: params.MaxRadius,
		votes:     make([]uint16, mask.Width*mask.Height*(params.MaxRadius-params.MinRadius+1)),
	}

	edges := edgePoints(mask)
	radii := params.MaxRadius - params.MinRadius
	if len(edges) == 0 || radii == 0 {
		return acc, nil
	}

	workers := params.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > radii {
		workers = radii
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(first int) {
			defer wg.Done()
			for r := params.MinRadius + first; r < params.MaxRadius; r += workers {
				acc.voteRadius(edges, r)
			}
		}(w)
	}
	wg.Wait()

	return acc, nil
}

// voteRadius casts every vote for radius r.
func (a *Accumulator) voteRadius(edges []models.Point, r int) {
	var dx, dy [angleSteps]int
	fr := float64(r)
	for t := 0; t < angleSteps; t++ {
		dx[t] = int(math.Round(fr * cosTable[t]))
		dy[t] = int(math.Round(fr * sinTable[t]))
	}

	plane := a.plane(r)
	w, h := a.Width, a.Height
	for _, p := range edges {
		for t := 0; t < angleSteps; t++ {
			cx := p.X - dx[t]
			cy := p.Y - dy[t]
			if cx < 0 || cx >= w || cy < 0 || cy >= h {
				continue
			}
			plane[cy*w+cx]++
		}
	}
}

// ExtractCandidates scans acc and returns every cell whose count strictly
// exceeds threshold, ordered by x, then y, then r. An empty result is not an
// error.
func ExtractCandidates(acc *Accumulator, threshold int) []models.CandidatePoint {
	var points []models.CandidatePoint
	for x := 0; x < acc.Width; x++ {
		for y := 0; y < acc.Height; y++ {
			for r := acc.MinRadius; r <= acc.MaxRadius; r++ {
				if int(acc.votes[acc.index(x, y, r)]) > threshold {
					points = append(points, models.CandidatePoint{X: x, Y: y, R: r})
				}
			}
		}
	}
	return points
}

// DetectCandidates runs both voting phases.
func DetectCandidates(mask *imaging.EdgeMask, params HoughParams) ([]models.CandidatePoint, error) {
	acc, err := Accumulate(mask, params)
	if err != nil {
		return nil, err
	}
	return ExtractCandidates(acc, params.VoteThreshold), nil
}

func edgePoints(mask *imaging.EdgeMask) []models.Point {
	points := make([]models.Point, 0, 1024)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.IsEdge(x, y) {
				points = append(points, models.Point{X: x, Y: y})
			}
		}
	}
	return points
}

func validateMask(mask *imaging.EdgeMask) error {
	if mask == nil {
		return fmt.Errorf("%w: nil edge mask", imaging.ErrInvalidInput)
	}
	if mask.Width <= 0 || mask.Height <= 0 {
		return fmt.Errorf("%w: edge mask dimensions %dx%d", imaging.ErrInvalidInput, mask.Width, mask.Height)
	}
	if len(mask.Pix) != mask.Width*mask.Height {
		return fmt.Errorf("%w: edge mask has %d bytes, want %d",
			imaging.ErrInvalidInput, len(mask.Pix), mask.Width*mask.Height)
	}
	return nil
}
