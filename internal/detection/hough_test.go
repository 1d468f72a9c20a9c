package detection

import (
	"errors"
	"math"
	"testing"

	"github.com/ironsheep/strip-detect/internal/imaging"
)

// createEmptyMask creates an edge mask with no edges
func createEmptyMask(width, height int) *imaging.EdgeMask {
	return &imaging.EdgeMask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// drawRing marks every pixel within one pixel of the given radius as an edge
func drawRing(mask *imaging.EdgeMask, cx, cy, radius int) {
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if math.Abs(d-float64(radius)) <= 1 {
				mask.Pix[y*mask.Width+x] = 255
			}
		}
	}
}

func TestAccumulate_RingCentre(t *testing.T) {
	mask := createEmptyMask(80, 80)
	drawRing(mask, 40, 40, 15)

	acc, err := Accumulate(mask, HoughParams{MinRadius: 10, MaxRadius: 20, VoteThreshold: 100})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	// Every angle lands on the ring when voting from the true centre
	if got := acc.Votes(40, 40, 15); got != 360 {
		t.Errorf("votes at the ring centre: got %d, want 360", got)
	}
	if acc.Votes(40, 40, 15) <= acc.Votes(45, 40, 15) {
		t.Error("centre should collect more votes than an offset cell")
	}
}

func TestAccumulate_SingleEdgePixel(t *testing.T) {
	mask := createEmptyMask(60, 60)
	mask.Pix[30*60+30] = 255

	acc, err := Accumulate(mask, HoughParams{MinRadius: 5, MaxRadius: 8, VoteThreshold: 0})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	for r := 5; r <= 8; r++ {
		total := 0
		for y := 0; y < 60; y++ {
			for x := 0; x < 60; x++ {
				total += acc.Votes(x, y, r)
			}
		}
		want := 360
		if r == 8 {
			// MaxRadius is never voted for
			want = 0
		}
		if total != want {
			t.Errorf("radius %d: got %d votes, want %d", r, total, want)
		}
	}
}

func TestAccumulate_OutOfImageVotesDropped(t *testing.T) {
	mask := createEmptyMask(20, 20)
	mask.Pix[0] = 255

	acc, err := Accumulate(mask, HoughParams{MinRadius: 5, MaxRadius: 6, VoteThreshold: 0})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	total := 0
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			total += acc.Votes(x, y, 5)
		}
	}
	// From the corner only the quadrant of angles in [180°, 270°] points inside
	if total == 0 || total >= 360 {
		t.Errorf("corner pixel cast %d in-image votes, want between 1 and 359", total)
	}
}

func TestAccumulate_WorkerCountIndependent(t *testing.T) {
	mask := createEmptyMask(70, 50)
	drawRing(mask, 20, 25, 9)
	drawRing(mask, 48, 24, 14)

	base, err := Accumulate(mask, HoughParams{MinRadius: 5, MaxRadius: 18, Workers: 1})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	for _, workers := range []int{2, 3, 8, 64} {
		acc, err := Accumulate(mask, HoughParams{MinRadius: 5, MaxRadius: 18, Workers: workers})
		if err != nil {
			t.Fatalf("Accumulate with %d workers failed: %v", workers, err)
		}
		for i := range base.votes {
			if base.votes[i] != acc.votes[i] {
				t.Fatalf("%d workers: vote %d differs (%d vs %d)", workers, i, acc.votes[i], base.votes[i])
			}
		}
	}
}

func TestAccumulate_EqualRadii(t *testing.T) {
	mask := createEmptyMask(30, 30)
	drawRing(mask, 15, 15, 5)

	cands, err := DetectCandidates(mask, HoughParams{MinRadius: 5, MaxRadius: 5, VoteThreshold: 0})
	if err != nil {
		t.Fatalf("DetectCandidates failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("an empty voting range produced %d candidates", len(cands))
	}
}

func TestAccumulate_InvalidInput(t *testing.T) {
	valid := createEmptyMask(10, 10)

	tests := []struct {
		name   string
		mask   *imaging.EdgeMask
		params HoughParams
	}{
		{"nil mask", nil, DefaultHoughParams()},
		{"zero height", &imaging.EdgeMask{Width: 10}, DefaultHoughParams()},
		{"short pixel data", &imaging.EdgeMask{Width: 10, Height: 10, Pix: make([]uint8, 9)}, DefaultHoughParams()},
		{"zero min radius", valid, HoughParams{MinRadius: 0, MaxRadius: 5}},
		{"max below min", valid, HoughParams{MinRadius: 6, MaxRadius: 5}},
		{"negative threshold", valid, HoughParams{MinRadius: 1, MaxRadius: 5, VoteThreshold: -1}},
		{"negative workers", valid, HoughParams{MinRadius: 1, MaxRadius: 5, Workers: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Accumulate(tt.mask, tt.params); !errors.Is(err, imaging.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestExtractCandidates(t *testing.T) {
	mask := createEmptyMask(80, 80)
	drawRing(mask, 40, 40, 15)

	acc, err := Accumulate(mask, HoughParams{MinRadius: 10, MaxRadius: 20})
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	// Strictly greater than: a threshold equal to the maximum yields nothing
	if got := ExtractCandidates(acc, 360); len(got) != 0 {
		t.Errorf("threshold 360: got %d candidates, want 0", len(got))
	}

	cands := ExtractCandidates(acc, 300)
	if len(cands) == 0 {
		t.Fatal("threshold 300: expected candidates")
	}
	found := false
	for i, c := range cands {
		if c.X == 40 && c.Y == 40 && c.R == 15 {
			found = true
		}
		if abs(c.X-40) > 2 || abs(c.Y-40) > 2 || abs(c.R-15) > 2 {
			t.Errorf("candidate %+v far from the ring", c)
		}
		if i > 0 {
			p := cands[i-1]
			if p.X > c.X || (p.X == c.X && p.Y > c.Y) || (p.X == c.X && p.Y == c.Y && p.R >= c.R) {
				t.Errorf("candidates out of x,y,r order: %+v before %+v", p, c)
			}
		}
	}
	if !found {
		t.Error("ring centre missing from candidates")
	}
}

func TestDetectCandidates_NoEdges(t *testing.T) {
	cands, err := DetectCandidates(createEmptyMask(40, 40), DefaultHoughParams())
	if err != nil {
		t.Fatalf("DetectCandidates failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("got %d candidates from an empty mask", len(cands))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
