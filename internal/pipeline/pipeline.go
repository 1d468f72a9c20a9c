// Package pipeline runs the strip reader stages in order and collects their
// outputs.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/strip-detect/internal/detection"
	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
)

// Params holds the parameters of every stage.
type Params struct {
	Edge             imaging.EdgeParams    `json:"edge"`
	Hough            detection.HoughParams `json:"hough"`
	ColourBlurRadius float64               `json:"colour_blur_radius"`
	Seed             int64                 `json:"seed"`
}

// DefaultParams returns the parameters used for photographed strips.
func DefaultParams() Params {
	return Params{
		Edge:             imaging.DefaultEdgeParams(),
		Hough:            detection.DefaultHoughParams(),
		ColourBlurRadius: imaging.DefaultColourBlurRadius,
		Seed:             1,
	}
}

// Validate checks the parameters of every stage.
func (p Params) Validate() error {
	if err := p.Edge.Validate(); err != nil {
		return err
	}
	if err := p.Hough.Validate(); err != nil {
		return err
	}
	if r := p.ColourBlurRadius; r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("%w: colour blur radius %v", imaging.ErrInvalidInput, p.ColourBlurRadius)
	}
	return nil
}

// Result is everything one run produced. It is only returned when every
// stage succeeded.
type Result struct {
	// Edges is the binary edge mask.
	Edges *imaging.EdgeMask

	// Blurred is the colour-blurred input that white balancing reads from.
	Blurred *imaging.PixelBuffer

	// Balanced is Blurred after retinex correction.
	Balanced *imaging.PixelBuffer

	// Candidates is the number of accumulator cells above the vote threshold.
	Candidates int

	// Circles are the two markers, ordered by X then Y.
	Circles []models.Circle

	WhitePoint models.Point
	Scale      imaging.ScaleFactors

	// Samples holds one corrected colour per circle, in Circles order.
	Samples []models.ColorSample

	Timings models.ProcessingTimings
}

// Pipeline runs the stages with fixed parameters. It holds no per-run
// state and may be shared between goroutines.
type Pipeline struct {
	params Params
	log    zerolog.Logger
}

// New validates params and returns a Pipeline that logs to log unless the
// run context carries its own logger.
func New(params Params, log zerolog.Logger) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{params: params, log: log}, nil
}

// Params returns the parameters the pipeline was built with.
func (p *Pipeline) Params() Params {
	return p.params
}

// Run executes every stage on buf, which is not modified.
//
// ctx is checked between stages; a cancelled run returns ctx.Err(). A stage
// failure is returned as "<stage>: <cause>" with the cause's error kind
// preserved for errors.Is.
func (p *Pipeline) Run(ctx context.Context, buf *imaging.PixelBuffer) (*Result, error) {
	log := p.logger(ctx)
	start := time.Now()
	res := &Result{}
	t := &res.Timings

	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	var err error
	stage := func(name string, d *time.Duration, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := time.Now()
		err := fn()
		*d = time.Since(s)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	var candidates []models.CandidatePoint
	steps := []struct {
		name string
		d    *time.Duration
		fn   func() error
	}{
		{"edges", &t.Edges, func() error {
			res.Edges, err = imaging.ExtractEdges(buf, p.params.Edge)
			return err
		}},
		{"voting", &t.Voting, func() error {
			candidates, err = detection.DetectCandidates(res.Edges, p.params.Hough)
			res.Candidates = len(candidates)
			return err
		}},
		{"clustering", &t.Clustering, func() error {
			res.Circles, err = detection.Cluster(candidates, p.params.Seed)
			if err != nil {
				return err
			}
			res.WhitePoint, err = detection.LocateWhitePoint(res.Circles)
			return err
		}},
		{"colour blur", &t.ColourBlur, func() error {
			res.Blurred, err = imaging.ColourBlur(buf, p.params.ColourBlurRadius)
			return err
		}},
		{"retinex", &t.Retinex, func() error {
			res.Balanced, res.Scale, err = imaging.RetinexCorrect(res.Blurred, res.WhitePoint)
			return err
		}},
		{"sampling", &t.Sampling, func() error {
			res.Samples, err = imaging.SampleCircles(res.Balanced, res.Circles)
			return err
		}},
	}

	for _, s := range steps {
		if err := stage(s.name, s.d, s.fn); err != nil {
			log.Debug().Err(err).
				Str("kind", imaging.Kind(err)).
				Int("candidates", res.Candidates).
				Msg("pipeline stopped")
			return nil, err
		}
	}
	t.Total = time.Since(start)

	log.Debug().
		Int("width", buf.Width).
		Int("height", buf.Height).
		Int("edge_pixels", res.Edges.Count()).
		Int("candidates", res.Candidates).
		Interface("circles", res.Circles).
		Interface("white_point", res.WhitePoint).
		Dur("edges", t.Edges).
		Dur("voting", t.Voting).
		Dur("clustering", t.Clustering).
		Dur("colour_blur", t.ColourBlur).
		Dur("retinex", t.Retinex).
		Dur("sampling", t.Sampling).
		Dur("total", t.Total).
		Msg("processing times")

	return res, nil
}

// logger prefers a logger attached to ctx with zerolog's WithContext.
func (p *Pipeline) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &p.log
}
