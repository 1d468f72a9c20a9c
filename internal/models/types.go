// Package models holds the plain records passed between pipeline stages.
package models

import "time"

// Point is an integer pixel coordinate. The white point is reported as a Point.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Circle is a detected marker. The centre is real-valued because it is a
// cluster centroid; it is rounded only when a pixel is sampled.
type Circle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// CandidatePoint is a Hough accumulator cell whose vote count exceeded the threshold.
type CandidatePoint struct {
	X int
	Y int
	R int
}

// LabColor is a CIE L*a*b* triple (D65 reference white).
type LabColor struct {
	L float64 `json:"l"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// ColorSample is a circle annotated with the corrected colour at its centre.
type ColorSample struct {
	X      int      `json:"x"`
	Y      int      `json:"y"`
	Radius float64  `json:"radius"`
	Red    uint8    `json:"red"`
	Green  uint8    `json:"green"`
	Blue   uint8    `json:"blue"`
	Hex    string   `json:"hex"`
	Lab    LabColor `json:"lab"`
}

// ProcessingTimings records how long each pipeline stage took for one run.
type ProcessingTimings struct {
	RequestID   string        `json:"request_id,omitempty"`
	ImageDecode time.Duration `json:"image_decode"`
	Edges       time.Duration `json:"edges"`
	Voting      time.Duration `json:"voting"`
	Clustering  time.Duration `json:"clustering"`
	ColourBlur  time.Duration `json:"colour_blur"`
	Retinex     time.Duration `json:"retinex"`
	Sampling    time.Duration `json:"sampling"`
	Total       time.Duration `json:"total"`
}
