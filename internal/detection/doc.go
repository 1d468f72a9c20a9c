// Package detection finds the two marker circles on a strip photo and the
// neutral reference point they imply.
//
// # Pipeline
//
//  1. Voting: Accumulate casts Hough circle votes from an imaging.EdgeMask
//     into a flat (x, y, r) Accumulator; ExtractCandidates keeps the cells
//     whose count exceeds a threshold.
//  2. Clustering: Cluster groups the candidate cells into exactly two
//     clusters with seeded k-means and returns their centroids as circles.
//  3. White point: LocateWhitePoint extrapolates past the larger circle
//     along the line through both centres.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Performance Considerations
//
// Voting costs edge pixels × radii × 360 increments and dominates the
// run time. The accumulator holds width × height × (MaxRadius-MinRadius+1)
// uint16 counts, so the radius range is the main memory knob. Voting is
// spread over HoughParams.Workers goroutines by radius.
//
// # Limitations
//
// The voter assumes two high-contrast, near-circular markers of different
// size. Broken or occluded outlines lose votes in proportion to the missing
// arc and may fall under the threshold.
package detection
