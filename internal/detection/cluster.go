package detection

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ironsheep/strip-detect/internal/imaging"
	"github.com/ironsheep/strip-detect/internal/models"
)

const (
	// clusterCount is fixed: a strip carries one small and one large marker.
	clusterCount = 2

	// clusterRestarts is the number of independent k-means++ initialisations;
	// the run with the lowest inertia is kept.
	clusterRestarts = 4

	// clusterMaxIterations bounds each Lloyd refinement.
	clusterMaxIterations = 100
)

// Cluster partitions candidate points into two groups by k-means over
// (x, y, r) and returns each group's centroid as a Circle.
//
// Initialisation is k-means++ driven by a math/rand source seeded with seed,
// so the same points and seed always give the same circles. The circles are
// returned ordered by X, then Y.
//
// Fewer than two distinct points cannot form two clusters and yield
// ErrInsufficientCandidates.
func Cluster(points []models.CandidatePoint, seed int64) ([]models.Circle, error) {
	vecs := make([]r3.Vec, len(points))
	distinct := make(map[models.CandidatePoint]struct{}, clusterCount)
	for i, p := range points {
		vecs[i] = r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.R)}
		if len(distinct) < clusterCount {
			distinct[p] = struct{}{}
		}
	}
	if len(distinct) < clusterCount {
		return nil, fmt.Errorf("%w: %d candidate points, %d distinct",
			imaging.ErrInsufficientCandidates, len(points), len(distinct))
	}

	rng := rand.New(rand.NewSource(seed))
	var best []r3.Vec
	bestInertia := math.Inf(1)
	for run := 0; run < clusterRestarts; run++ {
		centroids, inertia := lloyd(vecs, seedCentroids(vecs, rng))
		if inertia < bestInertia {
			best, bestInertia = centroids, inertia
		}
	}

	circles := make([]models.Circle, len(best))
	for i, c := range best {
		circles[i] = models.Circle{X: c.X, Y: c.Y, Radius: c.Z}
	}
	sort.Slice(circles, func(i, j int) bool {
		if circles[i].X != circles[j].X {
			return circles[i].X < circles[j].X
		}
		return circles[i].Y < circles[j].Y
	})
	return circles, nil
}

// seedCentroids picks the first centroid uniformly and each further one
// with probability proportional to its squared distance from the nearest
// chosen centroid.
func seedCentroids(points []r3.Vec, rng *rand.Rand) []r3.Vec {
	centroids := make([]r3.Vec, 0, clusterCount)
	centroids = append(centroids, points[rng.Intn(len(points))])

	dist := make([]float64, len(points))
	for len(centroids) < clusterCount {
		var total float64
		for i, p := range points {
			dist[i] = nearest(p, centroids)
			total += dist[i]
		}

		// total is positive: at least two points are distinct.
		target := rng.Float64() * total
		pick := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 && d > 0 {
				pick = i
				break
			}
		}
		for dist[pick] == 0 {
			pick--
		}
		centroids = append(centroids, points[pick])
	}
	return centroids
}

// lloyd refines centroids until assignments stop changing and returns the
// final centroids with their inertia (sum of squared distances).
func lloyd(points []r3.Vec, centroids []r3.Vec) ([]r3.Vec, float64) {
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < clusterMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			c := closest(p, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]r3.Vec, len(centroids))
		counts := make([]int, len(centroids))
		for i, p := range points {
			sums[assign[i]] = r3.Add(sums[assign[i]], p)
			counts[assign[i]]++
		}
		for k := range centroids {
			if counts[k] == 0 {
				// Reseed an empty cluster with the point farthest from its centroid.
				far := farthest(points, centroids, assign)
				centroids[k] = points[far]
				assign[far] = k
				continue
			}
			centroids[k] = r3.Scale(1/float64(counts[k]), sums[k])
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += r3.Norm2(r3.Sub(p, centroids[assign[i]]))
	}
	return centroids, inertia
}

func closest(p r3.Vec, centroids []r3.Vec) int {
	best, bestDist := 0, math.Inf(1)
	for k, c := range centroids {
		if d := r3.Norm2(r3.Sub(p, c)); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func nearest(p r3.Vec, centroids []r3.Vec) float64 {
	return r3.Norm2(r3.Sub(p, centroids[closest(p, centroids)]))
}

func farthest(points []r3.Vec, centroids []r3.Vec, assign []int) int {
	best, bestDist := 0, -1.0
	for i, p := range points {
		if d := r3.Norm2(r3.Sub(p, centroids[assign[i]])); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
