package simulation

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/aukilabs/quadrant/quadtree"
)

// Distribution is the way points are spread over the drawing surface.
type Distribution string

const (
	// Points are spread uniformly.
	DistributionUniform Distribution = "uniform"

	// Points gather where perlin noise is high, which produces clusters
	// similar to players grouping on a map.
	DistributionClustered Distribution = "clustered"
)

const (
	clusterFrequency = 0.006
	clusterSharpness = 3

	// The number of rejection sampling attempts per requested point before
	// the remaining points are spread uniformly.
	clusterAttempts = 64
)

func (d Distribution) valid() bool {
	switch d {
	case DistributionUniform, DistributionClustered:
		return true
	default:
		return false
	}
}

// Generate returns n points within [0, width) × [0, height).
func Generate(r *rand.Rand, d Distribution, width, height float64, n int) []quadtree.Point {
	switch d {
	case DistributionClustered:
		return generateClustered(r, width, height, n)
	default:
		return generateUniform(r, width, height, n)
	}
}

func generateUniform(r *rand.Rand, width, height float64, n int) []quadtree.Point {
	points := make([]quadtree.Point, 0, n)
	for len(points) < n {
		points = append(points, uniformPoint(r, width, height))
	}
	return points
}

func generateClustered(r *rand.Rand, width, height float64, n int) []quadtree.Point {
	noise := perlin.NewPerlin(2, 2, 3, r.Int63())
	points := make([]quadtree.Point, 0, n)

	for attempts := 0; len(points) < n && attempts < n*clusterAttempts; attempts++ {
		p := uniformPoint(r, width, height)

		// Noise2D is roughly within [-1, 1].
		density := (noise.Noise2D(p.X*clusterFrequency, p.Y*clusterFrequency) + 1) / 2
		density = math.Pow(clamp(density, 0, 1), clusterSharpness)

		if r.Float64() < density {
			points = append(points, p)
		}
	}

	for len(points) < n {
		points = append(points, uniformPoint(r, width, height))
	}
	return points
}

func uniformPoint(r *rand.Rand, width, height float64) quadtree.Point {
	return quadtree.Point{
		X: r.Float64() * width,
		Y: r.Float64() * height,
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
