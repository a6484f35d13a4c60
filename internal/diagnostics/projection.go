package diagnostics

import (
	"math"
	"math/rand"
	"sort"

	"github.com/free4inno/intent-hub/internal/distance"
)

// Projection defaults mirror the parameters operators know from UMAP-style
// tools.
const (
	DefaultNeighbors = 15
	DefaultMinDist   = 0.1
	DefaultSeed      = 42

	projectionEpochs = 200
	initialScale     = 10.0
)

// Project lays the given high-dimensional vectors out on a 2-D plane with a
// seeded force-directed scheme over the k-nearest-neighbor graph: neighbors
// attract down to minDist, random pairs repel. The exact placement is an
// implementation detail; the contract is that the output is deterministic
// given (vectors, nNeighbors, minDist, seed) and that nearby vectors land
// nearby.
func Project(vectors [][]float64, nNeighbors int, minDist float64, seed int64) [][2]float64 {
	n := len(vectors)
	coords := make([][2]float64, n)
	if n == 0 {
		return coords
	}
	if nNeighbors <= 0 {
		nNeighbors = DefaultNeighbors
	}
	if nNeighbors > n-1 {
		nNeighbors = n - 1
	}
	if minDist <= 0 {
		minDist = DefaultMinDist
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range coords {
		coords[i][0] = (rng.Float64()*2 - 1) * initialScale
		coords[i][1] = (rng.Float64()*2 - 1) * initialScale
	}
	if n == 1 {
		return coords
	}

	type edge struct {
		from, to int
		weight   float64
	}
	var edges []edge
	for i := 0; i < n; i++ {
		type neighbor struct {
			idx int
			sim float64
		}
		neighbors := make([]neighbor, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			neighbors = append(neighbors, neighbor{idx: j, sim: distance.Dot(vectors[i], vectors[j])})
		}
		sort.Slice(neighbors, func(a, b int) bool {
			if neighbors[a].sim != neighbors[b].sim {
				return neighbors[a].sim > neighbors[b].sim
			}
			return neighbors[a].idx < neighbors[b].idx
		})
		for _, nb := range neighbors[:nNeighbors] {
			// similarity in [-1,1] maps to attraction strength in [0,1]
			edges = append(edges, edge{from: i, to: nb.idx, weight: (nb.sim + 1) / 2})
		}
	}

	for epoch := 0; epoch < projectionEpochs; epoch++ {
		alpha := 1.0 - float64(epoch)/float64(projectionEpochs)
		for _, e := range edges {
			dx := coords[e.to][0] - coords[e.from][0]
			dy := coords[e.to][1] - coords[e.from][1]
			d := math.Hypot(dx, dy)
			if d <= minDist {
				continue
			}
			pull := alpha * e.weight * (d - minDist) / d * 0.1
			coords[e.from][0] += dx * pull
			coords[e.from][1] += dy * pull
			coords[e.to][0] -= dx * pull
			coords[e.to][1] -= dy * pull
		}
		// sampled repulsion keeps unrelated clusters apart
		for k := 0; k < n; k++ {
			i := rng.Intn(n)
			j := rng.Intn(n)
			if i == j {
				continue
			}
			dx := coords[j][0] - coords[i][0]
			dy := coords[j][1] - coords[i][1]
			d := math.Hypot(dx, dy)
			if d < 1e-9 {
				coords[j][0] += 1e-3
				continue
			}
			push := alpha * 0.05 / (d * d)
			if push > 0.5 {
				push = 0.5
			}
			coords[i][0] -= dx / d * push
			coords[i][1] -= dy / d * push
			coords[j][0] += dx / d * push
			coords[j][1] += dy / d * push
		}
	}
	return coords
}
