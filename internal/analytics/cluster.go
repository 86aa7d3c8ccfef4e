package analytics

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tradersentiment/models"
)

// ProfileFeatures are the standardized inputs to trader clustering.
var ProfileFeatures = []string{"total_pnl", "volume", "win_rate"}

// Clustering is the outcome of ClusterTraders.
type Clustering struct {
	Features []string               `json:"features"`
	Profiles []models.TraderProfile `json:"profiles"`
	Sizes    []int                  `json:"sizes"`
	Inertia  float64                `json:"inertia"`
}

// BuildTraderProfiles sums the panel per account. Null cells count as zero
// and win rate is zero for an account with no trades.
func BuildTraderProfiles(panel *models.Panel) []models.TraderProfile {
	index := make(map[string]int)
	var out []models.TraderProfile
	for _, r := range panel.Rows {
		i, ok := index[r.Account]
		if !ok {
			i = len(out)
			index[r.Account] = i
			out = append(out, models.TraderProfile{Account: r.Account})
		}
		p := &out[i]
		p.TotalPnL += deref(r.TotalPnL)
		p.Volume += deref(r.Volume)
		p.Trades += r.Trades
		p.WinningTrades += derefInt(r.WinningTrades)
		p.LosingTrades += derefInt(r.LosingTrades)
	}
	for i := range out {
		if out[i].Trades > 0 {
			out[i].WinRate = float64(out[i].WinningTrades) / float64(out[i].Trades)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Account < out[b].Account })
	return out
}

// ClusterTraders assigns every account to one of opts.Clusters groups using
// k-means++ over standardized profile features. The best of
// opts.KMeansRestarts seeded runs by inertia wins.
func ClusterTraders(panel *models.Panel, opts Options) (*Clustering, error) {
	opts = opts.withDefaults()
	profiles := BuildTraderProfiles(panel)
	if len(profiles) < opts.Clusters {
		return nil, &models.InsufficientDataError{Operation: "clustering", Have: len(profiles), Need: opts.Clusters}
	}

	points := standardize(profileMatrix(profiles))
	rng := rand.New(rand.NewSource(opts.Seed))
	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < opts.KMeansRestarts; run++ {
		labels, inertia := kmeans(points, opts.Clusters, opts.KMeansMaxIterations, rng)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}

	sizes := make([]int, opts.Clusters)
	for i := range profiles {
		profiles[i].Cluster = best[i]
		sizes[best[i]]++
	}
	return &Clustering{Features: ProfileFeatures, Profiles: profiles, Sizes: sizes, Inertia: bestInertia}, nil
}

func profileMatrix(profiles []models.TraderProfile) [][]float64 {
	out := make([][]float64, len(profiles))
	for i, p := range profiles {
		out[i] = []float64{sanitize(p.TotalPnL), sanitize(p.Volume), sanitize(p.WinRate)}
	}
	return out
}

// standardize rescales each column to zero mean and unit population
// variance. Constant columns are centred only.
func standardize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	dims := len(rows[0])
	out := make([][]float64, len(rows))
	for i := range out {
		out[i] = make([]float64, dims)
	}
	col := make([]float64, len(rows))
	for j := 0; j < dims; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i := range rows {
			out[i][j] = (rows[i][j] - mean) / std
		}
	}
	return out
}

func kmeans(points [][]float64, k, maxIter int, rng *rand.Rand) ([]int, float64) {
	centers := seedCenters(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := assign(points, centers, labels)
		if !changed && iter > 0 {
			break
		}
		centers = recompute(points, labels, k, centers)
	}
	assign(points, centers, labels)
	return labels, inertia(points, centers, labels)
}

// seedCenters picks initial centres with k-means++ weighting.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centers = append(centers, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		next := rng.Intn(len(points))
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		c := append([]float64(nil), points[next]...)
		centers = append(centers, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

func assign(points, centers [][]float64, labels []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// recompute moves each centre to the mean of its members. An empty cluster
// takes over the point farthest from its current centre.
func recompute(points [][]float64, labels []int, k int, prev [][]float64) [][]float64 {
	dims := len(points[0])
	centers := make([][]float64, k)
	counts := make([]int, k)
	for c := range centers {
		centers[c] = make([]float64, dims)
	}
	for i, p := range points {
		floats.Add(centers[labels[i]], p)
		counts[labels[i]]++
	}
	for c := range centers {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), centers[c])
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] < 2 {
				continue
			}
			if d := sqDist(p, prev[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			copy(centers[c], prev[c])
			continue
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		copy(centers[c], points[far])
	}
	return centers
}

func inertia(points, centers [][]float64, labels []int) float64 {
	total := 0.0
	for i, p := range points {
		total += sqDist(p, centers[labels[i]])
	}
	return total
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
