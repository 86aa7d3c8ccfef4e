package forest

import (
	"math/rand"
	"sort"
)

type node struct {
	leaf      bool
	feature   int
	threshold float64
	left      *node
	right     *node

	value float64   // regression: mean target
	dist  []float64 // classification: class frequencies
}

// tree is a single CART tree grown to purity.
type tree struct {
	root        *node
	task        Task
	classes     int
	maxFeatures int
	minSplit    int
	maxDepth    int
	rng         *rand.Rand
	importances []float64
	splits      int
}

func newTree(task Task, classes, nFeatures, maxFeatures, minSplit, maxDepth int, seed int64) *tree {
	return &tree{
		task:        task,
		classes:     classes,
		maxFeatures: maxFeatures,
		minSplit:    minSplit,
		maxDepth:    maxDepth,
		rng:         rand.New(rand.NewSource(seed)),
		importances: make([]float64, nFeatures),
	}
}

func (t *tree) fit(X [][]float64, y []float64, idx []int) {
	t.root = t.grow(X, y, idx, 0)
}

// impurity returns the node impurity (variance or Gini) of idx.
func (t *tree) impurity(y []float64, idx []int) float64 {
	n := float64(len(idx))
	if n == 0 {
		return 0
	}
	if t.task == Regression {
		var sum, sq float64
		for _, i := range idx {
			sum += y[i]
			sq += y[i] * y[i]
		}
		mean := sum / n
		v := sq/n - mean*mean
		if v < 0 {
			return 0
		}
		return v
	}
	counts := make([]float64, t.classes)
	for _, i := range idx {
		counts[int(y[i])]++
	}
	return gini(counts, n)
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func (t *tree) leaf(y []float64, idx []int) *node {
	nd := &node{leaf: true}
	if t.task == Regression {
		var sum float64
		for _, i := range idx {
			sum += y[i]
		}
		nd.value = sum / float64(len(idx))
		return nd
	}
	nd.dist = make([]float64, t.classes)
	for _, i := range idx {
		nd.dist[int(y[i])]++
	}
	for c := range nd.dist {
		nd.dist[c] /= float64(len(idx))
	}
	return nd
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
	order     []int
}

func (t *tree) grow(X [][]float64, y []float64, idx []int, depth int) *node {
	imp := t.impurity(y, idx)
	if len(idx) < t.minSplit || imp <= 1e-12 || (t.maxDepth > 0 && depth >= t.maxDepth) {
		return t.leaf(y, idx)
	}

	best, ok := t.bestSplit(X, y, idx, imp)
	if !ok {
		return t.leaf(y, idx)
	}

	t.importances[best.feature] += best.gain
	t.splits++

	left := append([]int(nil), best.order[:best.pos]...)
	right := append([]int(nil), best.order[best.pos:]...)
	return &node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      t.grow(X, y, left, depth+1),
		right:     t.grow(X, y, right, depth+1),
	}
}

// bestSplit scans features in random order for the threshold with the
// largest weighted impurity decrease, stopping after maxFeatures
// non-constant features once a split exists. The gain is n*imp - nL*impL - nR*impR.
func (t *tree) bestSplit(X [][]float64, y []float64, idx []int, imp float64) (split, bool) {
	nFeatures := len(X[idx[0]])
	features := t.rng.Perm(nFeatures)

	n := float64(len(idx))
	best := split{gain: 1e-12}
	found := false
	visited := 0

	for _, f := range features {
		if visited >= t.maxFeatures && found {
			break
		}
		order := append([]int(nil), idx...)
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		// Constant features do not count towards maxFeatures.
		if X[order[0]][f] == X[order[len(order)-1]][f] {
			continue
		}
		visited++

		sweep := newSweep(t.task, t.classes, y, order)
		for pos := 1; pos < len(order); pos++ {
			sweep.move(order[pos-1])
			lo, hi := X[order[pos-1]][f], X[order[pos]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(pos), n-float64(pos)
			gain := n*imp - nl*sweep.leftImpurity() - nr*sweep.rightImpurity()
			if gain > best.gain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, gain: gain, pos: pos, order: order}
				found = true
			}
		}
	}
	return best, found
}

// sweep keeps running statistics of the left and right partitions while
// samples move from right to left in sorted order.
type sweep struct {
	task                 Task
	y                    []float64
	nl, nr               float64
	sumL, sumR, sqL, sqR float64
	countL, countR       []float64
}

func newSweep(task Task, classes int, y []float64, order []int) *sweep {
	s := &sweep{task: task, y: y, nr: float64(len(order))}
	if task == Regression {
		for _, i := range order {
			s.sumR += y[i]
			s.sqR += y[i] * y[i]
		}
		return s
	}
	s.countL = make([]float64, classes)
	s.countR = make([]float64, classes)
	for _, i := range order {
		s.countR[int(y[i])]++
	}
	return s
}

func (s *sweep) move(i int) {
	s.nl++
	s.nr--
	if s.task == Regression {
		v := s.y[i]
		s.sumL += v
		s.sqL += v * v
		s.sumR -= v
		s.sqR -= v * v
		return
	}
	c := int(s.y[i])
	s.countL[c]++
	s.countR[c]--
}

func variance(sum, sq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	v := sq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func (s *sweep) leftImpurity() float64 {
	if s.task == Regression {
		return variance(s.sumL, s.sqL, s.nl)
	}
	return gini(s.countL, s.nl)
}

func (s *sweep) rightImpurity() float64 {
	if s.task == Regression {
		return variance(s.sumR, s.sqR, s.nr)
	}
	return gini(s.countR, s.nr)
}

func (t *tree) find(x []float64) *node {
	nd := t.root
	for !nd.leaf {
		if x[nd.feature] <= nd.threshold {
			nd = nd.left
		} else {
			nd = nd.right
		}
	}
	return nd
}
