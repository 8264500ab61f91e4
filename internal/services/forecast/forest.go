package forecast

import (
	"fmt"
	"math/rand"
	"sort"

	"OilCast/internal/domain/models"
	domsvc "OilCast/internal/domain/service"
)

// Node is one node of a regression tree stored in a flat slice. Leaves carry
// Value; internal nodes route rows with x[Feature] <= Threshold to Left.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// Forest averages the predictions of its trees.
type Forest struct {
	Features int    `json:"features"`
	Trees    []Tree `json:"trees"`
}

func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.Features {
			return nil, &models.ShapeError{What: "columns", Want: f.Features, Got: len(row)}
		}
		sum := 0.0
		for t := range f.Trees {
			sum += f.Trees[t].predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// ForestParams mirrors the usual random forest regressor knobs. MaxDepth 0
// grows trees until leaves are pure or too small to split.
type ForestParams struct {
	NEstimators     int   `yaml:"n_estimators" default:"100"`
	MaxDepth        int   `yaml:"max_depth"`
	MinSamplesSplit int   `yaml:"min_samples_split" default:"2"`
	MinSamplesLeaf  int   `yaml:"min_samples_leaf" default:"1"`
	Seed            int64 `yaml:"seed" default:"42"`
}

// ForestLearner fits a bootstrap-aggregated forest of CART trees.
type ForestLearner struct {
	Params ForestParams
}

func (l ForestLearner) Fit(X [][]float64, y []float64) (domsvc.Predictor, error) {
	return FitForest(X, y, l.Params)
}

// FitForest grows p.NEstimators trees, each on a bootstrap sample drawn with
// its own seeded source so results are reproducible.
func FitForest(X [][]float64, y []float64, p ForestParams) (*Forest, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("fit forest: no rows")
	}
	if len(y) != n {
		return nil, &models.ShapeError{What: "y", Want: n, Got: len(y)}
	}
	if p.NEstimators <= 0 {
		p.NEstimators = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return nil, &models.ShapeError{What: "columns", Want: width, Got: len(row)}
		}
	}

	f := &Forest{Features: width, Trees: make([]Tree, p.NEstimators)}
	for t := range f.Trees {
		rng := rand.New(rand.NewSource(p.Seed + int64(t)))
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		g := &grower{X: X, y: y, p: p}
		g.grow(idx, 0)
		f.Trees[t] = Tree{Nodes: g.nodes}
	}
	return f, nil
}

type grower struct {
	X     [][]float64
	y     []float64
	p     ForestParams
	nodes []Node
}

// grow appends the subtree for idx and returns its node index.
func (g *grower) grow(idx []int, depth int) int {
	self := len(g.nodes)
	g.nodes = append(g.nodes, Node{Leaf: true, Value: g.mean(idx)})

	if len(idx) < g.p.MinSamplesSplit || (g.p.MaxDepth > 0 && depth >= g.p.MaxDepth) {
		return self
	}
	feature, threshold, ok := g.bestSplit(idx)
	if !ok {
		return self
	}
	var left, right []int
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: g.nodes[self].Value}
	return self
}

func (g *grower) mean(idx []int) float64 {
	s := 0.0
	for _, i := range idx {
		s += g.y[i]
	}
	return s / float64(len(idx))
}

// bestSplit scans every feature for the threshold with the lowest summed
// squared error of the two children.
func (g *grower) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	total, totalSq := 0.0, 0.0
	for _, i := range idx {
		total += g.y[i]
		totalSq += g.y[i] * g.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestSSE := parentSSE
	bestFeature, bestThreshold, found := 0, 0.0, false
	order := make([]int, n)
	minLeaf := g.p.MinSamplesLeaf
	for f := range g.X[idx[0]] {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return g.X[order[a]][f] < g.X[order[b]][f] })

		leftSum, leftSq := 0.0, 0.0
		for k := 0; k < n-1; k++ {
			yi := g.y[order[k]]
			leftSum += yi
			leftSq += yi * yi
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := g.X[order[k]][f], g.X[order[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestSSE-1e-12 {
				bestSSE = sse
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
