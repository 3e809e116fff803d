package ml

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/ortho-predict/internal/domain"
)

// Node is one node of a fitted tree. Leaves have Feature -1 and carry the
// class distribution of their training samples in Value.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

// DecisionTree is a CART classifier splitting on Gini impurity. Samples go
// left when their feature value is <= the node threshold.
type DecisionTree struct {
	Nodes     []Node `json:"nodes"`
	NClasses  int    `json:"n_classes"`
	NFeatures int    `json:"n_features"`
	Depth     int    `json:"depth"`
}

type treeBuilder struct {
	params   Params
	x        *mat.Dense
	y        []int
	nClasses int
	maxFeat  int
	rng      *rand.Rand
	tree     *DecisionTree
}

// FitTree grows a tree on the rows of X listed in samples. Repeated indices
// act as sample weights, which is how bootstrap samples are passed in.
func FitTree(params Params, X *mat.Dense, y []int, nClasses int, samples []int, rng *rand.Rand) (*DecisionTree, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("tree: %d rows but %d labels", rows, len(y))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("tree: %w", domain.ErrEmptyDataset)
	}

	b := &treeBuilder{
		params:   params,
		x:        X,
		y:        y,
		nClasses: nClasses,
		maxFeat:  params.featuresPerSplit(cols),
		rng:      rng,
		tree:     &DecisionTree{NClasses: nClasses, NFeatures: cols},
	}
	b.build(slices.Clone(samples), 0)
	return b.tree, nil
}

func (b *treeBuilder) counts(samples []int) []float64 {
	c := make([]float64, b.nClasses)
	for _, s := range samples {
		c[b.y[s]]++
	}
	return c
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		sum += c * c
	}
	return 1 - sum/(n*n)
}

func (b *treeBuilder) leaf(counts []float64, n float64) int {
	value := make([]float64, len(counts))
	for i, c := range counts {
		value[i] = c / n
	}
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Value: value})
	return len(b.tree.Nodes) - 1
}

// build grows the subtree for samples and returns its node index.
func (b *treeBuilder) build(samples []int, depth int) int {
	if depth > b.tree.Depth {
		b.tree.Depth = depth
	}

	n := len(samples)
	counts := b.counts(samples)
	impurity := gini(counts, float64(n))

	p := b.params
	if (p.MaxDepth > 0 && depth >= p.MaxDepth) ||
		n < p.MinSamplesSplit ||
		n < 2*p.MinSamplesLeaf ||
		impurity <= 0 {
		return b.leaf(counts, float64(n))
	}

	feature, threshold, pos, ok := b.bestSplit(samples)
	if !ok {
		return b.leaf(counts, float64(n))
	}

	// bestSplit leaves samples sorted on the chosen feature.
	b.sortBy(samples, feature)
	left, right := samples[:pos], samples[pos:]

	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: feature, Threshold: threshold})
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Nodes[idx].Left = l
	b.tree.Nodes[idx].Right = r
	return idx
}

func (b *treeBuilder) sortBy(samples []int, feature int) {
	slices.SortStableFunc(samples, func(i, j int) int {
		return cmp.Compare(b.x.At(i, feature), b.x.At(j, feature))
	})
}

// bestSplit scans features in random order. It stops after maxFeat features
// once a valid split is known, and keeps going past maxFeat while every
// visited feature was constant.
func (b *treeBuilder) bestSplit(samples []int) (feature int, threshold float64, pos int, ok bool) {
	n := len(samples)
	minLeaf := b.params.MinSamplesLeaf
	best := 0.0
	work := slices.Clone(samples)

	order := b.rng.Perm(b.tree.NFeatures)
	for visited, f := range order {
		if visited >= b.maxFeat && ok {
			break
		}
		b.sortBy(work, f)

		left := make([]float64, b.nClasses)
		right := b.counts(work)
		for i := 1; i < n; i++ {
			cls := b.y[work[i-1]]
			left[cls]++
			right[cls]--

			lo, hi := b.x.At(work[i-1], f), b.x.At(work[i], f)
			if lo == hi || i < minLeaf || n-i < minLeaf {
				continue
			}
			nl, nr := float64(i), float64(n-i)
			score := (nl*gini(left, nl) + nr*gini(right, nr)) / float64(n)
			if !ok || score < best {
				best = score
				feature = f
				threshold = lo + (hi-lo)/2
				pos = i
				ok = true
			}
		}
	}
	return feature, threshold, pos, ok
}

// PredictProba returns the class distribution of the leaf row falls in.
func (t *DecisionTree) PredictProba(row []float64) []float64 {
	i := 0
	for {
		node := &t.Nodes[i]
		if node.IsLeaf() {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}
