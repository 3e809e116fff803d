package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
)

// Feature sampling strategies.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// Params configures a random forest. MaxDepth 0 grows trees until leaves are
// pure or too small to split.
type Params struct {
	NEstimators     int    `json:"n_estimators"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features"`
	Bootstrap       bool   `json:"bootstrap"`
}

// DefaultParams mirrors the usual random forest defaults.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesSqrt,
		Bootstrap:       true,
	}
}

// String renders the params compactly for logs and reports.
func (p Params) String() string {
	depth := "None"
	if p.MaxDepth > 0 {
		depth = strconv.Itoa(p.MaxDepth)
	}
	return fmt.Sprintf("{n_estimators: %d, max_depth: %s, min_samples_split: %d, min_samples_leaf: %d, max_features: %s, bootstrap: %t}",
		p.NEstimators, depth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures, p.Bootstrap)
}

// Validate checks the params are usable.
func (p Params) Validate() error {
	if p.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split must be at least 2, got %d", p.MinSamplesSplit)
	}
	if p.MinSamplesLeaf < 1 {
		return fmt.Errorf("min_samples_leaf must be at least 1, got %d", p.MinSamplesLeaf)
	}
	switch p.MaxFeatures {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
	default:
		return fmt.Errorf("unknown max_features %q", p.MaxFeatures)
	}
	return nil
}

// featuresPerSplit resolves MaxFeatures for a feature count.
func (p Params) featuresPerSplit(nFeatures int) int {
	var k int
	switch p.MaxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(nFeatures)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(nFeatures)))
	default:
		k = nFeatures
	}
	return max(1, min(k, nFeatures))
}

// ParamGrid lists the candidate values of every hyperparameter. A MaxDepth
// of 0 stands for unlimited depth.
type ParamGrid struct {
	NEstimators     []int    `json:"n_estimators"`
	MaxDepth        []int    `json:"max_depth"`
	MinSamplesSplit []int    `json:"min_samples_split"`
	MinSamplesLeaf  []int    `json:"min_samples_leaf"`
	MaxFeatures     []string `json:"max_features"`
	Bootstrap       []bool   `json:"bootstrap"`
}

// DefaultGrid is the search space used by the trainer.
func DefaultGrid() ParamGrid {
	return ParamGrid{
		NEstimators:     []int{100, 200, 300},
		MaxDepth:        []int{0, 10, 20},
		MinSamplesSplit: []int{2, 5},
		MinSamplesLeaf:  []int{1, 2},
		MaxFeatures:     []string{MaxFeaturesSqrt, MaxFeaturesLog2},
		Bootstrap:       []bool{true},
	}
}

// Size returns the number of distinct configurations.
func (g ParamGrid) Size() int {
	return len(g.NEstimators) * len(g.MaxDepth) * len(g.MinSamplesSplit) *
		len(g.MinSamplesLeaf) * len(g.MaxFeatures) * len(g.Bootstrap)
}

// At returns configuration i of the grid, enumerated with the last
// hyperparameter varying fastest.
func (g ParamGrid) At(i int) Params {
	var p Params
	p.Bootstrap = g.Bootstrap[i%len(g.Bootstrap)]
	i /= len(g.Bootstrap)
	p.MaxFeatures = g.MaxFeatures[i%len(g.MaxFeatures)]
	i /= len(g.MaxFeatures)
	p.MinSamplesLeaf = g.MinSamplesLeaf[i%len(g.MinSamplesLeaf)]
	i /= len(g.MinSamplesLeaf)
	p.MinSamplesSplit = g.MinSamplesSplit[i%len(g.MinSamplesSplit)]
	i /= len(g.MinSamplesSplit)
	p.MaxDepth = g.MaxDepth[i%len(g.MaxDepth)]
	i /= len(g.MaxDepth)
	p.NEstimators = g.NEstimators[i%len(g.NEstimators)]
	return p
}

// Sample draws n distinct configurations. When n covers the grid, every
// configuration is returned in grid order.
func (g ParamGrid) Sample(n int, rng *rand.Rand) []Params {
	size := g.Size()
	if size == 0 || n <= 0 {
		return nil
	}
	if n >= size {
		out := make([]Params, size)
		for i := range out {
			out[i] = g.At(i)
		}
		return out
	}
	perm := rng.Perm(size)
	out := make([]Params, n)
	for i := range out {
		out[i] = g.At(perm[i])
	}
	return out
}
