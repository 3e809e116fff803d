package ml

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"golang.org/x/sync/errgroup"

	"github.com/ortho-predict/internal/domain"
)

// CVResult holds the cross-validation outcome of one candidate.
type CVResult struct {
	Params      Params    `json:"params"`
	FoldScores  []float64 `json:"fold_scores"`
	MeanScore   float64   `json:"mean_test_score"`
	StdScore    float64   `json:"std_test_score"`
	RankByScore int       `json:"rank_test_score"`
}

// SearchResult is the outcome of a randomized search.
type SearchResult struct {
	CVResults     []CVResult    `json:"cv_results"`
	BestIndex     int           `json:"best_index"`
	BestParams    Params        `json:"best_params"`
	BestScore     float64       `json:"best_score"`
	BestEstimator *RandomForest `json:"-"`
}

// RandomizedSearch samples NIter candidates from Grid, scores each with
// stratified CV-fold cross-validation on accuracy and refits the best one on
// all of the data.
type RandomizedSearch struct {
	Grid  ParamGrid
	NIter int
	CV    int
	// NJobs bounds concurrent fits. Values <= 0 use every CPU.
	NJobs int
	Seed  uint64
}

func (s *RandomizedSearch) workers() int {
	if s.NJobs <= 0 {
		return runtime.NumCPU()
	}
	return s.NJobs
}

// Fit runs the search. Candidate and fold fits run concurrently, and every
// fit is seeded from Seed so the result does not depend on scheduling.
func (s *RandomizedSearch) Fit(ctx context.Context, X *mat.Dense, y []int, nClasses int) (*SearchResult, error) {
	if s.Grid.Size() == 0 || s.NIter <= 0 {
		return nil, domain.ErrEmptySearchSpace
	}
	candidates := s.Grid.Sample(s.NIter, rand.New(rand.NewPCG(s.Seed, 0)))
	for _, p := range candidates {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	folds, err := StratifiedKFold(y, s.CV)
	if err != nil {
		return nil, err
	}

	type foldData struct {
		xTrain *mat.Dense
		yTrain []int
		xTest  *mat.Dense
		yTest  []int
	}
	data := make([]foldData, len(folds))
	for i, f := range folds {
		xtr, ytr := SelectRows(X, y, f.Train)
		xte, yte := SelectRows(X, y, f.Test)
		data[i] = foldData{xtr, ytr, xte, yte}
	}

	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for ci, params := range candidates {
		for fi := range folds {
			g.Go(func() error {
				d := data[fi]
				forest := NewRandomForest(params, s.Seed)
				if err := forest.Fit(gctx, d.xTrain, d.yTrain, nClasses); err != nil {
					return fmt.Errorf("search: candidate %d fold %d: %w", ci, fi, err)
				}
				pred, err := forest.Predict(d.xTest)
				if err != nil {
					return err
				}
				scores[ci][fi] = AccuracyScore(d.yTest, pred)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SearchResult{CVResults: make([]CVResult, len(candidates))}
	for i, params := range candidates {
		mean, std := stat.PopMeanStdDev(scores[i], nil)
		result.CVResults[i] = CVResult{Params: params, FoldScores: scores[i], MeanScore: mean, StdScore: std}
		if i == 0 || mean > result.BestScore {
			result.BestIndex = i
			result.BestScore = mean
		}
	}
	rankCandidates(result.CVResults)
	result.BestParams = candidates[result.BestIndex]

	best := NewRandomForest(result.BestParams, s.Seed)
	if err := best.Fit(ctx, X, y, nClasses); err != nil {
		return nil, fmt.Errorf("search: refit: %w", err)
	}
	result.BestEstimator = best
	return result, nil
}

// rankCandidates assigns competition ranks by mean score, 1 being best.
func rankCandidates(results []CVResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for pos, idx := range order {
		rank := pos + 1
		if pos > 0 && results[idx].MeanScore == results[order[pos-1]].MeanScore {
			rank = results[order[pos-1]].RankByScore
		}
		results[idx].RankByScore = rank
	}
}
