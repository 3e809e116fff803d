// Package pipeline runs the generate, clean, train and recommend stages and
// records each invocation in the run history store.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/artifact"
	"github.com/ortho-predict/internal/cleaner"
	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/internal/generator"
	"github.com/ortho-predict/internal/logging"
	"github.com/ortho-predict/internal/recommend"
	"github.com/ortho-predict/internal/runstore"
	"github.com/ortho-predict/internal/trainer"
)

// Commands recorded in the run history.
const (
	CommandGenerate  = "generate"
	CommandClean     = "clean"
	CommandTrain     = "train"
	CommandRecommend = "recommend"
	CommandRun       = "run"
)

// ExampleFeatures is the recommendation demonstrated at the end of a full
// run: a 50 year old male with a severe condition.
var ExampleFeatures = []float64{50, 1, 2}

// Summary is the outcome of a full pipeline run.
type Summary struct {
	RunID          string
	Files          []string
	Cleaning       *cleaner.Result
	Training       *trainer.Result
	Recommendation *domain.Recommendation
}

// Runner wires the stages to one configuration.
type Runner struct {
	config    domain.Config
	modelPath string
	store     runstore.Store
	cache     *artifact.Cache
	logger    *logrus.Logger
}

// New creates a runner. store may be runstore.Discard{} to keep no history.
func New(config domain.Config, modelPath string, store runstore.Store, logger *logrus.Logger) (*Runner, error) {
	cache, err := artifact.NewCache(config.Recommend.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		config:    config,
		modelPath: modelPath,
		store:     store,
		cache:     cache,
		logger:    logger,
	}, nil
}

// track records run around fn. Store failures are logged, never returned.
func (r *Runner) track(ctx context.Context, command string, fn func(run *runstore.Run) error) (string, error) {
	run := runstore.NewRun(uuid.NewString(), command)
	if err := r.store.SaveRun(ctx, run); err != nil {
		r.logger.WithError(err).Warn("Could not record run start")
	}

	err := fn(run)

	run.Finish(err)
	if serr := r.store.SaveRun(context.WithoutCancel(ctx), run); serr != nil {
		r.logger.WithError(serr).Warn("Could not record run outcome")
	}
	r.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"command":     command,
		"status":      run.Status,
		"duration_ms": run.DurationMS,
	}).Info("Run finished")
	return run.ID, err
}

func (r *Runner) generate(runID string) ([]string, error) {
	stage := logging.StartStage(r.logger, runID, domain.StageGenerate)
	g := generator.New(r.config.Generator, r.logger)
	files, err := g.Write(r.config.DataDir, g.Generate())
	if err != nil {
		err = domain.NewPipelineError(domain.ErrCodeStorage, domain.StageGenerate, "cannot write dataset", err)
	}
	stage.Done(err, logrus.Fields{"files": len(files)})
	return files, err
}

func (r *Runner) clean(ctx context.Context, runID string) (*cleaner.Result, error) {
	stage := logging.StartStage(r.logger, runID, domain.StageClean)
	result, err := cleaner.New(r.config.DataDir, r.logger).Clean(ctx)
	fields := logrus.Fields{}
	if result != nil {
		fields["tables"] = len(result.Report)
	}
	stage.Done(err, fields)
	return result, err
}

func (r *Runner) train(ctx context.Context, run *runstore.Run) (*trainer.Result, error) {
	stage := logging.StartStage(r.logger, run.ID, domain.StageTrain)
	result, err := trainer.New(r.config.DataDir, r.modelPath, r.config.Training, r.logger).Train(ctx, run.ID)
	fields := logrus.Fields{}
	if result != nil {
		run.Rows = result.Rows
		run.BestParams = result.Search.BestParams.String()
		run.BestScore = result.Search.BestScore
		run.Accuracy = result.Report.Accuracy
		run.ModelPath = result.ModelPath
		fields["accuracy"] = result.Report.Accuracy
		fields["best_cv_score"] = result.Search.BestScore
	}
	stage.Done(err, fields)
	return result, err
}

func (r *Runner) recommend(ctx context.Context, runID string, rec *recommend.Recommender, features []float64) (*domain.Recommendation, error) {
	stage := logging.StartStage(r.logger, runID, domain.StageRecommend)
	out, err := rec.Recommend(ctx, features)
	fields := logrus.Fields{"features": features, "model_run_id": rec.Bundle().RunID}
	if out != nil {
		fields["condition"] = out.Condition
		fields["procedures"] = out.Procedures
		fields["implants"] = out.Implants
		if serr := r.store.SaveRecommendation(ctx, &runstore.RecommendationRecord{
			RunID:      runID,
			Features:   out.Features,
			Condition:  out.Condition,
			Procedures: out.Procedures,
			Implants:   out.Implants,
		}); serr != nil {
			r.logger.WithError(serr).Warn("Could not record recommendation")
		}
	}
	stage.Done(err, fields)
	return out, err
}

// Generate writes a fresh synthetic dataset and returns the written paths.
func (r *Runner) Generate(ctx context.Context) ([]string, error) {
	var files []string
	_, err := r.track(ctx, CommandGenerate, func(run *runstore.Run) error {
		var err error
		files, err = r.generate(run.ID)
		return err
	})
	return files, err
}

// Clean cleans the raw dataset in the data directory.
func (r *Runner) Clean(ctx context.Context) (*cleaner.Result, error) {
	var result *cleaner.Result
	_, err := r.track(ctx, CommandClean, func(run *runstore.Run) error {
		var err error
		result, err = r.clean(ctx, run.ID)
		return err
	})
	return result, err
}

// Train fits and persists the model from the cleaned dataset.
func (r *Runner) Train(ctx context.Context) (*trainer.Result, error) {
	var result *trainer.Result
	_, err := r.track(ctx, CommandTrain, func(run *runstore.Run) error {
		var err error
		result, err = r.train(ctx, run)
		return err
	})
	return result, err
}

// Recommend loads the persisted model and recommends for features.
func (r *Runner) Recommend(ctx context.Context, features []float64) (*domain.Recommendation, error) {
	var out *domain.Recommendation
	_, err := r.track(ctx, CommandRecommend, func(run *runstore.Run) error {
		rec, err := r.loadRecommender(ctx)
		if err != nil {
			return err
		}
		out, err = r.recommend(ctx, run.ID, rec, features)
		return err
	})
	return out, err
}

// RecommendFor encodes raw patient attributes with the persisted encoders
// and recommends for them.
func (r *Runner) RecommendFor(ctx context.Context, age int, gender, severity string) (*domain.Recommendation, error) {
	var out *domain.Recommendation
	_, err := r.track(ctx, CommandRecommend, func(run *runstore.Run) error {
		rec, err := r.loadRecommender(ctx)
		if err != nil {
			return err
		}
		features, err := rec.FeatureVector(age, gender, severity)
		if err != nil {
			return err
		}
		out, err = r.recommend(ctx, run.ID, rec, features)
		return err
	})
	return out, err
}

func (r *Runner) loadRecommender(ctx context.Context) (*recommend.Recommender, error) {
	implantsPath := dataset.Path(r.config.DataDir, dataset.Implants, true)
	return recommend.Load(ctx, r.modelPath, implantsPath, r.cache, r.logger)
}

// Run executes every stage in order and finishes with the example
// recommendation. It stops at the first failing stage.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	id, err := r.track(ctx, CommandRun, func(run *runstore.Run) error {
		var err error
		if summary.Files, err = r.generate(run.ID); err != nil {
			return err
		}
		if summary.Cleaning, err = r.clean(ctx, run.ID); err != nil {
			return err
		}
		if summary.Training, err = r.train(ctx, run); err != nil {
			return err
		}

		implants, err := recommend.LoadImplants(dataset.Path(r.config.DataDir, dataset.Implants, true))
		if err != nil {
			return err
		}
		rec, err := recommend.New(summary.Training.Bundle, implants, r.logger)
		if err != nil {
			return err
		}
		summary.Recommendation, err = r.recommend(ctx, run.ID, rec, ExampleFeatures)
		return err
	})
	summary.RunID = id
	return summary, err
}

// Store returns the run history store.
func (r *Runner) Store() runstore.Store {
	return r.store
}
