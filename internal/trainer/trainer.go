// Package trainer fits the condition classifier: it merges the cleaned
// patient and condition tables, encodes and scales the features, tunes a
// random forest with randomized search and persists the model bundle.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ortho-predict/internal/artifact"
	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/pkg/ml"
)

// Columns of the merged table used by the model.
const (
	ColumnAge       = "age"
	ColumnGender    = "gender"
	ColumnSeverity  = "severity"
	ColumnCondition = "condition_name"
	JoinKey         = "patient_id"
)

// Features is the encoded training matrix with the encoders that built it.
type Features struct {
	X                *mat.Dense
	Y                []int
	GenderEncoder    *ml.LabelEncoder
	SeverityEncoder  *ml.LabelEncoder
	ConditionEncoder *ml.LabelEncoder
}

// Inventory summarizes the typed cleaned tables available for training.
type Inventory struct {
	Patients        int     `json:"patients"`
	Conditions      int     `json:"conditions"`
	Procedures      int     `json:"procedures"`
	MeanSuccessRate float64 `json:"mean_success_rate"`
}

// Result is the outcome of a training run.
type Result struct {
	Bundle    *artifact.Bundle
	Inventory *Inventory
	Search    *ml.SearchResult
	Report    *ml.ClassificationReport
	Rows      int
	Dropped   int
	TrainRows int
	TestRows  int
	ModelPath string
	Duration  time.Duration
}

// Trainer fits and persists the model.
type Trainer struct {
	dataDir   string
	modelPath string
	config    domain.TrainingConfig
	grid      ml.ParamGrid
	logger    *logrus.Logger
}

// New creates a trainer reading cleaned tables from dataDir and writing the
// bundle to modelPath.
func New(dataDir, modelPath string, config domain.TrainingConfig, logger *logrus.Logger) *Trainer {
	return &Trainer{
		dataDir:   dataDir,
		modelPath: modelPath,
		config:    config,
		grid:      ml.DefaultGrid(),
		logger:    logger,
	}
}

// WithGrid replaces the hyperparameter search space.
func (t *Trainer) WithGrid(grid ml.ParamGrid) *Trainer {
	t.grid = grid
	return t
}

func trainingError(code, message string, err error) error {
	return domain.NewPipelineError(code, domain.StageTrain, message, err)
}

// LoadMerged reads the cleaned patients and conditions and inner-joins them
// on patient_id, dropping rows with any missing cell.
func (t *Trainer) LoadMerged() (*dataset.Table, int, error) {
	if missing, ok := dataset.Exists(t.dataDir, true, dataset.Patients, dataset.Conditions); !ok {
		return nil, 0, trainingError(domain.ErrCodeMissingInput,
			fmt.Sprintf("cleaned data not found: %s", missing), domain.ErrMissingInput)
	}
	patients, err := dataset.ReadCSV(dataset.Path(t.dataDir, dataset.Patients, true), dataset.Patients)
	if err != nil {
		return nil, 0, trainingError(domain.ErrCodeSchema, "cannot read patients", err)
	}
	conditions, err := dataset.ReadCSV(dataset.Path(t.dataDir, dataset.Conditions, true), dataset.Conditions)
	if err != nil {
		return nil, 0, trainingError(domain.ErrCodeSchema, "cannot read conditions", err)
	}

	merged, err := dataset.InnerJoin(patients, conditions, JoinKey)
	if err != nil {
		return nil, 0, trainingError(domain.ErrCodeSchema, "cannot merge patients and conditions", err)
	}
	dropped := merged.DropMissing()
	return merged, dropped, nil
}

// LoadInventory decodes the cleaned patients, conditions and procedures into
// typed records. Procedures are not a model input and are only counted.
func (t *Trainer) LoadInventory() (*Inventory, error) {
	read := func(table string) (*dataset.Table, error) {
		return dataset.ReadCSV(dataset.Path(t.dataDir, table, true), table)
	}

	tab, err := read(dataset.Patients)
	if err != nil {
		return nil, err
	}
	patients, err := dataset.DecodePatients(tab)
	if err != nil {
		return nil, fmt.Errorf("decoding patients: %w", err)
	}

	if tab, err = read(dataset.Conditions); err != nil {
		return nil, err
	}
	conditions, err := dataset.DecodeConditions(tab)
	if err != nil {
		return nil, fmt.Errorf("decoding conditions: %w", err)
	}

	if tab, err = read(dataset.Procedures); err != nil {
		return nil, err
	}
	procedures, err := dataset.DecodeProcedures(tab)
	if err != nil {
		return nil, fmt.Errorf("decoding procedures: %w", err)
	}

	inv := &Inventory{
		Patients:   len(patients),
		Conditions: len(conditions),
		Procedures: len(procedures),
	}
	if len(procedures) > 0 {
		rates := make([]float64, len(procedures))
		for i, p := range procedures {
			rates[i] = p.SuccessRate
		}
		inv.MeanSuccessRate = stat.Mean(rates, nil)
	}
	return inv, nil
}

// BuildFeatures encodes [age, gender, severity] and the condition target.
func BuildFeatures(merged *dataset.Table) (*Features, error) {
	if merged.Len() == 0 {
		return nil, fmt.Errorf("merged table: %w", domain.ErrEmptyDataset)
	}
	cols := make(map[string][]string, 4)
	for _, name := range []string{ColumnAge, ColumnGender, ColumnSeverity, ColumnCondition} {
		values, err := merged.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		cols[name] = values
	}

	f := &Features{
		GenderEncoder:    ml.NewLabelEncoder(cols[ColumnGender]),
		SeverityEncoder:  ml.NewLabelEncoder(cols[ColumnSeverity]),
		ConditionEncoder: ml.NewLabelEncoder(cols[ColumnCondition]),
	}
	genders, err := f.GenderEncoder.Transform(cols[ColumnGender])
	if err != nil {
		return nil, err
	}
	severities, err := f.SeverityEncoder.Transform(cols[ColumnSeverity])
	if err != nil {
		return nil, err
	}
	if f.Y, err = f.ConditionEncoder.Transform(cols[ColumnCondition]); err != nil {
		return nil, err
	}

	f.X = mat.NewDense(merged.Len(), len(artifact.FeatureNames), nil)
	for i, cell := range cols[ColumnAge] {
		age, err := dataset.ParseInt(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		f.X.SetRow(i, []float64{float64(age), float64(genders[i]), float64(severities[i])})
	}
	return f, nil
}

// Train runs the full training pass and saves the bundle. runID is stored in
// the bundle for traceability and may be empty.
func (t *Trainer) Train(ctx context.Context, runID string) (*Result, error) {
	start := time.Now()

	merged, dropped, err := t.LoadMerged()
	if err != nil {
		return nil, err
	}
	inventory, err := t.LoadInventory()
	if err != nil {
		t.logger.WithError(err).Warn("Cleaned tables could not be fully decoded")
	} else {
		t.logger.WithFields(logrus.Fields{
			"patients":          inventory.Patients,
			"conditions":        inventory.Conditions,
			"procedures":        inventory.Procedures,
			"mean_success_rate": inventory.MeanSuccessRate,
		}).Info("Loaded cleaned tables")
	}

	features, err := BuildFeatures(merged)
	if err != nil {
		code := domain.ErrCodeSchema
		if errors.Is(err, domain.ErrEmptyDataset) {
			code = domain.ErrCodeTraining
		}
		return nil, trainingError(code, "cannot build features", err)
	}
	t.logger.WithFields(logrus.Fields{
		"rows":       merged.Len(),
		"dropped":    dropped,
		"conditions": features.ConditionEncoder.Len(),
	}).Info("Merged patients and conditions")

	scaler := &ml.StandardScaler{}
	X, err := scaler.FitTransform(features.X)
	if err != nil {
		return nil, trainingError(domain.ErrCodeTraining, "cannot scale features", err)
	}

	trainIdx, testIdx, err := ml.TrainTestSplit(merged.Len(), t.config.TestSize, t.config.RandomState)
	if err != nil {
		return nil, trainingError(domain.ErrCodeTraining, "cannot split data", err)
	}
	xTrain, yTrain := ml.SelectRows(X, features.Y, trainIdx)
	xTest, yTest := ml.SelectRows(X, features.Y, testIdx)

	search := &ml.RandomizedSearch{
		Grid:  t.grid,
		NIter: t.config.NIter,
		CV:    t.config.CVFolds,
		NJobs: t.config.NJobs,
		Seed:  t.config.RandomState,
	}
	nClasses := features.ConditionEncoder.Len()
	searched, err := search.Fit(ctx, xTrain, yTrain, nClasses)
	if err != nil {
		return nil, trainingError(domain.ErrCodeTraining, "randomized search failed", err)
	}
	t.logger.WithFields(logrus.Fields{
		"best_params":   searched.BestParams.String(),
		"best_cv_score": searched.BestScore,
		"candidates":    len(searched.CVResults),
	}).Info("Best Parameters")

	pred, err := searched.BestEstimator.Predict(xTest)
	if err != nil {
		return nil, trainingError(domain.ErrCodeTraining, "cannot evaluate model", err)
	}
	report := ml.NewClassificationReport(yTest, pred, features.ConditionEncoder.Classes)
	t.logger.WithField("accuracy", report.Accuracy).Info("Model evaluated")
	t.logger.Debug("Classification Report:\n" + report.String())

	bundle := &artifact.Bundle{
		Version:          artifact.FormatVersion,
		CreatedAt:        time.Now().UTC(),
		RunID:            runID,
		FeatureNames:     artifact.FeatureNames,
		Forest:           searched.BestEstimator,
		Scaler:           scaler,
		GenderEncoder:    features.GenderEncoder,
		SeverityEncoder:  features.SeverityEncoder,
		ConditionEncoder: features.ConditionEncoder,
	}
	if err := artifact.Save(t.modelPath, bundle); err != nil {
		return nil, trainingError(domain.ErrCodeStorage, "cannot save model", err)
	}
	t.logger.WithField("path", t.modelPath).Info("Model saved")

	return &Result{
		Bundle:    bundle,
		Inventory: inventory,
		Search:    searched,
		Report:    report,
		Rows:      merged.Len(),
		Dropped:   dropped,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		ModelPath: t.modelPath,
		Duration:  time.Since(start),
	}, nil
}
