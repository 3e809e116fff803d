// Package logging builds the structured logger used by every pipeline stage
// and tracks stage timings.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/domain"
)

// New creates a logrus logger from the logging configuration.
// An unknown level falls back to info.
func New(config domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(config.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	out, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return logger, nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, nil
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// StageLog times one pipeline stage.
type StageLog struct {
	entry *logrus.Entry
	start time.Time
}

// StartStage logs the start of a stage and returns a handle to finish it.
func StartStage(logger *logrus.Logger, runID, stage string) *StageLog {
	entry := logger.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  stage,
	})
	entry.Info("Stage started")
	return &StageLog{entry: entry, start: time.Now()}
}

// Done logs the stage outcome with its duration.
func (s *StageLog) Done(err error, fields logrus.Fields) time.Duration {
	elapsed := time.Since(s.start)
	entry := s.entry.WithFields(fields).WithField("duration", elapsed)
	if err != nil {
		entry.WithError(err).Error("Stage failed")
	} else {
		entry.Info("Stage completed")
	}
	return elapsed
}
