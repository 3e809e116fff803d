package logging

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-predict/internal/domain"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config domain.LoggingConfig
		level  logrus.Level
		json   bool
	}{
		{"json debug", domain.LoggingConfig{Level: "debug", Format: "json"}, logrus.DebugLevel, true},
		{"text warn", domain.LoggingConfig{Level: "warn", Format: "text"}, logrus.WarnLevel, false},
		{"bad level falls back", domain.LoggingConfig{Level: "loud", Format: "JSON"}, logrus.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			require.NoError(t, err)

			assert.Equal(t, tt.level, logger.GetLevel())
			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.log")

	logger, err := New(domain.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("hello")
	assert.FileExists(t, path)
}

func TestStageLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	stage := StartStage(logger, "run-1", domain.StageClean)
	stage.Done(errors.New("boom"), logrus.Fields{"rows": 3})

	out := buf.String()
	assert.Contains(t, out, `"stage":"clean"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, "Stage failed")
	assert.Contains(t, out, `"rows":3`)
}
