package generator

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
)

// Write encodes the dataset and writes one CSV per table into dir, creating
// it first. When the configured missing rate is positive, non-id cells are
// blanked at that rate before writing. It returns the written paths.
func (g *Generator) Write(dir string, d *Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewPipelineError(domain.ErrCodeInvalidInput, domain.StageGenerate,
			"cannot create data directory", err)
	}

	tables := d.Tables()
	paths := make([]string, 0, len(tables))
	for _, name := range dataset.AllTables {
		t := tables[name]
		if g.config.MissingRate > 0 {
			blanked := g.blank(t, g.config.MissingRate)
			g.logger.WithFields(logrus.Fields{
				"table":   name,
				"blanked": blanked,
			}).Debug("Injected missing values")
		}

		path := dataset.Path(dir, name, false)
		if err := dataset.WriteCSV(path, t); err != nil {
			return paths, fmt.Errorf("writing %s: %w", name, err)
		}
		paths = append(paths, path)
	}

	g.logger.WithFields(logrus.Fields{
		"dir":    dir,
		"tables": len(paths),
	}).Info("All datasets generated and saved successfully")

	return paths, nil
}

// blank clears non-id cells with probability rate and returns the count.
func (g *Generator) blank(t *dataset.Table, rate float64) int {
	blanked := 0
	for c, h := range t.Header {
		if strings.HasSuffix(h, "_id") {
			continue
		}
		for _, row := range t.Rows {
			if g.faker.Float64() < rate {
				row[c] = ""
				blanked++
			}
		}
	}
	return blanked
}
