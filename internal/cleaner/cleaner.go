// Package cleaner fills missing values, coerces column types and derives the
// numeric severity scale, turning the raw generated tables into the cleaned
// tables the trainer consumes.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
)

// SeverityNumericColumn is the derived column added to the conditions table.
const SeverityNumericColumn = "severity_numeric"

// TableReport summarizes the cleaning of one table.
type TableReport struct {
	Table   string                `json:"table"`
	Rows    int                   `json:"rows"`
	Missing []dataset.ColumnCount `json:"missing"`
	Filled  int                   `json:"filled"`
	Path    string                `json:"path"`
}

// Result is the outcome of a cleaning pass.
type Result struct {
	Tables map[string]*dataset.Table
	Report []TableReport
}

// Cleaner reads raw tables from a directory and writes cleaned copies back.
type Cleaner struct {
	dir    string
	logger *logrus.Logger
}

// New creates a cleaner working in dir.
func New(dir string, logger *logrus.Logger) *Cleaner {
	return &Cleaner{dir: dir, logger: logger}
}

// Load reads every raw table. Any absent file fails the whole load.
func (c *Cleaner) Load() (map[string]*dataset.Table, error) {
	tables := make(map[string]*dataset.Table, len(dataset.AllTables))
	for _, name := range dataset.AllTables {
		t, err := dataset.ReadCSV(dataset.Path(c.dir, name, false), name)
		if err != nil {
			if errors.Is(err, domain.ErrMissingInput) {
				return nil, domain.NewPipelineError(domain.ErrCodeMissingInput, domain.StageClean,
					"error loading data", err)
			}
			return nil, domain.NewPipelineError(domain.ErrCodeSchema, domain.StageClean,
				"error loading data", err)
		}
		tables[name] = t
	}
	return tables, nil
}

// Clean loads, cleans and writes every table. Nothing is written unless all
// inputs load and clean successfully.
func (c *Cleaner) Clean(ctx context.Context) (*Result, error) {
	tables, err := c.Load()
	if err != nil {
		c.logger.WithError(err).Error("Error loading data")
		return nil, err
	}

	result := &Result{Tables: tables}
	for _, name := range dataset.AllTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := tables[name]
		missing := t.MissingCounts()
		c.logMissing(name, missing)

		filled := t.ForwardFill()
		if err := Normalize(t); err != nil {
			return nil, domain.NewPipelineError(domain.ErrCodeSchema, domain.StageClean,
				fmt.Sprintf("cannot clean %s", name), err)
		}

		result.Report = append(result.Report, TableReport{
			Table:   name,
			Rows:    t.Len(),
			Missing: missing,
			Filled:  filled,
			Path:    dataset.Path(c.dir, name, true),
		})
	}

	for _, rep := range result.Report {
		if err := dataset.WriteCSV(rep.Path, tables[rep.Table]); err != nil {
			return nil, domain.NewPipelineError(domain.ErrCodeStorage, domain.StageClean,
				"cannot write cleaned table", err)
		}
	}

	c.logger.WithField("dir", c.dir).Info("Data loaded and preprocessed successfully")
	return result, nil
}

func (c *Cleaner) logMissing(name string, counts []dataset.ColumnCount) {
	fields := logrus.Fields{"table": name}
	for _, cc := range counts {
		fields[cc.Column] = cc.Count
	}
	c.logger.WithFields(fields).Info("Missing values")
}

// Normalize coerces the column types of a known table in place.
func Normalize(t *dataset.Table) error {
	switch t.Name {
	case dataset.Patients:
		return normalizeInts(t, "patient_id", "age", "height_cm", "weight_kg")
	case dataset.Encounters:
		if err := normalizeInts(t, "encounter_id", "patient_id"); err != nil {
			return err
		}
		return normalizeDates(t, "encounter_date", false)
	case dataset.Conditions:
		return normalizeConditions(t)
	case dataset.Procedures:
		if err := normalizeInts(t, "procedure_id", "patient_id"); err != nil {
			return err
		}
		return normalizeFloats(t, "success_rate")
	case dataset.Implants:
		if err := normalizeInts(t, "implant_id", "average_lifespan"); err != nil {
			return err
		}
		return t.Map("compatibility_conditions", func(cell string) string {
			return strings.Join(dataset.SplitList(cell), dataset.ListSeparator)
		})
	default:
		return fmt.Errorf("unknown table %s", t.Name)
	}
}

func normalizeConditions(t *dataset.Table) error {
	if err := normalizeInts(t, "condition_id", "patient_id"); err != nil {
		return err
	}
	if err := t.Map("condition_name", strings.TrimSpace); err != nil {
		return err
	}
	if err := normalizeDates(t, "date_diagnosed", true); err != nil {
		return err
	}

	severities, err := t.Column("severity")
	if err != nil {
		return err
	}
	numeric := make([]string, len(severities))
	for i, raw := range severities {
		s := domain.Severity(strings.ToLower(strings.TrimSpace(raw)))
		severities[i] = string(s)
		if n := s.Numeric(); n > 0 {
			numeric[i] = strconv.Itoa(n)
		}
	}
	if err := t.AddColumn("severity", severities); err != nil {
		return err
	}
	return t.AddColumn(SeverityNumericColumn, numeric)
}

func normalizeInts(t *dataset.Table, columns ...string) error {
	for _, name := range columns {
		c, err := t.Col(name)
		if err != nil {
			return err
		}
		for r, row := range t.Rows {
			if dataset.IsMissing(row[c]) {
				continue
			}
			n, err := dataset.ParseInt(row[c])
			if err != nil {
				return fmt.Errorf("%s row %d column %s: %w", t.Name, r+1, name, err)
			}
			row[c] = strconv.Itoa(n)
		}
	}
	return nil
}

func normalizeFloats(t *dataset.Table, columns ...string) error {
	for _, name := range columns {
		c, err := t.Col(name)
		if err != nil {
			return err
		}
		for r, row := range t.Rows {
			if dataset.IsMissing(row[c]) {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return fmt.Errorf("%s row %d column %s: invalid number %q", t.Name, r+1, name, row[c])
			}
			row[c] = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return nil
}

// normalizeDates rewrites dates as YYYY-MM-DD. With coerce set, unparseable
// values become missing instead of failing.
func normalizeDates(t *dataset.Table, name string, coerce bool) error {
	c, err := t.Col(name)
	if err != nil {
		return err
	}
	for r, row := range t.Rows {
		if dataset.IsMissing(row[c]) {
			continue
		}
		d, err := dataset.ParseDate(row[c])
		if err != nil {
			if coerce {
				row[c] = ""
				continue
			}
			return fmt.Errorf("%s row %d column %s: %w", t.Name, r+1, name, err)
		}
		row[c] = d.Format(domain.DateLayout)
	}
	return nil
}
