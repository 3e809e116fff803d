package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ortho-predict/internal/domain"
)

// Table names, which double as file stems under the data directory.
const (
	Patients   = "patients"
	Encounters = "encounters"
	Conditions = "conditions"
	Procedures = "procedures"
	Implants   = "implants"
)

// AllTables lists every table in generation order.
var AllTables = []string{Patients, Encounters, Conditions, Procedures, Implants}

// FileName returns the CSV file name for a table, raw or cleaned.
func FileName(table string, cleaned bool) string {
	if cleaned {
		return table + "_cleaned.csv"
	}
	return table + ".csv"
}

// Path joins a data directory with a table's file name.
func Path(dir, table string, cleaned bool) string {
	return filepath.Join(dir, FileName(table, cleaned))
}

// ReadCSV loads a table from a CSV file whose first record is the header.
// A missing file is reported as domain.ErrMissingInput.
func ReadCSV(path, name string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	t, err := Decode(f, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// Decode parses CSV from r into a table.
func Decode(r io.Reader, name string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header", domain.ErrEmptyDataset, name)
		}
		return nil, err
	}

	t := NewTable(name, header...)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Append(record...)
	}
	return t, nil
}

// WriteCSV writes a table to path, creating the parent directory.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := Encode(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes a table as CSV to w.
func Encode(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Exists reports whether every listed table file is present in dir.
// It returns the first missing path otherwise.
func Exists(dir string, cleaned bool, tables ...string) (string, bool) {
	for _, name := range tables {
		p := Path(dir, name, cleaned)
		if _, err := os.Stat(p); err != nil {
			return p, false
		}
	}
	return "", true
}
