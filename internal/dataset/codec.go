package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ortho-predict/internal/domain"
)

// Column layouts for every table.
var (
	PatientColumns   = []string{"patient_id", "name", "age", "gender", "height_cm", "weight_kg"}
	EncounterColumns = []string{"encounter_id", "patient_id", "encounter_date", "type"}
	ConditionColumns = []string{"condition_id", "patient_id", "condition_name", "severity", "date_diagnosed"}
	ProcedureColumns = []string{"procedure_id", "patient_id", "procedure_name", "success_rate"}
	ImplantColumns   = []string{"implant_id", "implant_type", "manufacturer", "average_lifespan", "compatibility_conditions"}
)

// ListSeparator joins parsed compatibility lists in cleaned implant files.
const ListSeparator = "|"

// PatientsTable encodes patients.
func PatientsTable(patients []domain.Patient) *Table {
	t := NewTable(Patients, PatientColumns...)
	for _, p := range patients {
		t.Append(
			strconv.Itoa(p.ID),
			p.Name,
			strconv.Itoa(p.Age),
			string(p.Gender),
			strconv.Itoa(p.HeightCM),
			strconv.Itoa(p.WeightKG),
		)
	}
	return t
}

// EncountersTable encodes encounters.
func EncountersTable(encounters []domain.Encounter) *Table {
	t := NewTable(Encounters, EncounterColumns...)
	for _, e := range encounters {
		t.Append(
			strconv.Itoa(e.ID),
			strconv.Itoa(e.PatientID),
			e.Date.Format(domain.DateLayout),
			string(e.Type),
		)
	}
	return t
}

// ConditionsTable encodes conditions.
func ConditionsTable(conditions []domain.Condition) *Table {
	t := NewTable(Conditions, ConditionColumns...)
	for _, c := range conditions {
		t.Append(
			strconv.Itoa(c.ID),
			strconv.Itoa(c.PatientID),
			c.Name,
			string(c.Severity),
			c.DateDiagnosed.Format(domain.DateLayout),
		)
	}
	return t
}

// ProceduresTable encodes procedures.
func ProceduresTable(procedures []domain.Procedure) *Table {
	t := NewTable(Procedures, ProcedureColumns...)
	for _, p := range procedures {
		t.Append(
			strconv.Itoa(p.ID),
			strconv.Itoa(p.PatientID),
			p.Name,
			strconv.FormatFloat(p.SuccessRate, 'f', 1, 64),
		)
	}
	return t
}

// ImplantsTable encodes implants in the raw, comma-delimited form.
func ImplantsTable(implants []domain.Implant) *Table {
	t := NewTable(Implants, ImplantColumns...)
	for _, im := range implants {
		t.Append(
			strconv.Itoa(im.ID),
			im.Type,
			im.Manufacturer,
			strconv.Itoa(im.AverageLifespan),
			strings.Join(im.CompatibilityConditions, ","),
		)
	}
	return t
}

// DecodePatients decodes a (cleaned) patients table.
func DecodePatients(t *Table) ([]domain.Patient, error) {
	cols, err := columns(t, PatientColumns)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Patient, 0, t.Len())
	for r, row := range t.Rows {
		var p domain.Patient
		var perr error
		p.ID, perr = ParseInt(row[cols[0]])
		if perr == nil {
			p.Age, perr = ParseInt(row[cols[2]])
		}
		if perr == nil {
			p.HeightCM, perr = ParseInt(row[cols[4]])
		}
		if perr == nil {
			p.WeightKG, perr = ParseInt(row[cols[5]])
		}
		if perr != nil {
			return nil, rowError(t, r, perr)
		}
		p.Name = row[cols[1]]
		p.Gender = domain.Gender(strings.TrimSpace(row[cols[3]]))
		out = append(out, p)
	}
	return out, nil
}

// DecodeConditions decodes a (cleaned) conditions table.
func DecodeConditions(t *Table) ([]domain.Condition, error) {
	cols, err := columns(t, ConditionColumns)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Condition, 0, t.Len())
	for r, row := range t.Rows {
		var c domain.Condition
		var perr error
		c.ID, perr = ParseInt(row[cols[0]])
		if perr == nil {
			c.PatientID, perr = ParseInt(row[cols[1]])
		}
		if perr == nil {
			c.Severity, perr = domain.ParseSeverity(row[cols[3]])
		}
		if perr == nil && !IsMissing(row[cols[4]]) {
			c.DateDiagnosed, perr = ParseDate(row[cols[4]])
		}
		if perr != nil {
			return nil, rowError(t, r, perr)
		}
		c.Name = strings.TrimSpace(row[cols[2]])
		out = append(out, c)
	}
	return out, nil
}

// DecodeProcedures decodes a (cleaned) procedures table.
func DecodeProcedures(t *Table) ([]domain.Procedure, error) {
	cols, err := columns(t, ProcedureColumns)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Procedure, 0, t.Len())
	for r, row := range t.Rows {
		var p domain.Procedure
		var perr error
		p.ID, perr = ParseInt(row[cols[0]])
		if perr == nil {
			p.PatientID, perr = ParseInt(row[cols[1]])
		}
		if perr == nil {
			p.SuccessRate, perr = strconv.ParseFloat(strings.TrimSpace(row[cols[3]]), 64)
		}
		if perr != nil {
			return nil, rowError(t, r, perr)
		}
		p.Name = row[cols[2]]
		out = append(out, p)
	}
	return out, nil
}

// DecodeImplants decodes an implants table. Cleaned tables separate
// compatibility entries with ListSeparator, raw ones with commas.
func DecodeImplants(t *Table) ([]domain.Implant, error) {
	cols, err := columns(t, ImplantColumns)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Implant, 0, t.Len())
	for r, row := range t.Rows {
		var im domain.Implant
		var perr error
		im.ID, perr = ParseInt(row[cols[0]])
		if perr == nil {
			im.AverageLifespan, perr = ParseInt(row[cols[3]])
		}
		if perr != nil {
			return nil, rowError(t, r, perr)
		}
		im.Type = row[cols[1]]
		im.Manufacturer = row[cols[2]]
		im.CompatibilityConditions = SplitList(row[cols[4]])
		out = append(out, im)
	}
	return out, nil
}

// SplitList splits a compatibility cell on ListSeparator, or on commas when
// the separator is absent. Entries are trimmed; empty entries are dropped.
func SplitList(cell string) []string {
	sep := ","
	if strings.Contains(cell, ListSeparator) {
		sep = ListSeparator
	}
	var out []string
	for _, part := range strings.Split(cell, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseInt parses an integer cell, accepting a float rendering such as "50.0".
func ParseInt(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if n, err := strconv.Atoi(cell); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", cell)
	}
	return int(f), nil
}

// ParseDate parses a date cell, accepting a trailing time component.
func ParseDate(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range []string{domain.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if d, err := time.Parse(layout, cell); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", cell)
}

func columns(t *Table, names []string) ([]int, error) {
	cols := make([]int, len(names))
	for i, name := range names {
		c, err := t.Col(name)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

func rowError(t *Table, r int, err error) error {
	return fmt.Errorf("%s row %d: %w", t.Name, r+1, err)
}
