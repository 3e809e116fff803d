// Package domain contains the core entities and types for the orthopedic condition
// prediction pipeline: patients and their encounters, diagnosed knee conditions,
// procedures and implants, plus the enums and errors shared across stages.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the ordinal severity of a diagnosed condition.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Severities lists the severity levels in ascending order.
var Severities = []Severity{SeverityMild, SeverityModerate, SeveritySevere}

// ParseSeverity normalizes raw text into a Severity.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, raw)
	}
	return s, nil
}

// IsValid reports whether s is one of the three known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// Numeric maps the severity onto the fixed 1..3 scale used for modeling.
// Unknown severities map to 0.
func (s Severity) Numeric() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return 0
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// Gender is the recorded gender of a patient.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Genders lists the generated genders.
var Genders = []Gender{GenderMale, GenderFemale}

// EncounterType is the kind of visit an encounter represents.
type EncounterType string

const (
	EncounterCheckUp  EncounterType = "check-up"
	EncounterSurgery  EncounterType = "surgery"
	EncounterFollowUp EncounterType = "follow-up"
)

// EncounterTypes lists the generated encounter types.
var EncounterTypes = []EncounterType{EncounterCheckUp, EncounterSurgery, EncounterFollowUp}

// Knee conditions produced by the generator.
const (
	ConditionOsteoarthritis      = "Osteoarthritis"
	ConditionRheumatoidArthritis = "Rheumatoid Arthritis"
	ConditionACLTear             = "ACL Tear"
	ConditionPCLTear             = "PCL Tear"
	ConditionMeniscusTear        = "Meniscus Tear"
	ConditionPatellofemoralPain  = "Patellofemoral Pain Syndrome"
	ConditionBakersCyst          = "Baker's Cyst"
	ConditionFracture            = "Fracture"
)

// ConditionNames lists the conditions the generator draws from, in draw order.
var ConditionNames = []string{
	ConditionOsteoarthritis,
	ConditionRheumatoidArthritis,
	ConditionACLTear,
	ConditionPCLTear,
	ConditionMeniscusTear,
	ConditionPatellofemoralPain,
	ConditionBakersCyst,
}

// DateLayout is the on-disk date format for every table.
const DateLayout = "2006-01-02"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrMissingInput     = errors.New("missing input file")
	ErrMissingColumn    = errors.New("missing column")
	ErrEmptyDataset     = errors.New("empty dataset")
	ErrEmptySearchSpace = errors.New("empty hyperparameter search space")
	ErrUnknownLabel     = errors.New("unknown label")
	ErrNotFitted        = errors.New("model is not fitted")
	ErrFeatureLength    = errors.New("unexpected feature vector length")
)
