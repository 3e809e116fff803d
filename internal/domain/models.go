package domain

import (
	"time"
)

// Patient is one generated individual.
type Patient struct {
	ID       int    `json:"patient_id"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   Gender `json:"gender"`
	HeightCM int    `json:"height_cm"`
	WeightKG int    `json:"weight_kg"`
}

// Encounter is a visit by a patient. It is not used downstream by the model.
type Encounter struct {
	ID        int           `json:"encounter_id"`
	PatientID int           `json:"patient_id"`
	Date      time.Time     `json:"encounter_date"`
	Type      EncounterType `json:"type"`
}

// Condition is a diagnosed knee condition for a patient.
type Condition struct {
	ID            int       `json:"condition_id"`
	PatientID     int       `json:"patient_id"`
	Name          string    `json:"condition_name"`
	Severity      Severity  `json:"severity"`
	DateDiagnosed time.Time `json:"date_diagnosed"`
}

// Procedure is a performed procedure with its observed success rate.
type Procedure struct {
	ID          int     `json:"procedure_id"`
	PatientID   int     `json:"patient_id"`
	Name        string  `json:"procedure_name"`
	SuccessRate float64 `json:"success_rate"`
}

// Implant describes an implant model and the conditions it is compatible with.
type Implant struct {
	ID                      int      `json:"implant_id"`
	Type                    string   `json:"implant_type"`
	Manufacturer            string   `json:"manufacturer"`
	AverageLifespan         int      `json:"average_lifespan"`
	CompatibilityConditions []string `json:"compatibility_conditions"`
}

// Recommendation is the outcome of a single treatment recommendation.
type Recommendation struct {
	Condition  string    `json:"condition"`
	Procedures []string  `json:"procedures"`
	Implants   []string  `json:"implants"`
	Features   []float64 `json:"features"`
}
