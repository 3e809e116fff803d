// Package generator fabricates the synthetic orthopedic dataset: patients,
// encounters, conditions, procedures and a fixed implant catalogue.
package generator

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/sirupsen/logrus"

	"github.com/ortho-predict/internal/dataset"
	"github.com/ortho-predict/internal/domain"
)

// ProcedureOptions maps each generated condition to the procedures drawn for it.
var ProcedureOptions = map[string][]string{
	domain.ConditionOsteoarthritis:      {"Total Knee Replacement", "Partial Knee Replacement"},
	domain.ConditionRheumatoidArthritis: {"Total Knee Replacement", "Knee Arthroscopy"},
	domain.ConditionACLTear:             {"ACL Reconstruction"},
	domain.ConditionPCLTear:             {"PCL Reconstruction"},
	domain.ConditionMeniscusTear:        {"Meniscectomy", "Meniscus Repair"},
	domain.ConditionPatellofemoralPain:  {"Knee Arthroscopy", "Patellar Realignment"},
	domain.ConditionBakersCyst:          {"Cyst Removal"},
}

// Implants is the fixed implant catalogue.
var Implants = []domain.Implant{
	{ID: 1, Type: "Metal-Polyethylene", Manufacturer: "OrthoCorp", AverageLifespan: 15, CompatibilityConditions: []string{domain.ConditionOsteoarthritis}},
	{ID: 2, Type: "Ceramic-Metal", Manufacturer: "BioImplants", AverageLifespan: 20, CompatibilityConditions: []string{domain.ConditionMeniscusTear}},
	{ID: 3, Type: "Metal-Metal", Manufacturer: "FlexiJoint", AverageLifespan: 10, CompatibilityConditions: []string{domain.ConditionRheumatoidArthritis}},
	{ID: 4, Type: "Ceramic-Polyethylene", Manufacturer: "KneeMend", AverageLifespan: 18, CompatibilityConditions: []string{domain.ConditionACLTear}},
	{ID: 5, Type: "Polyethylene", Manufacturer: "JointSecure", AverageLifespan: 12, CompatibilityConditions: []string{domain.ConditionPatellofemoralPain}},
}

var (
	encounterStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	encounterEnd   = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	diagnosisStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	diagnosisEnd   = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Dataset holds one generated copy of every table.
type Dataset struct {
	Patients   []domain.Patient
	Encounters []domain.Encounter
	Conditions []domain.Condition
	Procedures []domain.Procedure
	Implants   []domain.Implant
}

// Tables encodes the dataset, keyed by table name.
func (d *Dataset) Tables() map[string]*dataset.Table {
	return map[string]*dataset.Table{
		dataset.Patients:   dataset.PatientsTable(d.Patients),
		dataset.Encounters: dataset.EncountersTable(d.Encounters),
		dataset.Conditions: dataset.ConditionsTable(d.Conditions),
		dataset.Procedures: dataset.ProceduresTable(d.Procedures),
		dataset.Implants:   dataset.ImplantsTable(d.Implants),
	}
}

// Generator draws every random field from a single seeded faker.
type Generator struct {
	config domain.GeneratorConfig
	faker  *gofakeit.Faker
	logger *logrus.Logger
}

// New creates a generator. A zero seed draws one from the clock.
func New(config domain.GeneratorConfig, logger *logrus.Logger) *Generator {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		config: config,
		faker:  gofakeit.New(seed),
		logger: logger,
	}
}

// Generate fabricates a full dataset.
func (g *Generator) Generate() *Dataset {
	patients := g.Patients(g.config.NumPatients)
	d := &Dataset{
		Patients:   patients,
		Encounters: g.Encounters(g.config.NumPatients, g.config.NumEncounters),
		Conditions: g.Conditions(patients),
		Procedures: g.Procedures(patients, g.config.NumProcedures),
		Implants:   CloneImplants(),
	}

	g.logger.WithFields(logrus.Fields{
		"patients":   len(d.Patients),
		"encounters": len(d.Encounters),
		"conditions": len(d.Conditions),
		"procedures": len(d.Procedures),
		"implants":   len(d.Implants),
	}).Debug("Synthetic dataset generated")

	return d
}

// Patients generates n patients with ids 1..n.
func (g *Generator) Patients(n int) []domain.Patient {
	patients := make([]domain.Patient, n)
	for i := range patients {
		id := i + 1
		patients[i] = domain.Patient{
			ID:       id,
			Name:     fmt.Sprintf("Patient_%d", id),
			Age:      g.faker.IntRange(20, 79),
			Gender:   domain.Genders[g.faker.IntRange(0, len(domain.Genders)-1)],
			HeightCM: g.faker.IntRange(150, 199),
			WeightKG: g.faker.IntRange(50, 119),
		}
	}
	return patients
}

// Encounters generates n encounters spread over numPatients patients.
func (g *Generator) Encounters(numPatients, n int) []domain.Encounter {
	encounters := make([]domain.Encounter, n)
	for i := range encounters {
		encounters[i] = domain.Encounter{
			ID:        i + 1,
			PatientID: g.faker.IntRange(1, numPatients),
			Date:      g.day(encounterStart, encounterEnd),
			Type:      domain.EncounterTypes[g.faker.IntRange(0, len(domain.EncounterTypes)-1)],
		}
	}
	return encounters
}

// Conditions generates one condition per patient.
func (g *Generator) Conditions(patients []domain.Patient) []domain.Condition {
	conditions := make([]domain.Condition, len(patients))
	for i, p := range patients {
		conditions[i] = domain.Condition{
			ID:            i + 1,
			PatientID:     p.ID,
			Name:          g.faker.RandomString(domain.ConditionNames),
			Severity:      domain.Severities[g.faker.IntRange(0, len(domain.Severities)-1)],
			DateDiagnosed: g.day(diagnosisStart, diagnosisEnd),
		}
	}
	return conditions
}

// Procedures generates n procedures. Each draws a condition first and then
// one of that condition's procedure options.
func (g *Generator) Procedures(patients []domain.Patient, n int) []domain.Procedure {
	procedures := make([]domain.Procedure, n)
	for i := range procedures {
		condition := g.faker.RandomString(domain.ConditionNames)
		procedures[i] = domain.Procedure{
			ID:          i + 1,
			PatientID:   patients[g.faker.IntRange(0, len(patients)-1)].ID,
			Name:        g.faker.RandomString(ProcedureOptions[condition]),
			SuccessRate: math.Round(g.faker.Float64Range(70, 95)*10) / 10,
		}
	}
	return procedures
}

// day draws a calendar day uniformly from [start, end].
func (g *Generator) day(start, end time.Time) time.Time {
	days := int(end.Sub(start).Hours() / 24)
	return start.AddDate(0, 0, g.faker.IntRange(0, days))
}

// CloneImplants returns a copy of the implant catalogue.
func CloneImplants() []domain.Implant {
	out := make([]domain.Implant, len(Implants))
	for i, im := range Implants {
		im.CompatibilityConditions = append([]string(nil), im.CompatibilityConditions...)
		out[i] = im
	}
	return out
}
