package registry

import (
	"sort"

	"github.com/sells-group/bioextract/internal/model"
)

// Builtin schema names.
const (
	SchemaCandidateBio = "candidate_bio"
	SchemaViolation    = "violation"
	SchemaSummary      = "summary"
)

func bound(n int64) *int64 { return &n }

var triState = []string{"1", "0", "-1"}

func candidateBio() *model.ExtractionSchema {
	return &model.ExtractionSchema{
		Name:    SchemaCandidateBio,
		Subject: "{{.Name}}, a {{with .Office}}{{.}}{{else}}state representative{{end}} candidate{{with .Jurisdiction}} from {{.}}{{end}}",
		Instructions: "Extract ONLY the fields below for {{.Name}} from the text. " +
			"Then rate your confidence that the extracted information describes " +
			"{{.Name}}{{with .Year}}, a {{.}} candidate{{end}}{{with .Jurisdiction}} from {{.}}{{end}}, on a scale of 1 to 100.",
		Fields: []model.Field{
			{Key: "college_major", Label: "College Major", Shape: model.ShapeText,
				Description: "field of study of the undergraduate degree"},
			{Key: "undergraduate_institution", Label: "Undergraduate Institution", Shape: model.ShapeText,
				Description: "college or university of the undergraduate degree"},
			{Key: "highest_degree_and_institution", Label: "Highest Degree and Institution", Shape: model.ShapeText,
				Description: "highest degree earned and the institution that granted it"},
			{Key: "work_history", Label: "Work History", Shape: model.ShapeList,
				Description: "jobs and positions held, one per entry"},
			{Key: "confidence_level", Label: "Confidence Level", Shape: model.ShapeInteger, Min: bound(1), Max: bound(100),
				Description: "confidence from 1 to 100 that the information describes this candidate"},
		},
	}
}

func violation() *model.ExtractionSchema {
	return &model.ExtractionSchema{
		Name:    SchemaViolation,
		Subject: "a state medical board case document",
		Instructions: "Extract information regarding the contents of the medical board case. " +
			"Answer 1 for yes, 0 for no, and -1 for any output that is unclear.",
		Fields: []model.Field{
			{Key: "patient_mentioned", Label: "Patient Mentioned", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the patient is mentioned in the case text, including by initials or as 'patient'"},
			{Key: "fraud_case", Label: "Fraud Case", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the doctor lied to the government or an insurer to increase profits, " +
					"or faced any anti-fraud enforcement (False Claims Act, health care fraud statute, " +
					"Anti-Kickback Statute, Stark Law, fraud arrest or indictment, Medicare exclusion for fraud)"},
			{Key: "malpractice_case", Label: "Malpractice Case", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the case is related to medical malpractice"},
			{Key: "dea_case", Label: "DEA Case", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the case involves the Drug Enforcement Agency"},
			{Key: "improper_opioid_prescription", Label: "Improper Opioid Prescription", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the doctor improperly prescribed opioids"},
			{Key: "improper_drug_prescription", Label: "Improper Drug Prescription", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the doctor improperly prescribed any drugs, including opioids"},
			{Key: "unfit_to_practice", Label: "Unfit to Practice", Shape: model.ShapeInteger, Allowed: triState,
				Description: "unrelated legal trouble led to action against the doctor's license"},
			{Key: "bad_medical_records", Label: "Bad Medical Records", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the doctor failed to maintain adequate medical records"},
			{Key: "license_issues", Label: "License Issues", Shape: model.ShapeInteger, Allowed: triState,
				Description: "administrative issues with the license; voluntary relinquishment is 0"},
			{Key: "miscellaneous_violation", Label: "Miscellaneous Violation", Shape: model.ShapeInteger, Allowed: triState,
				Description: "a violation not covered by the other fields"},
			{Key: "other_state_action", Label: "Other State Action", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the doctor committed a violation in another state"},
			{Key: "no_substantive_information", Label: "No Substantive Information", Shape: model.ShapeInteger, Allowed: triState,
				Description: "the case text has no substantive information about the violation"},
			{Key: "proactive", Label: "Proactive", Shape: model.ShapeInteger, Allowed: triState,
				Description: "someone else (agency, lawsuit) got the doctor in trouble before the state medical board"},
		},
	}
}

func summary() *model.ExtractionSchema {
	return &model.ExtractionSchema{
		Name:         SchemaSummary,
		Subject:      "a state medical board case document",
		Instructions: "Summarize why the doctor faced disciplinary action from the state medical board.",
		Fields: []model.Field{
			{Key: "trouble_summary", Label: "Trouble Summary", Shape: model.ShapeText,
				Description: "1-2 sentences on why the doctor was disciplined, including violations in other states"},
		},
	}
}

var builtins = map[string]func() *model.ExtractionSchema{
	SchemaCandidateBio: candidateBio,
	SchemaViolation:    violation,
	SchemaSummary:      summary,
}

// Builtin returns a fresh copy of a builtin schema.
func Builtin(name string) (*model.ExtractionSchema, bool) {
	fn, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// BuiltinNames lists builtin schema names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
