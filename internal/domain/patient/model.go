// Package patient exposes the patient record API: it pulls resources
// from the FHIR gateway, indexes them per patient in Elasticsearch,
// aggregates them into timelines and serves full-text search with
// graph-backed recommendations.
package patient

import "time"

// Document types as indexed in Elasticsearch and exposed to clients.
const (
	DocTypePatient         = "patient"
	DocTypeEncounter       = "encounter"
	DocTypePMSI            = "pmsis"
	DocTypeQuestionnaire   = "questionnaireResponses"
	DocTypeMedicationAdmin = "medicationAdministrations"
	DocTypeClinicalReport  = "clinicalReports"
	DocTypeLabResult       = "labResults"
	DocTypeBacteriology    = "bacteriology"
)

// DocumentTypes lists the searchable clinical document types, in
// indexing order. Patient and encounter documents are indexed too but
// excluded from search.
var DocumentTypes = []string{
	DocTypePMSI,
	DocTypeQuestionnaire,
	DocTypeMedicationAdmin,
	DocTypeClinicalReport,
	DocTypeLabResult,
	DocTypeBacteriology,
}

// IsSearchableDocType reports whether t is a clinical document type.
func IsSearchableDocType(t string) bool {
	for _, dt := range DocumentTypes {
		if dt == t {
			return true
		}
	}
	return false
}

// CodeDisplay pairs a code with its human label.
type CodeDisplay struct {
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// EncounterDoc is one hospital stay location, flattened from a FHIR
// encounter.
type EncounterDoc struct {
	ID              string  `json:"id,omitempty"`
	Identifier      string  `json:"identifier,omitempty"`
	Type            string  `json:"type,omitempty"`
	Display         string  `json:"display,omitempty"`
	Start           string  `json:"start,omitempty"`
	End             string  `json:"end,omitempty"`
	Consultation    bool    `json:"consultation"`
	Hospitalisation bool    `json:"hospitalisation"`
	OneDay          bool    `json:"oneDay"`
	ESScore         float64 `json:"es_score,omitempty"`
}

// PMSIDoc is one coded diagnosis or procedure from a PMSI claim.
type PMSIDoc struct {
	Date             string  `json:"date"`
	Type             string  `json:"type"`
	DiagnosisCode    string  `json:"diagnosisCode,omitempty"`
	DiagnosisDisplay string  `json:"diagnosisDisplay,omitempty"`
	ESScore          float64 `json:"es_score,omitempty"`
}

// LabResultDoc is one laboratory observation.
type LabResultDoc struct {
	CategoryCode    string         `json:"categoryCode"`
	CategoryDisplay string         `json:"categoryDisplay"`
	Code            string         `json:"code,omitempty"`
	Label           string         `json:"label,omitempty"`
	Date            string         `json:"date"`
	ValueQuantity   *ValueQuantity `json:"valueQuantity,omitempty"`
	ReferenceRange  string         `json:"referenceRange,omitempty"`
	ESScore         float64        `json:"es_score,omitempty"`
}

// ValueQuantity is a measured value with its unit.
type ValueQuantity struct {
	Value float64 `json:"value,omitempty"`
	Unit  string  `json:"unit,omitempty"`
}

// ClinicalReportDoc is one diagnostic report summary.
type ClinicalReportDoc struct {
	CategoryCode    string  `json:"categoryCode"`
	CategoryDisplay string  `json:"categoryDisplay"`
	Display         string  `json:"display,omitempty"`
	Date            string  `json:"date"`
	Conclusion      string  `json:"conclusion,omitempty"`
	ESScore         float64 `json:"es_score,omitempty"`
}

// QRNode is one node of a questionnaire response tree: either a
// question with answer leaves, or a section holding children.
type QRNode struct {
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Code     string   `json:"code,omitempty"`
	IsLeaf   bool     `json:"isLeaf,omitempty"`
	Children []QRNode `json:"children,omitempty"`
}

// QuestionnaireDoc is one questionnaire response.
type QuestionnaireDoc struct {
	Identifier string      `json:"identifier,omitempty"`
	Date       string      `json:"date"`
	Type       CodeDisplay `json:"type"`
	Category   CodeDisplay `json:"category"`
	QRList     *QRNode     `json:"qrList,omitempty"`
	ESScore    float64     `json:"es_score,omitempty"`
}

// BacteriologyObservation is one germ observation inside a
// bacteriology report.
type BacteriologyObservation struct {
	Code           string `json:"code"`
	Interpretation string `json:"interpretation"`
	Value          string `json:"value"`
}

// BacteriologyDoc is one bacteriology report bundle.
type BacteriologyDoc struct {
	Date         string                    `json:"date"`
	Examens      []string                  `json:"examens,omitempty"`
	Results      []string                  `json:"results,omitempty"`
	Observations []BacteriologyObservation `json:"observations"`
	ESScore      float64                   `json:"es_score,omitempty"`
}

// Medicament is one administered drug.
type Medicament struct {
	MedCode string `json:"medCode,omitempty"`
	MedName string `json:"medName,omitempty"`
}

// MedicationAdminDoc is one medication administration.
type MedicationAdminDoc struct {
	Date                string       `json:"date"`
	MedicationTime      string       `json:"medicationTime,omitempty"`
	MedicationReference string       `json:"medicationReference,omitempty"`
	Medicaments         []Medicament `json:"medicaments,omitempty"`
	ESScore             float64      `json:"es_score,omitempty"`
}

// Documents groups every clinical document of a patient by type.
type Documents struct {
	PMSIs                     []PMSIDoc
	QuestionnaireResponses    []QuestionnaireDoc
	MedicationAdministrations []MedicationAdminDoc
	ClinicalReports           []ClinicalReportDoc
	LabResults                []LabResultDoc
	Bacteriology              []BacteriologyDoc
}

// Count returns the total number of documents across all types.
func (d *Documents) Count() int {
	return len(d.PMSIs) + len(d.QuestionnaireResponses) + len(d.MedicationAdministrations) +
		len(d.ClinicalReports) + len(d.LabResults) + len(d.Bacteriology)
}

// Date layouts accepted on documents coming back from the index.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate parses a document date, returning the zero time when the
// value is empty or unparseable. Aggregation fails closed on zero
// dates.
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
