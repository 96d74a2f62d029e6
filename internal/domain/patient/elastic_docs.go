package patient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/elastic"
)

// BuildElasticDocuments turns the gateway response for one document
// type into indexable documents. Each indexed document keeps the raw
// FHIR resource it came from, a compact abstract for searching and the
// completion suggestions derived from it. Resources that expand into
// several documents (encounters per location, claims per diagnosis)
// share their resource's fullDocument.
func BuildElasticDocuments(docType string, raw json.RawMessage, encountersInPMSI []string) ([]elastic.Document, error) {
	if docType == DocTypePatient {
		trimmed := strings.TrimSpace(string(raw))
		if trimmed == "" || trimmed == "null" {
			return nil, nil
		}
		return []elastic.Document{{
			DocumentType: DocTypePatient,
			FullDocument: raw,
			Abstract:     string(raw),
		}}, nil
	}

	resources, err := splitList(raw)
	if err != nil {
		return nil, fmt.Errorf("patient: split %s resources: %w", docType, err)
	}

	var docs []elastic.Document
	for _, resource := range resources {
		mapped, err := buildFromResource(docType, resource, encountersInPMSI)
		if err != nil {
			return nil, err
		}
		docs = append(docs, mapped...)
	}
	return docs, nil
}

func buildFromResource(docType string, resource json.RawMessage, encountersInPMSI []string) ([]elastic.Document, error) {
	var docs []elastic.Document
	emit := func(abstract any, start, end string, suggest []string) error {
		body, err := json.Marshal(abstract)
		if err != nil {
			return fmt.Errorf("patient: marshal %s abstract: %w", docType, err)
		}
		docs = append(docs, elastic.Document{
			DocumentType:      docType,
			DocumentStartDate: start,
			DocumentEndDate:   end,
			FullDocument:      resource,
			Abstract:          string(body),
			Suggest:           suggest,
		})
		return nil
	}

	switch docType {
	case DocTypeEncounter:
		mapped, err := MapEncounters(resource, encountersInPMSI)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Start, doc.End, nil); err != nil {
				return nil, err
			}
		}
	case DocTypePMSI:
		mapped, err := MapPMSIs(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	case DocTypeLabResult:
		mapped, err := MapLabResults(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	case DocTypeClinicalReport:
		mapped, err := MapClinicalReports(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	case DocTypeQuestionnaire:
		mapped, err := MapQuestionnaires(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	case DocTypeBacteriology:
		mapped, err := MapBacteriology(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	case DocTypeMedicationAdmin:
		mapped, err := MapMedicationAdmins(resource)
		if err != nil {
			return nil, err
		}
		for _, doc := range mapped {
			if err := emit(doc, doc.Date, doc.Date, doc.suggestions()); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("patient: unknown document type %q", docType)
	}
	return docs, nil
}

// splitList breaks a gateway response into individual resources. A
// single object becomes a one-element list; null becomes empty.
func splitList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "[") {
		return []json.RawMessage{raw}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// RetrievedDocuments groups the typed documents read back from a
// patient's index.
type RetrievedDocuments struct {
	Documents
	Encounters []EncounterDoc
	Patient    json.RawMessage
}

// ReadElasticResults unmarshals search hits into typed documents,
// keyed by their documentType, attaching each hit's score.
func ReadElasticResults(hits []elastic.Hit) (*RetrievedDocuments, error) {
	out := &RetrievedDocuments{}
	for _, hit := range hits {
		abstract := []byte(hit.Source.Abstract)
		switch hit.Source.DocumentType {
		case DocTypePatient:
			out.Patient = json.RawMessage(hit.Source.Abstract)
		case DocTypeEncounter:
			var doc EncounterDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read encounter abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.Encounters = append(out.Encounters, doc)
		case DocTypePMSI:
			var doc PMSIDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read pmsi abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.PMSIs = append(out.PMSIs, doc)
		case DocTypeLabResult:
			var doc LabResultDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read lab result abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.LabResults = append(out.LabResults, doc)
		case DocTypeClinicalReport:
			var doc ClinicalReportDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read clinical report abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.ClinicalReports = append(out.ClinicalReports, doc)
		case DocTypeQuestionnaire:
			var doc QuestionnaireDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read questionnaire abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.QuestionnaireResponses = append(out.QuestionnaireResponses, doc)
		case DocTypeBacteriology:
			var doc BacteriologyDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read bacteriology abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.Bacteriology = append(out.Bacteriology, doc)
		case DocTypeMedicationAdmin:
			var doc MedicationAdminDoc
			if err := json.Unmarshal(abstract, &doc); err != nil {
				return nil, fmt.Errorf("patient: read medication administration abstract: %w", err)
			}
			doc.ESScore = hit.Score
			out.MedicationAdministrations = append(out.MedicationAdministrations, doc)
		}
	}
	return out, nil
}
