package patient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UnknownType labels documents whose FHIR resource carries no usable
// category.
const UnknownType = "UNKNOWN_TYPE"

type fhirCoding struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

type fhirCodeable struct {
	Coding []fhirCoding `json:"coding"`
	Text   string       `json:"text"`
}

func (c fhirCodeable) first() fhirCoding {
	if len(c.Coding) > 0 {
		return c.Coding[0]
	}
	return fhirCoding{}
}

// --- Encounters ---

type fhirEncounter struct {
	ID     string `json:"id"`
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
	Identifier []struct {
		System string `json:"system"`
	} `json:"identifier"`
	Type []struct {
		Text string `json:"text"`
	} `json:"type"`
	Location []struct {
		Location struct {
			Display string `json:"display"`
		} `json:"location"`
		Period struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"period"`
	} `json:"location"`
}

// MapEncounters flattens FHIR encounters into one document per
// location. Encounters referenced by a PMSI claim are
// hospitalisations; the rest are consultations.
func MapEncounters(raw json.RawMessage, inPMSI []string) ([]EncounterDoc, error) {
	var encounters []fhirEncounter
	if err := decodeList(raw, &encounters); err != nil {
		return nil, fmt.Errorf("patient: decode encounters: %w", err)
	}

	hospitalised := map[string]bool{}
	for _, id := range inPMSI {
		hospitalised[id] = true
	}

	var docs []EncounterDoc
	for _, enc := range encounters {
		identifier := ""
		if len(enc.Identifier) > 0 {
			identifier = enc.Identifier[0].System
		}
		encType := ""
		if len(enc.Type) > 0 {
			encType = enc.Type[0].Text
		}
		for _, loc := range enc.Location {
			start := parseDate(loc.Period.Start)
			end := parseDate(loc.Period.End)
			docs = append(docs, EncounterDoc{
				ID:              enc.ID,
				Identifier:      identifier,
				Type:            encType,
				Display:         loc.Location.Display,
				Start:           loc.Period.Start,
				End:             loc.Period.End,
				Consultation:    !hospitalised[enc.ID],
				Hospitalisation: hospitalised[enc.ID],
				OneDay:          !start.IsZero() && start.Equal(end),
			})
		}
	}
	return docs, nil
}

// --- PMSI claims ---

type fhirPMSI struct {
	Created   string `json:"created"`
	Diagnosis []struct {
		Type                     []fhirCodeable `json:"type"`
		DiagnosisCodeableConcept fhirCodeable   `json:"diagnosisCodeableConcept"`
	} `json:"diagnosis"`
	Procedure []struct {
		ProcedureCodeableConcept fhirCodeable `json:"procedureCodeableConcept"`
	} `json:"procedure"`
	Item []struct {
		Encounter []struct {
			Reference string `json:"reference"`
		} `json:"encounter"`
	} `json:"item"`
}

// MapPMSIs turns each claim's diagnoses and procedures into dated
// documents typed by the diagnosis role (DP, DAS...); procedures are
// typed DIAG.
func MapPMSIs(raw json.RawMessage) ([]PMSIDoc, error) {
	var claims []fhirPMSI
	if err := decodeList(raw, &claims); err != nil {
		return nil, fmt.Errorf("patient: decode pmsis: %w", err)
	}

	var docs []PMSIDoc
	for _, claim := range claims {
		for _, diag := range claim.Diagnosis {
			docType := UnknownType
			if len(diag.Type) > 0 {
				code := diag.Type[0].first().Code
				if idx := strings.Index(code, "|"); idx >= 0 {
					docType = code[idx+1:]
				}
			}
			coding := diag.DiagnosisCodeableConcept.first()
			docs = append(docs, PMSIDoc{
				Date:             claim.Created,
				Type:             docType,
				DiagnosisCode:    coding.Code,
				DiagnosisDisplay: coding.Display,
			})
		}
		for _, proc := range claim.Procedure {
			coding := proc.ProcedureCodeableConcept.first()
			docs = append(docs, PMSIDoc{
				Date:             claim.Created,
				Type:             "DIAG",
				DiagnosisCode:    coding.Code,
				DiagnosisDisplay: coding.Display,
			})
		}
	}
	return docs, nil
}

// EncounterIDsInPMSIs extracts the distinct encounter ids referenced
// by the patient's PMSI claims.
func EncounterIDsInPMSIs(raw json.RawMessage) ([]string, error) {
	var claims []fhirPMSI
	if err := decodeList(raw, &claims); err != nil {
		return nil, fmt.Errorf("patient: decode pmsis: %w", err)
	}

	seen := map[string]bool{}
	var ids []string
	for _, claim := range claims {
		if len(claim.Item) == 0 || len(claim.Item[0].Encounter) == 0 {
			continue
		}
		ref := claim.Item[0].Encounter[0].Reference
		parts := strings.SplitN(ref, "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		if !seen[parts[1]] {
			seen[parts[1]] = true
			ids = append(ids, parts[1])
		}
	}
	return ids, nil
}

// --- Lab results ---

type fhirLabResult struct {
	Category          []fhirCodeable `json:"category"`
	Code              fhirCodeable   `json:"code"`
	EffectiveDateTime string         `json:"effectiveDateTime"`
	ValueQuantity     *ValueQuantity `json:"valueQuantity"`
	ReferenceRange    []struct {
		Text string `json:"text"`
	} `json:"referenceRange"`
}

func MapLabResults(raw json.RawMessage) ([]LabResultDoc, error) {
	var observations []fhirLabResult
	if err := decodeList(raw, &observations); err != nil {
		return nil, fmt.Errorf("patient: decode lab results: %w", err)
	}

	var docs []LabResultDoc
	for _, obs := range observations {
		category := fhirCoding{}
		if len(obs.Category) > 0 {
			category = obs.Category[0].first()
		}
		refRange := ""
		if len(obs.ReferenceRange) > 0 {
			refRange = obs.ReferenceRange[0].Text
		}
		docs = append(docs, LabResultDoc{
			CategoryCode:    orUnknown(category.Code),
			CategoryDisplay: orUnknown(category.Display),
			Code:            obs.Code.first().Code,
			Label:           obs.Code.first().Display,
			Date:            obs.EffectiveDateTime,
			ValueQuantity:   obs.ValueQuantity,
			ReferenceRange:  refRange,
		})
	}
	return docs, nil
}

// --- Clinical reports ---

type fhirClinicalReport struct {
	Category   fhirCodeable `json:"category"`
	Code       fhirCodeable `json:"code"`
	Issued     string       `json:"issued"`
	Conclusion string       `json:"conclusion"`
}

func MapClinicalReports(raw json.RawMessage) ([]ClinicalReportDoc, error) {
	var reports []fhirClinicalReport
	if err := decodeList(raw, &reports); err != nil {
		return nil, fmt.Errorf("patient: decode clinical reports: %w", err)
	}

	var docs []ClinicalReportDoc
	for _, report := range reports {
		category := report.Category.first()
		docs = append(docs, ClinicalReportDoc{
			CategoryCode:    orUnknown(category.Code),
			CategoryDisplay: orUnknown(category.Display),
			Display:         report.Code.first().Display,
			Date:            report.Issued,
			Conclusion:      report.Conclusion,
		})
	}
	return docs, nil
}

// --- Questionnaire responses ---

type fhirQRAnswer struct {
	ValueCoding  *fhirCoding `json:"valueCoding"`
	ValueString  string      `json:"valueString"`
	ValueDecimal *float64    `json:"valueDecimal"`
}

type fhirQRItem struct {
	Text       string         `json:"text"`
	Definition string         `json:"definition"`
	Answer     []fhirQRAnswer `json:"answer"`
	Item       []fhirQRItem   `json:"item"`
}

type fhirQuestionnaire struct {
	ResourceType string `json:"resourceType"`
	Identifier   struct {
		Value string `json:"value"`
	} `json:"identifier"`
	Authored string `json:"authored"`
	Context  *struct {
		Reference string `json:"reference"`
		Display   string `json:"display"`
	} `json:"context"`
	Item []fhirQRItem `json:"item"`
}

// contextPart splits a "type | category" context field and returns the
// requested half.
func contextPart(value string, idx int) string {
	parts := strings.Split(value, " | ")
	if idx < len(parts) {
		return parts[idx]
	}
	return ""
}

func MapQuestionnaires(raw json.RawMessage) ([]QuestionnaireDoc, error) {
	var responses []fhirQuestionnaire
	if err := decodeList(raw, &responses); err != nil {
		return nil, fmt.Errorf("patient: decode questionnaire responses: %w", err)
	}

	var docs []QuestionnaireDoc
	for _, qr := range responses {
		doc := QuestionnaireDoc{
			Identifier: qr.Identifier.Value,
			Date:       qr.Authored,
			QRList:     questionnaireTree(qr),
		}
		if qr.Context != nil {
			doc.Type = CodeDisplay{
				Code:    contextPart(qr.Context.Reference, 0),
				Display: contextPart(qr.Context.Display, 0),
			}
			doc.Category = CodeDisplay{
				Code:    contextPart(qr.Context.Reference, 1),
				Display: contextPart(qr.Context.Display, 1),
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// questionnaireTree renders the response items as a front-end tree.
func questionnaireTree(qr fhirQuestionnaire) *QRNode {
	root := &QRNode{
		Key:   uuid.NewString(),
		Title: qr.ResourceType,
	}
	for _, item := range qr.Item {
		root.Children = append(root.Children, questionnaireNode(item))
	}
	return root
}

func questionnaireNode(item fhirQRItem) QRNode {
	if len(item.Answer) > 0 {
		title := item.Text
		if strings.Contains(title, "http://") || strings.Contains(title, "https://") || strings.Contains(title, "UNKNOWN") {
			title = "Question non trouvée"
		}
		node := QRNode{
			Key:   uuid.NewString(),
			Title: title,
			Code:  item.Definition,
		}
		for _, answer := range item.Answer {
			node.Children = append(node.Children, answerNode(answer))
		}
		return node
	}

	node := QRNode{Key: uuid.NewString(), Title: item.Text}
	for _, child := range item.Item {
		node.Children = append(node.Children, questionnaireNode(child))
	}
	return node
}

func answerNode(answer fhirQRAnswer) QRNode {
	node := QRNode{Key: uuid.NewString(), IsLeaf: true}
	switch {
	case answer.ValueCoding != nil:
		node.Title = answer.ValueCoding.Display
		node.Code = answer.ValueCoding.Code
	case answer.ValueString != "":
		node.Title = strings.ReplaceAll(answer.ValueString, "NEWLINESEP", "\n")
	case answer.ValueDecimal != nil:
		node.Title = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", *answer.ValueDecimal), "0"), ".")
	}
	return node
}

// SplitQuestionnaires separates medical questionnaires (type display
// "1-Médical") from paramedical ones.
func SplitQuestionnaires(docs []QuestionnaireDoc) (medical, paramedical []QuestionnaireDoc) {
	for _, doc := range docs {
		if doc.Type.Display == "1-Médical" {
			medical = append(medical, doc)
		} else {
			paramedical = append(paramedical, doc)
		}
	}
	return medical, paramedical
}

// --- Bacteriology ---

type fhirBacteriologyBundle struct {
	Entry []struct {
		Resource struct {
			ResourceType string       `json:"resourceType"`
			Issued       string       `json:"issued"`
			Category     fhirCodeable `json:"category"`
			Result       []struct {
				Display string `json:"display"`
			} `json:"result"`
			Code           fhirCodeable  `json:"code"`
			Interpretation *fhirCodeable `json:"interpretation"`
			Component      []struct {
				ValueString string `json:"valueString"`
			} `json:"component"`
			ValueQuantity *ValueQuantity `json:"valueQuantity"`
		} `json:"resource"`
	} `json:"entry"`
}

func MapBacteriology(raw json.RawMessage) ([]BacteriologyDoc, error) {
	var bundles []fhirBacteriologyBundle
	if err := decodeList(raw, &bundles); err != nil {
		return nil, fmt.Errorf("patient: decode bacteriology: %w", err)
	}

	var docs []BacteriologyDoc
	for _, bundle := range bundles {
		doc := BacteriologyDoc{Observations: []BacteriologyObservation{}}
		for _, entry := range bundle.Entry {
			res := entry.Resource
			if res.ResourceType == "DiagnosticReport" {
				doc.Date = res.Issued
				for _, coding := range res.Category.Coding {
					label := coding.Display
					if label == "" {
						label = coding.Code
					}
					doc.Examens = append(doc.Examens, label)
				}
			}
			for _, result := range res.Result {
				doc.Results = append(doc.Results, result.Display)
			}
			if res.ResourceType == "Observation" {
				obs := BacteriologyObservation{}
				coding := res.Code.first()
				obs.Code = coding.Display
				if obs.Code == "" {
					obs.Code = coding.Code
				}
				if res.Interpretation != nil {
					obs.Interpretation = res.Interpretation.first().Display
				}
				if len(res.Component) > 0 && res.Component[0].ValueString != "" {
					obs.Value = res.Component[0].ValueString
				} else if res.ValueQuantity != nil && res.ValueQuantity.Value != 0 {
					obs.Value = fmt.Sprintf("%v %s", res.ValueQuantity.Value, res.ValueQuantity.Unit)
				}
				doc.Observations = append(doc.Observations, obs)
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// --- Medication administrations ---

type fhirMedicationAdmin struct {
	EffectiveDateTime   string `json:"effectiveDateTime"`
	MedicationReference struct {
		Reference string `json:"reference"`
	} `json:"medicationReference"`
	Contained []struct {
		Code fhirCodeable `json:"code"`
	} `json:"contained"`
}

func MapMedicationAdmins(raw json.RawMessage) ([]MedicationAdminDoc, error) {
	var administrations []fhirMedicationAdmin
	if err := decodeList(raw, &administrations); err != nil {
		return nil, fmt.Errorf("patient: decode medication administrations: %w", err)
	}

	var docs []MedicationAdminDoc
	for _, adm := range administrations {
		when := parseDate(adm.EffectiveDateTime)
		var medicaments []Medicament
		for _, contained := range adm.Contained {
			medicaments = append(medicaments, Medicament{
				MedCode: contained.Code.first().Code,
				MedName: contained.Code.Text,
			})
		}
		docs = append(docs, MedicationAdminDoc{
			Date:                adm.EffectiveDateTime,
			MedicationTime:      fmt.Sprintf("%d:%d", when.Hour(), when.Minute()),
			MedicationReference: adm.MedicationReference.Reference,
			Medicaments:         medicaments,
		})
	}
	return docs, nil
}

// orUnknown substitutes the unknown-category marker for empty codes.
func orUnknown(s string) string {
	if s == "" {
		return UnknownType
	}
	return s
}

// decodeList unmarshals a gateway response that may be a JSON array, a
// single object, or null.
func decodeList[T any](raw json.RawMessage, out *[]T) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(raw, out)
	}
	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	*out = append(*out, single)
	return nil
}
