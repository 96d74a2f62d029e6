package patient

import (
	"time"

	"github.com/etalab-ia/ami-ia-chub-app/internal/timeline"
)

// Series names used by the front end. Categorized domains rank their
// category sub-timelines; the medication and bacteriology domains only
// carry a main timeline.
const (
	SeriesPMSI            = "PMSI"
	SeriesBiology         = "Biologie"
	SeriesClinicalReports = "Comptes Rendus"
	SeriesQRMedical       = "questionnaires médicaux"
	SeriesQRParamedical   = "questionnaires paramédicaux"
	SeriesMedications     = "Traitements"
	SeriesBacteriology    = "Bacteriologie"

	labelMedications  = "Administrations médicamenteuses"
	labelBacteriology = "Bactériologie"
)

// categoryRankCut caps how many category sub-timelines survive before
// the rest are merged into "autres".
const categoryRankCut = 4

func pmsiConfig() timeline.Config {
	return timeline.Config{
		MainName:       SeriesPMSI,
		CanonicalOrder: []string{"DP", "DAS"},
		TrailingOrder:  []string{UnknownType},
		DaySubBucket:   true,
		FormatDays:     formatPMSIDays,
	}
}

func labResultConfig() timeline.Config {
	return timeline.Config{
		MainName:       SeriesBiology,
		TopK:           categoryRankCut,
		CanonicalOrder: []string{"Biochimie", "Hématologie"},
		TrailingOrder:  []string{UnknownType},
		DaySubBucket:   true,
		FormatDays:     formatLabResultDays,
	}
}

func questionnaireConfig(mainName string) timeline.Config {
	return timeline.Config{
		MainName: mainName,
		TopK:     categoryRankCut,
		Format:   formatQuestionnaires,
	}
}

func clinicalReportConfig() timeline.Config {
	return timeline.Config{
		MainName: SeriesClinicalReports,
		Format:   formatClinicalReports,
	}
}

func medicationConfig() timeline.Config {
	return timeline.Config{
		MainName:     SeriesMedications,
		EventLabel:   labelMedications,
		DaySubBucket: true,
		FormatDays:   formatMedicationDays,
	}
}

func bacteriologyConfig() timeline.Config {
	return timeline.Config{
		MainName:   SeriesBacteriology,
		EventLabel: labelBacteriology,
		Format:     formatBacteriology,
	}
}

func pmsiSources(docs []PMSIDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:            parseDate(doc.Date),
			CategoryCode:    doc.Type,
			CategoryDisplay: doc.Type,
			Payload:         doc,
		})
	}
	return out
}

func labResultSources(docs []LabResultDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:            parseDate(doc.Date),
			CategoryCode:    doc.CategoryCode,
			CategoryDisplay: doc.CategoryDisplay,
			Payload:         doc,
		})
	}
	return out
}

func questionnaireSources(docs []QuestionnaireDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:            parseDate(doc.Date),
			CategoryCode:    doc.Category.Code,
			CategoryDisplay: doc.Category.Display,
			Payload:         doc,
		})
	}
	return out
}

func clinicalReportSources(docs []ClinicalReportDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:            parseDate(doc.Date),
			CategoryCode:    doc.CategoryCode,
			CategoryDisplay: doc.CategoryDisplay,
			Payload:         doc,
		})
	}
	return out
}

func medicationSources(docs []MedicationAdminDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:    parseDate(doc.Date),
			Payload: doc,
		})
	}
	return out
}

func bacteriologySources(docs []BacteriologyDoc) []timeline.SourceDocument {
	out := make([]timeline.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, timeline.SourceDocument{
			Date:    parseDate(doc.Date),
			Payload: doc,
		})
	}
	return out
}

// StaysFromEncounters converts encounter documents into the stays fed
// to the hospitalisation timeline.
func StaysFromEncounters(docs []EncounterDoc) []timeline.Stay {
	stays := make([]timeline.Stay, 0, len(docs))
	for _, doc := range docs {
		stays = append(stays, timeline.Stay{
			ID:              doc.ID,
			Identifier:      doc.Identifier,
			Type:            doc.Type,
			Display:         doc.Display,
			Start:           parseDate(doc.Start),
			End:             parseDate(doc.End),
			Consultation:    doc.Consultation,
			Hospitalisation: doc.Hospitalisation,
			OneDay:          doc.OneDay,
		})
	}
	return stays
}

// TimelineSet groups the aggregated timelines of every document type.
// The bacteriology main timeline rides along as the first lab-results
// sub-timeline.
type TimelineSet struct {
	LabResults                *timeline.Result `json:"labResults"`
	ClinicalReports           *timeline.Result `json:"clinicalReports"`
	MedicationAdministrations *timeline.Result `json:"medicationAdministrations"`
	QRMedical                 *timeline.Result `json:"qrMedical"`
	QRParamedical             *timeline.Result `json:"qrParamedical"`
	PMSIs                     *timeline.Result `json:"pmsis"`
}

// CreateDocumentTimelines aggregates every document type over the
// given window.
func CreateDocumentTimelines(docs *Documents, winStart, winEnd time.Time) (*TimelineSet, error) {
	set := &TimelineSet{}

	var err error
	if set.PMSIs, err = pmsiConfig().Aggregate(pmsiSources(docs.PMSIs), winStart, winEnd); err != nil {
		return nil, err
	}
	if set.LabResults, err = labResultConfig().Aggregate(labResultSources(docs.LabResults), winStart, winEnd); err != nil {
		return nil, err
	}
	if set.ClinicalReports, err = clinicalReportConfig().Aggregate(clinicalReportSources(docs.ClinicalReports), winStart, winEnd); err != nil {
		return nil, err
	}

	medical, paramedical := SplitQuestionnaires(docs.QuestionnaireResponses)
	if set.QRMedical, err = questionnaireConfig(SeriesQRMedical).Aggregate(questionnaireSources(medical), winStart, winEnd); err != nil {
		return nil, err
	}
	if set.QRParamedical, err = questionnaireConfig(SeriesQRParamedical).Aggregate(questionnaireSources(paramedical), winStart, winEnd); err != nil {
		return nil, err
	}

	if set.MedicationAdministrations, err = medicationConfig().AggregateSingle(medicationSources(docs.MedicationAdministrations), winStart, winEnd); err != nil {
		return nil, err
	}

	bacterio, err := bacteriologyConfig().AggregateSingle(bacteriologySources(docs.Bacteriology), winStart, winEnd)
	if err != nil {
		return nil, err
	}
	if bacterio.MainTimeline != nil && len(bacterio.MainTimeline.Events) > 0 {
		set.LabResults.SubTimelines = append([]*timeline.Series{bacterio.MainTimeline}, set.LabResults.SubTimelines...)
	}
	return set, nil
}
