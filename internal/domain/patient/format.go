package patient

import (
	"time"

	"github.com/etalab-ia/ami-ia-chub-app/internal/timeline"
)

// dayEntry is one calendar day's documents inside a period event.
type dayEntry struct {
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Documents any       `json:"documents"`
}

func dayMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

type pmsiEvent struct {
	PMSIs []dayEntry `json:"pmsis"`
}

func formatPMSIDays(days []timeline.DayGroup, label string) any {
	entries := make([]dayEntry, 0, len(days))
	for _, day := range days {
		docs := make([]PMSIDoc, 0, len(day.Docs))
		for _, src := range day.Docs {
			docs = append(docs, src.Payload.(PMSIDoc))
		}
		entries = append(entries, dayEntry{
			Date:      dayMidnight(day.Docs[0].Date),
			Type:      label,
			Documents: docs,
		})
	}
	return pmsiEvent{PMSIs: entries}
}

type labResultEvent struct {
	LabResults []dayEntry `json:"labResults"`
}

func formatLabResultDays(days []timeline.DayGroup, label string) any {
	entries := make([]dayEntry, 0, len(days))
	for _, day := range days {
		docs := make([]LabResultDoc, 0, len(day.Docs))
		for _, src := range day.Docs {
			docs = append(docs, src.Payload.(LabResultDoc))
		}
		entries = append(entries, dayEntry{
			Date:      dayMidnight(day.Docs[0].Date),
			Type:      label,
			Documents: docs,
		})
	}
	return labResultEvent{LabResults: entries}
}

type medicationEvent struct {
	MA []dayEntry `json:"ma"`
}

// formatMedicationDays keeps the first administration's full timestamp
// as the day entry date, unlike the midnight-normalized domains.
func formatMedicationDays(days []timeline.DayGroup, label string) any {
	entries := make([]dayEntry, 0, len(days))
	for _, day := range days {
		docs := make([]MedicationAdminDoc, 0, len(day.Docs))
		for _, src := range day.Docs {
			docs = append(docs, src.Payload.(MedicationAdminDoc))
		}
		entries = append(entries, dayEntry{
			Date:      day.Docs[0].Date,
			Type:      label,
			Documents: docs,
		})
	}
	return medicationEvent{MA: entries}
}

// labeledQuestionnaire replaces the questionnaire's context type with
// the series label when rendered inside an event.
type labeledQuestionnaire struct {
	QuestionnaireDoc
	Type string `json:"type"`
}

type questionnaireEvent struct {
	QR []labeledQuestionnaire `json:"qr"`
}

func formatQuestionnaires(docs []timeline.SourceDocument, label string) any {
	out := make([]labeledQuestionnaire, 0, len(docs))
	for _, src := range docs {
		out = append(out, labeledQuestionnaire{
			QuestionnaireDoc: src.Payload.(QuestionnaireDoc),
			Type:             label,
		})
	}
	return questionnaireEvent{QR: out}
}

type labeledClinicalReport struct {
	ClinicalReportDoc
	Type string `json:"type"`
}

type clinicalReportEvent struct {
	ClinicalReports []labeledClinicalReport `json:"clinicalReports"`
}

func formatClinicalReports(docs []timeline.SourceDocument, label string) any {
	out := make([]labeledClinicalReport, 0, len(docs))
	for _, src := range docs {
		out = append(out, labeledClinicalReport{
			ClinicalReportDoc: src.Payload.(ClinicalReportDoc),
			Type:              label,
		})
	}
	return clinicalReportEvent{ClinicalReports: out}
}

type labeledBacteriology struct {
	BacteriologyDoc
	Type string `json:"type"`
}

type bacteriologyEvent struct {
	Bacteriology []labeledBacteriology `json:"bacteriology"`
}

func formatBacteriology(docs []timeline.SourceDocument, label string) any {
	out := make([]labeledBacteriology, 0, len(docs))
	for _, src := range docs {
		out = append(out, labeledBacteriology{
			BacteriologyDoc: src.Payload.(BacteriologyDoc),
			Type:            label,
		})
	}
	return bacteriologyEvent{Bacteriology: out}
}
