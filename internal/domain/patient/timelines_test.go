package patient

import (
	"testing"
	"time"

	"github.com/etalab-ia/ami-ia-chub-app/internal/timeline"
)

func window() (time.Time, time.Time) {
	return time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 1, 31, 0, 0, 0, 0, time.UTC)
}

func TestCreateDocumentTimelines_PMSI(t *testing.T) {
	start, end := window()
	docs := &Documents{
		PMSIs: []PMSIDoc{
			{Date: "2019-01-05T00:00:00Z", Type: "DAS", DiagnosisCode: "E11"},
			{Date: "2019-01-05T00:00:00Z", Type: "DP", DiagnosisCode: "I21"},
			{Date: "2019-01-06T00:00:00Z", Type: "DP", DiagnosisCode: "I21"},
		},
	}

	set, err := CreateDocumentTimelines(docs, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	main := set.PMSIs.MainTimeline
	if main.Name != SeriesPMSI {
		t.Errorf("expected main series %q, got %q", SeriesPMSI, main.Name)
	}
	if len(main.Events) != 2 {
		t.Fatalf("expected one event per day at day granularity, got %d", len(main.Events))
	}

	subs := set.PMSIs.SubTimelines
	if len(subs) != 2 {
		t.Fatalf("expected DP and DAS sub-timelines, got %d", len(subs))
	}
	if subs[0].Name != "DP" || subs[1].Name != "DAS" {
		t.Errorf("expected canonical order [DP DAS], got [%s %s]", subs[0].Name, subs[1].Name)
	}

	payload, ok := main.Events[0].Payload.(pmsiEvent)
	if !ok {
		t.Fatalf("expected pmsiEvent payload, got %T", main.Events[0].Payload)
	}
	if len(payload.PMSIs) != 1 || payload.PMSIs[0].Type != SeriesPMSI {
		t.Errorf("unexpected main payload: %+v", payload)
	}
	day := payload.PMSIs[0]
	if got := day.Documents.([]PMSIDoc); len(got) != 2 {
		t.Errorf("expected both documents of Jan 5, got %d", len(got))
	}
	if !day.Date.Equal(time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day entry date should be midnight, got %v", day.Date)
	}
}

func TestCreateDocumentTimelines_BacteriologyRidesWithLabResults(t *testing.T) {
	start, end := window()
	docs := &Documents{
		LabResults: []LabResultDoc{
			{Date: "2019-01-10T08:00:00Z", CategoryCode: "BIOCH", CategoryDisplay: "Biochimie", Code: "2160-0"},
		},
		Bacteriology: []BacteriologyDoc{
			{Date: "2019-01-12T00:00:00Z", Examens: []string{"Hémoculture"}},
		},
	}

	set, err := CreateDocumentTimelines(docs, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	subs := set.LabResults.SubTimelines
	if len(subs) != 2 {
		t.Fatalf("expected bacteriology plus one category, got %d series", len(subs))
	}
	if subs[0].Name != SeriesBacteriology {
		t.Errorf("bacteriology should ride first, got %q", subs[0].Name)
	}
	if subs[1].Name != "Biochimie" {
		t.Errorf("expected Biochimie after bacteriology, got %q", subs[1].Name)
	}

	payload := subs[0].Events[0].Payload.(bacteriologyEvent)
	if payload.Bacteriology[0].Type != labelBacteriology {
		t.Errorf("bacteriology events should be labeled %q, got %q", labelBacteriology, payload.Bacteriology[0].Type)
	}
}

func TestCreateDocumentTimelines_Medications(t *testing.T) {
	start, end := window()
	docs := &Documents{
		MedicationAdministrations: []MedicationAdminDoc{
			{Date: "2019-01-03T09:05:00Z", MedicationTime: "9:5"},
			{Date: "2019-01-03T18:30:00Z", MedicationTime: "18:30"},
		},
	}

	set, err := CreateDocumentTimelines(docs, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	med := set.MedicationAdministrations
	if med.MainTimeline.Name != SeriesMedications {
		t.Errorf("expected series %q, got %q", SeriesMedications, med.MainTimeline.Name)
	}
	if med.SubTimelines != nil {
		t.Error("medication timeline must not carry sub-timelines")
	}

	payload := med.MainTimeline.Events[0].Payload.(medicationEvent)
	if payload.MA[0].Type != labelMedications {
		t.Errorf("expected event label %q, got %q", labelMedications, payload.MA[0].Type)
	}
	wantDate := time.Date(2019, 1, 3, 9, 5, 0, 0, time.UTC)
	if !payload.MA[0].Date.Equal(wantDate) {
		t.Errorf("medication day entry keeps the first administration time, got %v", payload.MA[0].Date)
	}
	if got := payload.MA[0].Documents.([]MedicationAdminDoc); len(got) != 2 {
		t.Errorf("expected both administrations of the day, got %d", len(got))
	}
}

func TestCreateDocumentTimelines_QuestionnaireSplit(t *testing.T) {
	start, end := window()
	docs := &Documents{
		QuestionnaireResponses: []QuestionnaireDoc{
			{Identifier: "a", Date: "2019-01-04T00:00:00Z", Type: CodeDisplay{Display: "1-Médical"}, Category: CodeDisplay{Code: "c1", Display: "Cardiologie"}},
			{Identifier: "b", Date: "2019-01-05T00:00:00Z", Type: CodeDisplay{Display: "2-Paramédical"}, Category: CodeDisplay{Code: "c2", Display: "Soins"}},
		},
	}

	set, err := CreateDocumentTimelines(docs, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.QRMedical.MainTimeline.Name != SeriesQRMedical {
		t.Errorf("unexpected medical series name %q", set.QRMedical.MainTimeline.Name)
	}
	if len(set.QRMedical.MainTimeline.Events) != 1 {
		t.Fatalf("expected one medical event, got %d", len(set.QRMedical.MainTimeline.Events))
	}
	payload := set.QRMedical.MainTimeline.Events[0].Payload.(questionnaireEvent)
	if payload.QR[0].Identifier != "a" || payload.QR[0].Type != SeriesQRMedical {
		t.Errorf("unexpected medical payload: %+v", payload.QR[0])
	}

	if len(set.QRParamedical.MainTimeline.Events) != 1 {
		t.Fatalf("expected one paramedical event, got %d", len(set.QRParamedical.MainTimeline.Events))
	}
	sub := set.QRParamedical.SubTimelines
	if len(sub) != 1 || sub[0].Name != "Soins" {
		t.Errorf("category series should use the display name, got %+v", sub)
	}
}

func TestCreateDocumentTimelines_InvalidDate(t *testing.T) {
	start, end := window()
	docs := &Documents{
		PMSIs: []PMSIDoc{{Date: "not-a-date", Type: "DP"}},
	}
	if _, err := CreateDocumentTimelines(docs, start, end); err == nil {
		t.Fatal("expected error for unparseable document date")
	}
}

func TestStaysFromEncounters(t *testing.T) {
	stays := StaysFromEncounters([]EncounterDoc{
		{
			ID:              "enc-1",
			Start:           "2019-01-01T00:00:00Z",
			End:             "2019-01-10T00:00:00Z",
			Hospitalisation: true,
		},
	})
	if len(stays) != 1 {
		t.Fatalf("expected 1 stay, got %d", len(stays))
	}
	if !stays[0].Hospitalisation || stays[0].OneDay {
		t.Errorf("unexpected flags: %+v", stays[0])
	}
	if stays[0].Start.IsZero() || stays[0].End.IsZero() {
		t.Error("stay bounds must be parsed")
	}

	res, err := timeline.AggregateStays(stays,
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Hospitalisation.Events) != 1 {
		t.Errorf("expected one hospitalisation event, got %d", len(res.Hospitalisation.Events))
	}
}
