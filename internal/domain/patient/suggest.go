package patient

import (
	"strconv"
	"strings"
)

// breakToSingleWords expands each suggestion with its individual words,
// lowercases everything and drops duplicates. Feeding both the full
// phrase and its words to the completion field lets a prefix match any
// word of a label.
func breakToSingleWords(suggestions []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.ToLower(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, suggestion := range suggestions {
		add(suggestion)
		for _, word := range strings.Fields(suggestion) {
			add(word)
		}
	}
	return out
}

func (d PMSIDoc) suggestions() []string {
	return breakToSingleWords([]string{d.Type, d.DiagnosisCode, d.DiagnosisDisplay})
}

func (d LabResultDoc) suggestions() []string {
	s := []string{d.CategoryDisplay, d.Code}
	if d.Label != "" {
		s = append(s, d.Label)
	}
	return breakToSingleWords(s)
}

func (d ClinicalReportDoc) suggestions() []string {
	return breakToSingleWords([]string{d.CategoryCode, d.CategoryDisplay, d.Display})
}

func (d QuestionnaireDoc) suggestions() []string {
	s := []string{d.Category.Display}
	if d.QRList != nil {
		s = append(s, questionTitles(*d.QRList)...)
	}
	return breakToSingleWords(s)
}

// questionTitles collects the codes and textual titles of a response
// tree, skipping resource-type roots, blanks and purely numeric
// answers.
func questionTitles(node QRNode) []string {
	var titles []string
	if node.Code != "" {
		titles = append(titles, node.Code)
	}
	title := strings.TrimSpace(node.Title)
	if title != "" && title != "QuestionnaireResponse" {
		if _, err := strconv.ParseFloat(title, 64); err != nil {
			titles = append(titles, node.Title)
		}
	}
	for _, child := range node.Children {
		titles = append(titles, questionTitles(child)...)
	}
	return titles
}

func (d BacteriologyDoc) suggestions() []string {
	var s []string
	s = append(s, d.Examens...)
	s = append(s, d.Results...)
	for _, obs := range d.Observations {
		s = append(s, obs.Code)
		if obs.Interpretation != "" {
			s = append(s, obs.Interpretation)
		}
	}
	return breakToSingleWords(s)
}

func (d MedicationAdminDoc) suggestions() []string {
	var s []string
	for _, med := range d.Medicaments {
		s = append(s, med.MedCode, med.MedName)
	}
	return breakToSingleWords(s)
}
