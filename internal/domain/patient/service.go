package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/elastic"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/fhirclient"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/graph"
	"github.com/etalab-ia/ami-ia-chub-app/internal/search"
	"github.com/etalab-ia/ami-ia-chub-app/internal/timeline"
)

var (
	// ErrIndexNotLoaded is returned by operations that require the
	// patient's documents to already be indexed.
	ErrIndexNotLoaded = errors.New("patient: index not loaded")
	// ErrNoDocuments means the patient's index holds no documents at
	// all; the index is dropped so the next request reloads it.
	ErrNoDocuments = errors.New("patient: no documents retrieved")
)

// IndexName returns the per-patient index name.
func IndexName(patientID string) string {
	return "patient_" + patientID
}

// Service loads patient data from the FHIR gateway into per-patient
// indices and serves timelines, searches and recommendations from
// them.
type Service struct {
	fhir  *fhirclient.Client
	es    *elastic.Client
	graph *graph.Client
	log   zerolog.Logger
}

func NewService(fhir *fhirclient.Client, es *elastic.Client, g *graph.Client, log zerolog.Logger) *Service {
	return &Service{
		fhir:  fhir,
		es:    es,
		graph: g,
		log:   log.With().Str("component", "patient").Logger(),
	}
}

// EnsureIndexed loads the patient's data from the FHIR gateway into
// their index unless it already exists. A failure mid-load drops the
// half-filled index so the next request starts clean.
func (s *Service) EnsureIndexed(ctx context.Context, patientID string) error {
	index := IndexName(patientID)
	exists, err := s.es.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.es.CreateIndex(ctx, index); err != nil {
		return err
	}
	if err := s.loadPatient(ctx, index, patientID); err != nil {
		s.log.Error().Err(err).Str("patient", patientID).Msg("loading patient data failed, dropping index")
		if delErr := s.es.DeleteIndex(ctx, index); delErr != nil {
			return fmt.Errorf("%w (cleaning index also failed: %s)", err, delErr)
		}
		return err
	}
	return nil
}

func (s *Service) loadPatient(ctx context.Context, index, patientID string) error {
	encountersRaw, err := s.fhir.Get(ctx, "patients", patientID, fhirclient.RouteEncounters)
	if err != nil && !errors.Is(err, fhirclient.ErrNotFound) {
		return err
	}
	bundle, err := s.fhir.GetAll(ctx, "patients", patientID)
	if err != nil {
		return err
	}
	if isNullJSON(bundle["patients"]) {
		return fmt.Errorf("patient %s: %w", patientID, fhirclient.ErrNotFound)
	}

	patientDocs, err := BuildElasticDocuments(DocTypePatient, bundle["patients"], nil)
	if err != nil {
		return err
	}
	if err := s.es.BulkIndex(ctx, index, DocTypePatient, patientDocs); err != nil {
		return err
	}

	inPMSI, err := EncounterIDsInPMSIs(bundle[DocTypePMSI])
	if err != nil {
		return err
	}
	encounterDocs, err := BuildElasticDocuments(DocTypeEncounter, encountersRaw, inPMSI)
	if err != nil {
		return err
	}
	if err := s.es.BulkIndex(ctx, index, DocTypeEncounter, encounterDocs); err != nil {
		return err
	}

	for _, docType := range DocumentTypes {
		docs, err := BuildElasticDocuments(docType, bundle[docType], nil)
		if err != nil {
			return err
		}
		if err := s.es.BulkIndex(ctx, index, docType, docs); err != nil {
			return err
		}
	}
	s.log.Info().Str("patient", patientID).Msg("patient data indexed")
	return nil
}

// TimelineResponse is the full set of series returned by the timeline
// endpoint.
type TimelineResponse struct {
	TimelineSet
	Oldest           string           `json:"oldest"`
	Recent           string           `json:"recent"`
	InfoPatient      json.RawMessage  `json:"infoPatient"`
	Hospitalisations *timeline.Series `json:"hospitalisations"`
	Consultations    *timeline.Series `json:"consultations"`
}

// Timeline aggregates every document type of the patient over the
// requested window. Zero start or end bounds are clamped to the span
// of the patient's encounters.
func (s *Service) Timeline(ctx context.Context, patientID string, start, end time.Time) (*TimelineResponse, error) {
	if err := s.EnsureIndexed(ctx, patientID); err != nil {
		return nil, err
	}
	index := IndexName(patientID)

	patientHits, err := s.es.DocumentsByType(ctx, index, DocTypePatient)
	if err != nil {
		return nil, err
	}
	encounterHits, err := s.es.DocumentsByType(ctx, index, DocTypeEncounter)
	if err != nil {
		return nil, err
	}
	docHits, err := s.es.AllDocuments(ctx, index, start, end)
	if err != nil {
		return nil, err
	}

	retrieved, err := ReadElasticResults(docHits)
	if err != nil {
		return nil, err
	}
	if retrieved.Count() == 0 {
		if delErr := s.es.DeleteIndex(ctx, index); delErr != nil {
			s.log.Error().Err(delErr).Str("index", index).Msg("cleaning empty index failed")
		}
		return nil, ErrNoDocuments
	}

	patientInfo, err := ReadElasticResults(patientHits)
	if err != nil {
		return nil, err
	}
	encounterInfo, err := ReadElasticResults(encounterHits)
	if err != nil {
		return nil, err
	}
	encounters := encounterInfo.Encounters

	start, end = clampWindow(start, end, encounters)
	stays, err := timeline.AggregateStays(StaysFromEncounters(encounters), start, end)
	if err != nil {
		return nil, err
	}
	set, err := CreateDocumentTimelines(&retrieved.Documents, start, end)
	if err != nil {
		return nil, err
	}

	return &TimelineResponse{
		TimelineSet:      *set,
		Oldest:           start.Format(time.RFC3339),
		Recent:           end.Format(time.RFC3339),
		InfoPatient:      patientInfo.Patient,
		Hospitalisations: stays.Hospitalisation,
		Consultations:    stays.Consultation,
	}, nil
}

// SearchOptions carries the parsed search query.
type SearchOptions struct {
	Terms     []string
	Operator  search.Operator
	Mode      search.Mode
	Start     time.Time
	End       time.Time
	DocType   string
	WithRecos bool
}

// SearchResponse mirrors TimelineResponse for search hits, with
// per-term recommendations when requested.
type SearchResponse struct {
	TimelineSet
	Oldest          string                           `json:"oldest"`
	Recent          string                           `json:"recent"`
	Recommandations map[string]graph.Recommendations `json:"recommandations,omitempty"`
}

// Search runs the compiled term query against the patient's index and
// aggregates the hits into timelines. The index must already be
// loaded.
func (s *Service) Search(ctx context.Context, patientID string, opts SearchOptions) (*SearchResponse, error) {
	index := IndexName(patientID)
	exists, err := s.es.IndexExists(ctx, index)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", index, ErrIndexNotLoaded)
	}

	start, end := opts.Start, opts.End
	if start.IsZero() || end.IsZero() {
		encounterHits, err := s.es.DocumentsByType(ctx, index, DocTypeEncounter)
		if err != nil {
			return nil, err
		}
		encounterInfo, err := ReadElasticResults(encounterHits)
		if err != nil {
			return nil, err
		}
		start, end = clampWindow(start, end, encounterInfo.Encounters)
	}

	query, err := search.Compile(search.Params{
		Terms:        opts.Terms,
		Operator:     opts.Operator,
		Mode:         opts.Mode,
		Start:        start,
		End:          end,
		DocumentType: opts.DocType,
	})
	if err != nil {
		return nil, err
	}
	hits, err := s.es.Search(ctx, index, query.Query, query.MinScore)
	if err != nil {
		return nil, err
	}
	retrieved, err := ReadElasticResults(hits)
	if err != nil {
		return nil, err
	}

	set, err := CreateDocumentTimelines(&retrieved.Documents, start, end)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{
		TimelineSet: *set,
		Oldest:      start.Format(time.RFC3339),
		Recent:      end.Format(time.RFC3339),
	}

	if opts.WithRecos {
		resp.Recommandations = map[string]graph.Recommendations{}
		for _, term := range opts.Terms {
			recos, err := s.recommendations(ctx, index, term, start, end)
			if err != nil {
				return nil, err
			}
			resp.Recommandations[term] = recos
		}
	}
	return resp, nil
}

// recommendations fetches graph recommendations for a term and
// augments every searchable concept with its document counts: alone,
// and combined with the searched term. Counts run concurrently.
func (s *Service) recommendations(ctx context.Context, index, term string, start, end time.Time) (graph.Recommendations, error) {
	recos, err := s.graph.Recommendations(ctx, term, 0)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, matches := range recos {
		for _, match := range matches {
			for _, concepts := range match.LinkedConcepts {
				for _, concept := range concepts {
					if concept.SearchTerm == "" {
						continue
					}
					concept := concept
					g.Go(func() error {
						pure, err := s.countMatches(ctx, index, []string{concept.SearchTerm}, start, end)
						if err != nil {
							return err
						}
						combined, err := s.countMatches(ctx, index, []string{concept.SearchTerm, term}, start, end)
						if err != nil {
							return err
						}
						concept.PureSearchMatchesCount = &pure
						concept.CombinedSearchMatchCount = &combined
						return nil
					})
				}
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recos, nil
}

func (s *Service) countMatches(ctx context.Context, index string, terms []string, start, end time.Time) (int, error) {
	query, err := search.Compile(search.Params{
		Terms:    terms,
		Operator: search.OperatorAnd,
		Mode:     search.ModeExact,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return 0, err
	}
	return s.es.Count(ctx, index, query.Query, query.MinScore)
}

// AutocompleteResponse pairs the prefix with its completions, most
// frequent first.
type AutocompleteResponse struct {
	Term    string   `json:"term"`
	Results []string `json:"results"`
}

func (s *Service) Autocomplete(ctx context.Context, patientID, term string) (*AutocompleteResponse, error) {
	results, err := s.es.Autocomplete(ctx, IndexName(patientID), term)
	if err != nil {
		return nil, err
	}
	return &AutocompleteResponse{Term: term, Results: results}, nil
}

// SelectResource proxies one gateway route for a resource.
func (s *Service) SelectResource(ctx context.Context, route, id, subroute string) (json.RawMessage, error) {
	return s.fhir.Get(ctx, route, id, subroute)
}

// AllResources proxies the gateway's full bundle for a resource and
// annotates it with the patient's oldest and most recent encounter
// dates.
func (s *Service) AllResources(ctx context.Context, route, id string) (map[string]json.RawMessage, error) {
	encountersRaw, err := s.fhir.Get(ctx, "patients", id, fhirclient.RouteEncounters)
	if err != nil && !errors.Is(err, fhirclient.ErrNotFound) {
		return nil, err
	}
	bundle, err := s.fhir.GetAll(ctx, route, id)
	if err != nil {
		return nil, err
	}
	if isNullJSON(bundle[route]) && isNullJSON(bundle["patients"]) {
		return nil, fhirclient.ErrNotFound
	}

	out := map[string]json.RawMessage(bundle)
	if oldest, recent, ok := encounterDateSpan(encountersRaw); ok {
		out["oldest"], _ = json.Marshal(oldest)
		out["recent"], _ = json.Marshal(recent)
	}
	return out, nil
}

// DropIndex removes the patient's index so the next timeline request
// reloads it from the gateway.
func (s *Service) DropIndex(ctx context.Context, patientID string) error {
	return s.es.DeleteIndex(ctx, IndexName(patientID))
}

// clampWindow fills zero window bounds from the encounters' span and
// narrows out-of-span bounds to it.
func clampWindow(start, end time.Time, encounters []EncounterDoc) (time.Time, time.Time) {
	var min, max time.Time
	for _, enc := range encounters {
		if s := parseDate(enc.Start); !s.IsZero() && (min.IsZero() || s.Before(min)) {
			min = s
		}
		if e := parseDate(enc.End); !e.IsZero() && (max.IsZero() || e.After(max)) {
			max = e
		}
	}
	if !min.IsZero() && (start.IsZero() || start.Before(min)) {
		start = min
	}
	if !max.IsZero() && (end.IsZero() || end.After(max)) {
		end = max
	}
	return start, end
}

// encounterDateSpan returns the earliest start and latest end across
// the raw FHIR encounters.
func encounterDateSpan(raw json.RawMessage) (oldest, recent string, ok bool) {
	var encounters []fhirEncounter
	if err := decodeList(raw, &encounters); err != nil {
		return "", "", false
	}
	var min, max time.Time
	for _, enc := range encounters {
		if s := parseDate(enc.Period.Start); !s.IsZero() && (min.IsZero() || s.Before(min)) {
			min = s
			oldest = enc.Period.Start
		}
		if e := parseDate(enc.Period.End); !e.IsZero() && (max.IsZero() || e.After(max)) {
			max = e
			recent = enc.Period.End
		}
	}
	return oldest, recent, !min.IsZero() && !max.IsZero()
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := string(raw)
	return trimmed == "" || trimmed == "null"
}
