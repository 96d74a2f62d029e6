// Package fhirclient talks to the FHIR gateway exposing patient
// resources. The gateway serves one route per resource kind under
// /patients/{id} and /encounters/{id}.
package fhirclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Resource kinds served as subroutes of a patient.
const (
	RouteLabResults      = "labResults"
	RouteClinicalReports = "clinicalReports"
	RouteMedicationAdmin = "medicationAdministrations"
	RouteProcedures      = "procedures"
	RoutePMSIs           = "pmsis"
	RouteQuestionnaires  = "questionnaireResponses"
	RouteBacteriology    = "bacteriology"
	RouteEncounters      = "encounters"
)

// Subroutes lists every resource kind, in fetch order.
var Subroutes = []string{
	RouteLabResults,
	RouteClinicalReports,
	RouteMedicationAdmin,
	RouteProcedures,
	RoutePMSIs,
	RouteQuestionnaires,
	RouteBacteriology,
	RouteEncounters,
}

// Routes lists the top-level resources.
var Routes = []string{"patients", "encounters"}

// ErrNotFound is returned when the gateway has no such resource.
var ErrNotFound = errors.New("fhirclient: resource not found")

// ErrUnknownRoute is returned for a route or subroute outside the
// gateway's surface.
var ErrUnknownRoute = errors.New("fhirclient: unknown route")

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	retryBackoff   = 500 * time.Millisecond
)

// Client is the gateway HTTP client. Transient failures are retried
// with a fixed backoff.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.With().Str("component", "fhirclient").Logger(),
	}
}

// ValidRoute reports whether route is a gateway top-level resource.
func ValidRoute(route string) bool {
	for _, r := range Routes {
		if r == route {
			return true
		}
	}
	return false
}

// ValidSubroute reports whether sub is a gateway resource kind.
func ValidSubroute(sub string) bool {
	for _, s := range Subroutes {
		if s == sub {
			return true
		}
	}
	return false
}

// Get fetches one resource, or one of its subroutes when sub is
// non-empty.
func (c *Client) Get(ctx context.Context, route, id, sub string) (json.RawMessage, error) {
	if !ValidRoute(route) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, route, id)
	if sub != "" {
		if !ValidSubroute(sub) {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownRoute, route, sub)
		}
		url = fmt.Sprintf("%s/%s", url, sub)
	}
	return c.getJSON(ctx, url)
}

// PatientBundle is every resource of one patient, keyed by subroute,
// with the patient resource itself under "patients".
type PatientBundle map[string]json.RawMessage

// GetAll fetches the patient resource and all its subroutes in
// parallel. A missing subroute is recorded as JSON null rather than
// failing the whole bundle.
func (c *Client) GetAll(ctx context.Context, route, id string) (PatientBundle, error) {
	if !ValidRoute(route) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}

	bundle := PatientBundle{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	fetch := func(key, url string) {
		g.Go(func() error {
			raw, err := c.getJSON(gctx, url)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					raw = json.RawMessage("null")
				} else {
					return err
				}
			}
			mu.Lock()
			bundle[key] = raw
			mu.Unlock()
			return nil
		})
	}

	for _, sub := range Subroutes {
		fetch(sub, fmt.Sprintf("%s/%s/%s/%s", c.baseURL, route, id, sub))
	}
	fetch(route, fmt.Sprintf("%s/%s/%s", c.baseURL, route, id))

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (c *Client) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fhirclient: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("fhirclient: get %s: %w", url, err)
			c.log.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("gateway request failed")
			continue
		}

		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("fhirclient: read %s: %w", url, err)
			continue
		}

		switch {
		case res.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case res.StatusCode >= 500:
			lastErr = fmt.Errorf("fhirclient: get %s: status %d", url, res.StatusCode)
			continue
		case res.StatusCode >= 400:
			return nil, fmt.Errorf("fhirclient: get %s: status %d", url, res.StatusCode)
		}
		return json.RawMessage(body), nil
	}
	return nil, lastErr
}
