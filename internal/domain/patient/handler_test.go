package patient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Validation happens before any backend is reached, so a nil service is
// enough for these tests.
func callHandler(t *testing.T, target string, fn func(echo.Context) error) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("42")
	return fn(c)
}

func assertHTTPError(t *testing.T, err error, code int, message string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
	if message != "" && !strings.Contains(he.Message.(string), message) {
		t.Errorf("expected message containing %q, got %q", message, he.Message)
	}
}

func TestSearch_RequiresTerms(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/search/42", h.Search)
	assertHTTPError(t, err, http.StatusBadRequest, "terms must be provided")
}

func TestSearch_RejectsBadOperator(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/search/42?terms=diabete&operator=xor", h.Search)
	assertHTTPError(t, err, http.StatusBadRequest, `operator must be "and" or "or"`)
}

func TestSearch_RejectsBadMode(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/search/42?terms=diabete&mode=fuzzy", h.Search)
	assertHTTPError(t, err, http.StatusBadRequest, `mode must be "exact" or "approx"`)
}

func TestSearch_RejectsBadDocType(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/search/42?terms=diabete&doc_type=xray", h.Search)
	assertHTTPError(t, err, http.StatusBadRequest, "doc_type must be in")
}

func TestSearch_RejectsBadDate(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/search/42?terms=diabete&start_date=2019-01-01", h.Search)
	assertHTTPError(t, err, http.StatusBadRequest, "start_date expected format: DD-MM-YYYY")
}

func TestGetTimeline_RejectsBadDate(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/timeline/42?end_date=01/02/2019", h.GetTimeline)
	assertHTTPError(t, err, http.StatusBadRequest, "end_date expected format: DD-MM-YYYY")
}

func TestAutocomplete_RequiresTerm(t *testing.T) {
	h := NewHandler(nil, zerolog.Nop())
	err := callHandler(t, "/autocomplete/42", h.Autocomplete)
	assertHTTPError(t, err, http.StatusBadRequest, "term must be provided")
}
