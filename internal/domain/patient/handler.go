package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/fhirclient"
	"github.com/etalab-ia/ami-ia-chub-app/internal/search"
	"github.com/etalab-ia/ami-ia-chub-app/internal/timeline"
)

// queryDateLayout is the DD-MM-YYYY format used by the front end.
const queryDateLayout = "02-01-2006"

// Handler exposes the patient endpoints.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "patient-http").Logger()}
}

// RegisterRoutes mounts the patient endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/timeline/:id", h.GetTimeline)
	g.GET("/search/:id", h.Search)
	g.GET("/autocomplete/:id", h.Autocomplete)
	g.GET("/all/:route/:id", h.GetAll)
	g.GET("/select/:route/:id", h.GetSelect)
	g.GET("/select/:route/:id/:subroute", h.GetSelect)
}

func parseQueryDate(c echo.Context, name string) (time.Time, error) {
	value := c.QueryParam(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(queryDateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s expected format: DD-MM-YYYY (got %s)", name, value))
	}
	return t, nil
}

// GetTimeline loads the patient's documents on first access and
// returns every aggregated timeline for the requested window.
func (h *Handler) GetTimeline(c echo.Context) error {
	start, err := parseQueryDate(c, "start_date")
	if err != nil {
		return err
	}
	end, err := parseQueryDate(c, "end_date")
	if err != nil {
		return err
	}

	resp, err := h.svc.Timeline(c.Request().Context(), c.Param("id"), start, end)
	if err != nil {
		switch {
		case errors.Is(err, fhirclient.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "resource not found")
		case errors.Is(err, ErrNoDocuments):
			return echo.NewHTTPError(http.StatusInternalServerError,
				"error loading patient data from Elasticsearch, please retry")
		case errors.Is(err, timeline.ErrInvalidDateRange):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date range")
		}
		h.log.Error().Err(err).Str("patient", c.Param("id")).Msg("timeline failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// Search searches the patient's indexed documents for the given terms
// and returns the matching timelines.
func (h *Handler) Search(c echo.Context) error {
	terms := c.QueryParam("terms")
	if terms == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "terms must be provided")
	}
	var separated []string
	for _, term := range strings.Split(terms, ",") {
		if term != "" {
			separated = append(separated, term)
		}
	}

	operator := search.Operator(c.QueryParam("operator"))
	if operator == "" {
		operator = search.OperatorAnd
	}
	if operator != search.OperatorAnd && operator != search.OperatorOr {
		return echo.NewHTTPError(http.StatusBadRequest, `operator must be "and" or "or"`)
	}

	mode := search.Mode(c.QueryParam("mode"))
	if mode == "" {
		mode = search.ModeExact
	}
	if mode != search.ModeExact && mode != search.ModeApprox {
		return echo.NewHTTPError(http.StatusBadRequest, `mode must be "exact" or "approx"`)
	}

	start, err := parseQueryDate(c, "start_date")
	if err != nil {
		return err
	}
	end, err := parseQueryDate(c, "end_date")
	if err != nil {
		return err
	}

	docType := c.QueryParam("doc_type")
	if docType != "" && !IsSearchableDocType(docType) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("if provided, doc_type must be in %v", DocumentTypes))
	}

	opts := SearchOptions{
		Terms:     separated,
		Operator:  operator,
		Mode:      mode,
		Start:     start,
		End:       end,
		DocType:   docType,
		WithRecos: c.QueryParam("with_recos") != "",
	}
	resp, err := h.svc.Search(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		switch {
		case errors.Is(err, ErrIndexNotLoaded):
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("%s has not yet been loaded", IndexName(c.Param("id"))))
		case errors.Is(err, search.ErrInvalidQuery):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, timeline.ErrInvalidDateRange):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date range")
		}
		h.log.Error().Err(err).Str("patient", c.Param("id")).Msg("search failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error in research")
	}
	return c.JSON(http.StatusOK, resp)
}

// Autocomplete completes a term prefix from the patient's indexed
// suggestions.
func (h *Handler) Autocomplete(c echo.Context) error {
	term := c.QueryParam("term")
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "term must be provided")
	}
	resp, err := h.svc.Autocomplete(c.Request().Context(), c.Param("id"), term)
	if err != nil {
		h.log.Error().Err(err).Str("patient", c.Param("id")).Msg("autocomplete failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// GetAll proxies the gateway's full bundle for a resource.
func (h *Handler) GetAll(c echo.Context) error {
	resp, err := h.svc.AllResources(c.Request().Context(), c.Param("route"), c.Param("id"))
	if err != nil {
		if errors.Is(err, fhirclient.ErrNotFound) || errors.Is(err, fhirclient.ErrUnknownRoute) {
			return echo.NewHTTPError(http.StatusNotFound, "resource not found")
		}
		h.log.Error().Err(err).Msg("get all failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSelect proxies one gateway route for a resource.
func (h *Handler) GetSelect(c echo.Context) error {
	resp, err := h.svc.SelectResource(c.Request().Context(), c.Param("route"), c.Param("id"), c.Param("subroute"))
	if err != nil {
		if errors.Is(err, fhirclient.ErrNotFound) || errors.Is(err, fhirclient.ErrUnknownRoute) {
			return echo.NewHTTPError(http.StatusNotFound, "resource not found")
		}
		h.log.Error().Err(err).Msg("select failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, resp)
}
