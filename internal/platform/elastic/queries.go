package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// AllDocuments fetches every document of the index, optionally bounded
// by document start date.
func (c *Client) AllDocuments(ctx context.Context, index string, start, end time.Time) ([]Hit, error) {
	query := map[string]any{"match_all": map[string]any{}}
	if !start.IsZero() || !end.IsZero() {
		bounds := map[string]any{}
		if !start.IsZero() {
			bounds["gte"] = start.Format("2006-01-02")
		}
		if !end.IsZero() {
			bounds["lte"] = end.Format("2006-01-02")
		}
		query = map[string]any{
			"range": map[string]any{"documentStartDate": bounds},
		}
	}
	return c.Search(ctx, index, query, 0)
}

// DocumentsByType fetches every document of one type.
func (c *Client) DocumentsByType(ctx context.Context, index, docType string) ([]Hit, error) {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{
					"match": map[string]any{
						"documentType": map[string]any{"query": docType},
					},
				},
			},
		},
	}
	return c.Search(ctx, index, query, 0)
}

const suggesterName = "search-suggest"

// Autocomplete asks the completion suggester for terms starting with
// the given prefix and returns them most-frequent first. Suggestions
// that merely contain the prefix elsewhere are dropped.
func (c *Client) Autocomplete(ctx context.Context, index, term string) ([]string, error) {
	prefix := strings.ToLower(term)
	body := map[string]any{
		"suggest": map[string]any{
			suggesterName: map[string]any{
				"prefix": prefix,
				"completion": map[string]any{
					"field": "suggest",
					"size":  50,
				},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elastic: encode suggest: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(raw)),
		c.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elastic: suggest %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elastic: suggest %s: %s", index, res.Status())
	}

	var out struct {
		Suggest map[string][]struct {
			Options []struct {
				Source struct {
					Suggest []string `json:"suggest"`
				} `json:"_source"`
			} `json:"options"`
		} `json:"suggest"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("elastic: suggest decode %s: %w", index, err)
	}

	counts := map[string]int{}
	var order []string
	for _, entry := range out.Suggest[suggesterName] {
		for _, opt := range entry.Options {
			for _, sugg := range opt.Source.Suggest {
				if !strings.HasPrefix(sugg, prefix) {
					continue
				}
				if _, ok := counts[sugg]; !ok {
					order = append(order, sugg)
				}
				counts[sugg]++
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order, nil
}
