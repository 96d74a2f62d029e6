// Package elastic wraps the Elasticsearch cluster that holds one
// search index per patient. It owns index lifecycle, bulk ingestion,
// scrolled search and the autocomplete suggester; query construction
// belongs to the search package.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

const (
	scrollKeepAlive = 10 * time.Second
	scrollPageSize  = 1000
)

// Config holds the cluster connection settings.
type Config struct {
	URL      string
	Username string
	Password string
}

// Client is a thin wrapper over the official cluster client.
type Client struct {
	es  *elasticsearch.Client
	log zerolog.Logger
}

// New builds a client for the configured cluster. The connection is
// lazy; use Ping to verify reachability at startup.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic: new client: %w", err)
	}
	return &Client{es: es, log: log.With().Str("component", "elastic").Logger()}, nil
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic: ping: %s", res.Status())
	}
	return nil
}

// Document is the shape indexed for every patient record.
type Document struct {
	ID                string          `json:"id,omitempty"`
	DocumentType      string          `json:"documentType"`
	DocumentStartDate string          `json:"documentStartDate,omitempty"`
	DocumentEndDate   string          `json:"documentEndDate,omitempty"`
	FullDocument      json.RawMessage `json:"fullDocument,omitempty"`
	Abstract          string          `json:"abstract,omitempty"`
	Suggest           []string        `json:"suggest,omitempty"`
}

// Hit is one search match with its score.
type Hit struct {
	Score  float64  `json:"_score"`
	Source Document `json:"_source"`
}

// IndexExists reports whether the named index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("elastic: index exists %s: %w", index, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, fmt.Errorf("elastic: index exists %s: %s", index, res.Status())
	}
}

// CreateIndex creates the named index with the patient document
// mapping.
func (c *Client) CreateIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithBody(bytes.NewReader(indexMapping)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elastic: create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic: create index %s: %s", index, res.Status())
	}
	c.log.Info().Str("index", index).Msg("index created")
	return nil
}

// DeleteIndex removes the named index.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elastic: delete index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic: delete index %s: %s", index, res.Status())
	}
	c.log.Info().Str("index", index).Msg("index deleted")
	return nil
}

// BulkIndex indexes the given documents, assigning each one a
// type-qualified id. The refresh is forced so the documents are
// searchable as soon as the call returns.
func (c *Client) BulkIndex(ctx context.Context, index, docType string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for i, doc := range docs {
		doc.ID = fmt.Sprintf("%s-%d", docType, i)
		meta := map[string]any{"index": map[string]any{"_index": index}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return fmt.Errorf("elastic: bulk encode: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("elastic: bulk encode: %w", err)
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithRefresh("true"),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elastic: bulk index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic: bulk index %s: %s", index, res.Status())
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("elastic: bulk decode %s: %w", index, err)
	}
	if bulk.Errors {
		failed := 0
		for _, item := range bulk.Items {
			for _, op := range item {
				if len(op.Error) > 0 {
					failed++
				}
			}
		}
		return fmt.Errorf("elastic: bulk index %s: %d of %d documents failed", index, failed, len(docs))
	}
	c.log.Debug().Str("index", index).Str("docType", docType).Int("count", len(docs)).Msg("documents indexed")
	return nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// Search runs the query against the index and scrolls through every
// page of results. A positive minScore becomes the score floor.
func (c *Client) Search(ctx context.Context, index string, query map[string]any, minScore float64) ([]Hit, error) {
	body := map[string]any{"query": query}
	if minScore > 0 {
		body["min_score"] = minScore
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elastic: encode search: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(raw)),
		c.es.Search.WithScroll(scrollKeepAlive),
		c.es.Search.WithSize(scrollPageSize),
		c.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elastic: search %s: %w", index, err)
	}
	page, err := decodeSearch(res)
	if err != nil {
		return nil, fmt.Errorf("elastic: search %s: %w", index, err)
	}

	all := page.Hits.Hits
	scrollID := page.ScrollID
	for len(page.Hits.Hits) > 0 {
		res, err := c.es.Scroll(
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(scrollKeepAlive),
			c.es.Scroll.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("elastic: scroll %s: %w", index, err)
		}
		page, err = decodeSearch(res)
		if err != nil {
			return nil, fmt.Errorf("elastic: scroll %s: %w", index, err)
		}
		scrollID = page.ScrollID
		all = append(all, page.Hits.Hits...)
	}

	if scrollID != "" {
		if res, err := c.es.ClearScroll(c.es.ClearScroll.WithScrollID(scrollID)); err == nil {
			res.Body.Close()
		}
	}
	return all, nil
}

func decodeSearch(res *esapi.Response) (*searchResponse, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%s", res.Status())
	}
	var page searchResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Count returns the number of matches for the query, honoring the
// score floor.
func (c *Client) Count(ctx context.Context, index string, query map[string]any, minScore float64) (int, error) {
	raw, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("elastic: encode count: %w", err)
	}
	opts := []func(*esapi.CountRequest){
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(bytes.NewReader(raw)),
		c.es.Count.WithContext(ctx),
	}
	if minScore > 0 {
		opts = append(opts, c.es.Count.WithMinScore(int(minScore)))
	}
	res, err := c.es.Count(opts...)
	if err != nil {
		return 0, fmt.Errorf("elastic: count %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elastic: count %s: %s", index, res.Status())
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("elastic: count decode %s: %w", index, err)
	}
	return out.Count, nil
}
