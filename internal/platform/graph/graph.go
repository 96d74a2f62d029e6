// Package graph queries the medical concept graph backing search
// recommendations. Nodes are typed medical concepts (diseases,
// symptoms, exams, drugs...) linked by weighted relationships.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// nodeTypes are the concept labels searched for matches, in query
// order.
var nodeTypes = []string{
	"Maladie",
	"Symptome",
	"Examen",
	"Specialite",
	"Medicament",
	"Classe_therapeutique",
	"Nom_commercial",
	"Ingredient",
}

// Pseudo relationship types carrying a node's own lexical variants.
const (
	relSynonyms      = "SYNONYMS"
	relAbbreviations = "ABBREVIATIONS"
)

// Concept is one recommended concept reachable from a matched node.
type Concept struct {
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
	// SearchTerm is the term to feed back into document search for
	// this concept; empty when the node carries no usable identifier.
	SearchTerm string  `json:"searchTerm,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
	// Counts are filled by the service layer from document search.
	PureSearchMatchesCount   *int `json:"pureSearchMatchesCount,omitempty"`
	CombinedSearchMatchCount *int `json:"combinedSearchMatchCount,omitempty"`
}

// Match is a graph node matching the searched term, with its related
// concepts grouped by relationship type.
type Match struct {
	Label          string                `json:"label"`
	LinkedConcepts map[string][]*Concept `json:"linkedConcepts"`
}

// Recommendations groups matches by concept type.
type Recommendations map[string][]*Match

// Client wraps the graph database driver.
type Client struct {
	driver neo4j.DriverWithContext
	log    zerolog.Logger
}

// Config holds the graph connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

func New(cfg Config, log zerolog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: new driver: %w", err)
	}
	return &Client{driver: driver, log: log.With().Str("component", "graph").Logger()}, nil
}

// Close releases the driver's connections.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// searchTermOf picks the identifier used to search documents for a
// concept node: diseases search by PMSI code, symptoms by CUI, exams
// by their lab concept code, everything else by label.
func searchTermOf(node neo4j.Node) string {
	stringProp := func(key string) string {
		v, _ := node.Props[key].(string)
		return v
	}
	label := stringProp("label")
	if len(node.Labels) == 0 {
		return label
	}
	switch node.Labels[0] {
	case "Maladie":
		if pmsi := stringProp("pmsi"); pmsi != "" {
			return pmsi
		}
	case "Symptome":
		if cui := stringProp("cui"); cui != "" {
			return cui
		}
	case "Examen":
		if code := stringProp("concept_cd_dxcarenum"); code != "" {
			return code
		}
	}
	return label
}

func (c *Client) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("graph: run query: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: collect records: %w", err)
	}
	return records, nil
}

// searchMatches finds nodes of every concept type whose properties
// contain the term, case-insensitively.
func (c *Client) searchMatches(ctx context.Context, term string) (map[string][]neo4j.Node, error) {
	matches := map[string][]neo4j.Node{}
	for _, nodeType := range nodeTypes {
		cypher := fmt.Sprintf(
			"MATCH (m:%s) WHERE any(key in keys(m) WHERE TOUPPER(m[key]) CONTAINS TOUPPER($search_term)) RETURN m",
			nodeType,
		)
		records, err := c.run(ctx, cypher, map[string]any{"search_term": term})
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			raw, ok := rec.Get("m")
			if !ok {
				continue
			}
			if node, ok := raw.(neo4j.Node); ok {
				matches[nodeType] = append(matches[nodeType], node)
			}
		}
	}
	return matches, nil
}

// relatedConcepts fetches every node linked to the given node, grouped
// by relationship type and sorted by decreasing weight. Unlabeled
// neighbors are skipped.
func (c *Client) relatedConcepts(ctx context.Context, elementID string) (map[string][]*Concept, error) {
	records, err := c.run(ctx,
		"MATCH (n)-[r]-(m) WHERE elementId(n) = $id RETURN n, r, m",
		map[string]any{"id": elementID},
	)
	if err != nil {
		return nil, err
	}

	concepts := map[string][]*Concept{}
	for _, rec := range records {
		rawRel, ok := rec.Get("r")
		if !ok {
			continue
		}
		rawNode, ok := rec.Get("m")
		if !ok {
			continue
		}
		rel, ok := rawRel.(neo4j.Relationship)
		if !ok {
			continue
		}
		node, ok := rawNode.(neo4j.Node)
		if !ok {
			continue
		}
		label, _ := node.Props["label"].(string)
		if label == "" {
			continue
		}
		weight := 1.0
		if w, ok := rel.Props["weight"].(float64); ok {
			weight = w
		}
		nodeType := ""
		if len(node.Labels) > 0 {
			nodeType = node.Labels[0]
		}
		concepts[rel.Type] = append(concepts[rel.Type], &Concept{
			Label:      label,
			Type:       nodeType,
			SearchTerm: searchTermOf(node),
			Weight:     weight,
		})
	}
	for relType := range concepts {
		list := concepts[relType]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Weight > list[j].Weight })
	}
	return concepts, nil
}

// variantConcepts parses a semicolon-separated property ("synonyms" or
// "abbreviations") into plain concepts. The literal value "n/a" means
// none.
func variantConcepts(node neo4j.Node, prop string) []*Concept {
	raw, _ := node.Props[prop].(string)
	if raw == "" || raw == "n/a" {
		return nil
	}
	parts := strings.Split(raw, ";")
	concepts := make([]*Concept, 0, len(parts))
	for _, p := range parts {
		concepts = append(concepts, &Concept{Label: p, SearchTerm: p})
	}
	return concepts
}

// Recommendations searches the graph for the term and returns every
// match with its related concepts, synonyms and abbreviations. Matches
// of each type are sorted by how many concepts they link to; a positive
// maxItems caps both the matches per type and the concepts per
// relationship.
func (c *Client) Recommendations(ctx context.Context, term string, maxItems int) (Recommendations, error) {
	matches, err := c.searchMatches(ctx, term)
	if err != nil {
		return nil, err
	}

	results := Recommendations{}
	for _, nodeType := range nodeTypes {
		nodes, ok := matches[nodeType]
		if !ok {
			continue
		}
		var typed []*Match
		for _, node := range nodes {
			label, _ := node.Props["label"].(string)
			linked, err := c.relatedConcepts(ctx, node.ElementId)
			if err != nil {
				return nil, err
			}

			var match *Match
			if len(linked) > 0 && label != "" {
				match = &Match{Label: label, LinkedConcepts: linked}
			}
			if label != "" {
				if syn := variantConcepts(node, "synonyms"); syn != nil {
					if match == nil {
						match = &Match{Label: label, LinkedConcepts: map[string][]*Concept{}}
					}
					match.LinkedConcepts[relSynonyms] = syn
				}
				if abbr := variantConcepts(node, "abbreviations"); abbr != nil {
					if match == nil {
						match = &Match{Label: label, LinkedConcepts: map[string][]*Concept{}}
					}
					match.LinkedConcepts[relAbbreviations] = abbr
				}
			}
			if match != nil {
				typed = append(typed, match)
			}
		}
		if len(typed) == 0 {
			continue
		}

		conceptCount := func(m *Match) int {
			total := 0
			for _, list := range m.LinkedConcepts {
				total += len(list)
			}
			return total
		}
		sort.SliceStable(typed, func(i, j int) bool { return conceptCount(typed[i]) > conceptCount(typed[j]) })

		if maxItems > 0 && len(typed) > maxItems {
			typed = typed[:maxItems]
		}
		if maxItems > 0 {
			for _, m := range typed {
				for relType, list := range m.LinkedConcepts {
					if len(list) > maxItems {
						m.LinkedConcepts[relType] = list[:maxItems]
					}
				}
			}
		}
		results[nodeType] = typed
	}
	return results, nil
}
