// Package search compiles patient full-text searches into
// Elasticsearch query bodies. The compiler is pure: it never talks to
// the cluster, so every shape it emits can be asserted in tests.
package search

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidQuery is returned when the search parameters cannot be
// compiled: no terms, a blank term, or an unknown operator or mode.
var ErrInvalidQuery = errors.New("search: invalid query")

// Operator combines multiple terms.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Mode selects exact phrase matching or fuzzy proximity matching.
type Mode string

const (
	ModeExact  Mode = "exact"
	ModeApprox Mode = "approx"
)

// orMinScore is the score floor of a fuzzy OR search: any single term
// matching at full strength clears it.
const orMinScore = 100

// Params are the inputs of one search compilation.
type Params struct {
	Terms    []string
	Operator Operator
	Mode     Mode
	// Start and End restrict matches by document start date when
	// non-zero.
	Start time.Time
	End   time.Time
	// DocumentType restricts matches to one document type when set.
	DocumentType string
}

// Query is a compiled search, ready to execute.
type Query struct {
	// Query is the Elasticsearch query clause.
	Query map[string]any
	// MinScore is the score floor, zero when no floor applies.
	MinScore float64
}

// termBoost is the constant score contributed by term i matching at
// fuzziness 2. Later terms weigh ten times the previous one, so the
// score encodes exactly which terms matched.
func termBoost(i int) float64 {
	return math.Pow(10, float64(i+2))
}

// Compile builds the Elasticsearch query for the given parameters.
func Compile(p Params) (*Query, error) {
	if len(p.Terms) == 0 {
		return nil, fmt.Errorf("%w: no terms", ErrInvalidQuery)
	}
	for _, term := range p.Terms {
		if strings.TrimSpace(term) == "" {
			return nil, fmt.Errorf("%w: blank term", ErrInvalidQuery)
		}
	}
	switch p.Operator {
	case OperatorAnd, OperatorOr:
	default:
		return nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, p.Operator)
	}
	switch p.Mode {
	case ModeExact, ModeApprox:
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidQuery, p.Mode)
	}

	// A single term always binds as must; otherwise AND binds terms as
	// must and OR as should.
	esOperator := "should"
	if len(p.Terms) == 1 || p.Operator == OperatorAnd {
		esOperator = "must"
	}

	boolQuery := map[string]any{
		"must_not": map[string]any{
			"term": map[string]any{"documentType": "encounter"},
		},
	}

	q := &Query{}
	if p.Mode == ModeExact {
		clauses := make([]any, 0, len(p.Terms))
		for _, term := range p.Terms {
			clauses = append(clauses, map[string]any{
				"match_phrase": map[string]any{
					"abstract": map[string]any{"query": term},
				},
			})
		}
		boolQuery[esOperator] = clauses
	} else {
		clauses := make([]any, 0, len(p.Terms))
		for i, term := range p.Terms {
			clauses = append(clauses, fuzzyTermClause(term, termBoost(i)))
		}
		boolQuery[esOperator] = clauses
		if p.Operator == OperatorAnd {
			for i := range p.Terms {
				q.MinScore += termBoost(i)
			}
		} else {
			q.MinScore = orMinScore
		}
	}

	var filters []any
	if !p.Start.IsZero() || !p.End.IsZero() {
		bounds := map[string]any{}
		if !p.Start.IsZero() {
			bounds["gte"] = p.Start.Format("2006-01-02")
		}
		if !p.End.IsZero() {
			bounds["lte"] = p.End.Format("2006-01-02")
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"documentStartDate": bounds},
		})
	}
	if p.DocumentType != "" {
		filters = append(filters, map[string]any{
			"match": map[string]any{
				"documentType": map[string]any{"query": p.DocumentType},
			},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	q.Query = map[string]any{"bool": boolQuery}
	return q, nil
}

// fuzzyTermClause matches one term as a should of three constant-score
// proximity spans over its lowercased words: fuzziness 2 at the term's
// boost, fuzziness 1 at boost 1, and the exact words at boost 1.
func fuzzyTermClause(term string, boost float64) map[string]any {
	words := strings.Fields(strings.ToLower(term))

	fuzzySpan := func(fuzziness int) map[string]any {
		clauses := make([]any, 0, len(words))
		for _, w := range words {
			clauses = append(clauses, map[string]any{
				"span_multi": map[string]any{
					"match": map[string]any{
						"fuzzy": map[string]any{
							"abstract": map[string]any{
								"fuzziness": fuzziness,
								"value":     w,
							},
						},
					},
				},
			})
		}
		return spanNear(clauses)
	}

	exactClauses := make([]any, 0, len(words))
	for _, w := range words {
		exactClauses = append(exactClauses, map[string]any{
			"span_term": map[string]any{"abstract": w},
		})
	}

	return map[string]any{
		"bool": map[string]any{
			"should": []any{
				constantScore(fuzzySpan(2), boost),
				constantScore(fuzzySpan(1), 1),
				constantScore(spanNear(exactClauses), 1),
			},
		},
	}
}

func spanNear(clauses []any) map[string]any {
	return map[string]any{
		"span_near": map[string]any{
			"clauses":  clauses,
			"slop":     1,
			"in_order": true,
		},
	}
}

func constantScore(filter map[string]any, boost float64) map[string]any {
	return map[string]any{
		"constant_score": map[string]any{
			"filter": filter,
			"boost":  boost,
		},
	}
}
