// Package search ranks stored memories against a free-text query.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/store"
)

// DefaultLimit applies when Query.Limit is not positive
const DefaultLimit = 10

const (
	exactMatchBonus = 10.0
	recencyMax      = 5.0
	recencyPerDay   = 0.1
)

var typeWeights = map[domain.MemoryType]float64{
	domain.MemoryDecision:     3,
	domain.MemoryPattern:      2,
	domain.MemoryIssue:        2,
	domain.MemoryConversation: 1,
}

// Source is the read side of the store used for retrieval.
type Source interface {
	ListMemories(ctx context.Context, f store.MemoryFilter) ([]domain.Memory, error)
	LookupTerms(ctx context.Context, terms []string) (map[string]int, error)
	VerifyIndex(ctx context.Context) (store.IndexHealth, error)
}

// Query is a search request. Zero fields are ignored.
type Query struct {
	Text  string
	Type  domain.MemoryType
	Since time.Time
	Limit int
	// Now anchors the recency term; zero means time.Now()
	Now time.Time
}

// Breakdown is the per-term contribution to a score
type Breakdown struct {
	ExactMatch float64 `json:"exact_match"`
	Recency    float64 `json:"recency"`
	TypeWeight float64 `json:"type_weight"`
}

// Result is a scored memory
type Result struct {
	Memory    domain.Memory `json:"memory"`
	Score     float64       `json:"score"`
	Breakdown Breakdown     `json:"breakdown"`
	// TermHits is the index hit count for the query terms, 0 when the
	// candidate came from the substring fallback
	TermHits int `json:"term_hits,omitempty"`
}

// Search returns memories matching q, best first. It never writes.
func Search(ctx context.Context, src Source, q Query) ([]Result, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	text := strings.TrimSpace(q.Text)
	filter := store.MemoryFilter{Type: q.Type, Since: q.Since}

	var candidates []domain.Memory
	var hits map[string]int
	var err error

	terms := store.Tokenize(text)
	switch {
	case text == "":
		candidates, err = src.ListMemories(ctx, filter)
	case len(terms) > 0 && indexUsable(ctx, src):
		filter.Terms = terms
		candidates, err = src.ListMemories(ctx, filter)
		if err == nil && len(candidates) > 0 {
			hits, err = src.LookupTerms(ctx, terms)
		}
	default:
		candidates, err = src.ListMemories(ctx, filter)
		candidates = substringMatches(candidates, text)
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, m := range candidates {
		b := Score(m, text, now)
		results = append(results, Result{
			Memory:    m,
			Score:     b.ExactMatch + b.Recency + b.TypeWeight,
			Breakdown: b,
			TermHits:  hits[m.ID],
		})
	}

	// Stable sort keeps the newest-first retrieval order among equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Score computes the additive relevance terms of m for query at now.
func Score(m domain.Memory, query string, now time.Time) Breakdown {
	var b Breakdown
	if query != "" && strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
		b.ExactMatch = exactMatchBonus
	}
	b.Recency = Recency(m.CreatedAt, now)
	b.TypeWeight = TypeWeight(m.Type)
	return b
}

// Recency decays linearly from 5 to 0 over 50 days. Future timestamps count
// as brand new.
func Recency(created, now time.Time) float64 {
	days := now.Sub(created).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Max(0, recencyMax-days*recencyPerDay)
}

// TypeWeight returns the ranking weight of a memory type.
func TypeWeight(t domain.MemoryType) float64 {
	return typeWeights[t]
}

func indexUsable(ctx context.Context, src Source) bool {
	h, err := src.VerifyIndex(ctx)
	return err == nil && h.OK()
}

func substringMatches(memories []domain.Memory, text string) []domain.Memory {
	needle := strings.ToLower(text)
	out := memories[:0]
	for _, m := range memories {
		if strings.Contains(strings.ToLower(m.Content), needle) ||
			strings.Contains(strings.ToLower(m.Context), needle) {
			out = append(out, m)
		}
	}
	return out
}
