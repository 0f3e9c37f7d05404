// Package classifier suggests a memory type and tags for freeform text
// using local keyword rules.
package classifier

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/store"
)

// TagSuggestion represents a suggested tag with optional parent
type TagSuggestion struct {
	Name       string  `json:"name"`
	Parent     string  `json:"parent,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ClassifyResult holds the classification output
type ClassifyResult struct {
	Type       domain.MemoryType `json:"type"`
	Confidence float64           `json:"confidence"`
	Tags       []TagSuggestion   `json:"tags"`
}

// TagNames returns the suggested tag names in order
func (r *ClassifyResult) TagNames() []string {
	names := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Classifier scores text against per-type keyword lists
type Classifier struct {
	keywords map[domain.MemoryType][]*regexp.Regexp
	topics   map[string][]*regexp.Regexp
}

var defaultKeywords = map[domain.MemoryType][]string{
	domain.MemoryDecision: {
		"decided", "decide", "decision", "chose", "choose", "we will", "going with",
		"instead of", "agreed", "trade-off", "tradeoff", "adopt", "switch to",
	},
	domain.MemoryPattern: {
		"pattern", "convention", "always", "never", "prefer", "idiom", "style",
		"naming", "structure", "we use",
	},
	domain.MemoryIssue: {
		"bug", "issue", "error", "fails", "failing", "broken", "crash", "panic",
		"regression", "workaround", "flaky", "leak", "fix",
	},
	domain.MemoryConversation: {
		"discussed", "talked", "meeting", "call with", "said", "asked", "mentioned",
		"conversation", "chat",
	},
}

// topic tags inferred from vocabulary; the key is the tag, Parent groups it
var defaultTopics = map[string][]string{
	"database":    {"sql", "sqlite", "postgres", "database", "migration", "schema", "query"},
	"testing":     {"test", "tests", "testing", "mock", "fixture", "coverage"},
	"performance": {"slow", "latency", "performance", "cache", "memory usage", "profil"},
	"security":    {"auth", "token", "secret", "password", "permission", "tls"},
	"api":         {"endpoint", "http", "rest", "grpc", "handler", "route"},
	"build":       {"build", "pipeline", "docker", "deploy", "release"},
}

var hashtag = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}][\p{L}\p{N}_-]*)`)

// New creates a Classifier with the built-in rules
func New() *Classifier {
	c := &Classifier{
		keywords: make(map[domain.MemoryType][]*regexp.Regexp, len(defaultKeywords)),
		topics:   make(map[string][]*regexp.Regexp, len(defaultTopics)),
	}
	for typ, words := range defaultKeywords {
		c.keywords[typ] = compile(words)
	}
	for topic, words := range defaultTopics {
		c.topics[topic] = compile(words)
	}
	return c
}

// Classify analyzes content and returns a type and tag suggestions.
// existingTags are preferred when a topic tag matches one of them.
func (c *Classifier) Classify(content string, existingTags []string) *ClassifyResult {
	lower := strings.ToLower(content)
	res := &ClassifyResult{Type: domain.MemoryNote, Tags: []TagSuggestion{}}

	best, bestHits, total := domain.MemoryNote, 0, 0
	// fixed order so ties resolve deterministically
	for _, typ := range []domain.MemoryType{domain.MemoryDecision, domain.MemoryIssue, domain.MemoryPattern, domain.MemoryConversation} {
		hits := countHits(lower, c.keywords[typ])
		total += hits
		if hits > bestHits {
			best, bestHits = typ, hits
		}
	}
	if bestHits > 0 {
		res.Type = best
		res.Confidence = float64(bestHits) / float64(total)
	}

	seen := map[string]bool{}
	for _, name := range Hashtags(content) {
		seen[name] = true
		res.Tags = append(res.Tags, TagSuggestion{Name: name, Confidence: 1})
	}

	existing := map[string]bool{}
	for _, t := range existingTags {
		existing[strings.ToLower(t)] = true
	}

	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if seen[topic] {
			continue
		}
		hits := countHits(lower, c.topics[topic])
		if hits == 0 {
			continue
		}
		conf := 0.4 + 0.2*float64(hits)
		if existing[topic] {
			conf += 0.2
		}
		if conf > 0.9 {
			conf = 0.9
		}
		seen[topic] = true
		res.Tags = append(res.Tags, TagSuggestion{Name: topic, Parent: "topic", Confidence: conf})
	}

	return res
}

// Hashtags returns the distinct #tags of content, lower-cased, in order of
// appearance.
func Hashtags(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range hashtag.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// MemoryLister reads the memories whose tags seed topic suggestions
type MemoryLister interface {
	ListMemories(ctx context.Context, f store.MemoryFilter) ([]domain.Memory, error)
}

// Annotate completes in before it is stored. An empty type is classified
// (unless classify is false) and every suggested tag appended; otherwise only
// hashtags become tags. The result is nil when no classification ran.
func (c *Classifier) Annotate(ctx context.Context, l MemoryLister, in *ingest.MemoryInput, classify bool) (*ClassifyResult, error) {
	if in.Type != "" || !classify {
		in.Tags = append(in.Tags, Hashtags(in.Content)...)
		return nil, nil
	}

	existing, err := l.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return nil, err
	}
	res := c.Classify(in.Content, KnownTags(existing))
	in.Type = res.Type
	in.Tags = append(in.Tags, res.TagNames()...)
	return res, nil
}

// KnownTags collects the distinct tags already used by stored memories.
func KnownTags(memories []domain.Memory) []string {
	set := map[string]bool{}
	for _, m := range memories {
		for _, t := range m.Tags {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func compile(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		// anchored at the word start only, so "fix" matches "fixed"
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)))
	}
	return out
}

func countHits(text string, rules []*regexp.Regexp) int {
	n := 0
	for _, re := range rules {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}
