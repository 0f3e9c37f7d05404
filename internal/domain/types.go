package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MemoryType classifies a memory
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryDecision     MemoryType = "decision"
	MemoryPattern      MemoryType = "pattern"
	MemoryNote         MemoryType = "note"
	MemoryIssue        MemoryType = "issue"
)

var typeTagRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// Known reports whether t is one of the built-in types.
func (t MemoryType) Known() bool {
	switch t {
	case MemoryConversation, MemoryDecision, MemoryPattern, MemoryNote, MemoryIssue:
		return true
	}
	return false
}

// Valid reports whether t is a well-formed type tag. Unknown but well-formed
// tags are accepted so stores written by newer versions stay readable.
func (t MemoryType) Valid() bool {
	return typeTagRe.MatchString(string(t))
}

// PatternType classifies a scanner observation
type PatternType string

const (
	PatternFunction PatternType = "function"
	PatternClass    PatternType = "class"
	PatternModule   PatternType = "module"
	PatternPattern  PatternType = "pattern"
	PatternStyle    PatternType = "style"
)

func (t PatternType) Valid() bool {
	switch t {
	case PatternFunction, PatternClass, PatternModule, PatternPattern, PatternStyle:
		return true
	}
	return false
}

// Complexity is the coarse size classification of a project
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

func (c Complexity) Valid() bool {
	return c == ComplexityLow || c == ComplexityMedium || c == ComplexityHigh
}

// ClassifyComplexity derives a complexity from aggregate size.
func ClassifyComplexity(files, lines int) Complexity {
	switch {
	case files > 500 || lines > 50000:
		return ComplexityHigh
	case files > 50 || lines > 5000:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// ActivityType tags an audit log row
type ActivityType string

const (
	ActivityInit   ActivityType = "init"
	ActivityScan   ActivityType = "scan"
	ActivityMemory ActivityType = "memory"
	ActivityClear  ActivityType = "clear"
	ActivityImport ActivityType = "import"
)

// Project is the tracked root directory
type Project struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	CreatedAt  time.Time  `json:"created_at"`
	LastActive time.Time  `json:"last_active"`
	TotalFiles int        `json:"total_files"`
	TotalLines int        `json:"total_lines"`
	Complexity Complexity `json:"complexity"`
}

// FileRecord is one tracked source file, keyed by its project-relative path
type FileRecord struct {
	Path       string    `json:"path"`
	Language   string    `json:"language"`
	Size       int64     `json:"size"`
	Lines      int       `json:"lines"`
	ModifiedAt time.Time `json:"modified_at"`
	Hash       string    `json:"hash"`
}

func (f *FileRecord) Validate() error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("file path is required")
	}
	if f.Size < 0 {
		return fmt.Errorf("file %s: negative size", f.Path)
	}
	if f.Lines < 0 {
		return fmt.Errorf("file %s: negative line count", f.Path)
	}
	return nil
}

// LineRange is an inclusive [Start, End] span
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pattern is a detected structural or stylistic observation
type Pattern struct {
	ID          string      `json:"id"`
	Type        PatternType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Frequency   int         `json:"frequency"`
	Confidence  float64     `json:"confidence"`
	Examples    []string    `json:"examples,omitempty"`
	File        string      `json:"file,omitempty"`
	Lines       LineRange   `json:"lines"`
}

func (p *Pattern) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("pattern id is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("pattern %s: unknown type %q", p.ID, p.Type)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("pattern %s: name is required", p.ID)
	}
	if p.Frequency < 1 {
		return fmt.Errorf("pattern %s: frequency must be >= 1", p.ID)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s: confidence %v outside [0,1]", p.ID, p.Confidence)
	}
	if p.Lines.End < p.Lines.Start {
		return fmt.Errorf("pattern %s: line range end before start", p.ID)
	}
	return nil
}

// Memory is a remembered fact, decision or note
type Memory struct {
	ID        string     `json:"id"`
	Type      MemoryType `json:"type"`
	Content   string     `json:"content"`
	Context   string     `json:"context,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Tags      []string   `json:"tags,omitempty"`
	Metadata  Metadata   `json:"metadata,omitempty"`
}

// Activity is an append-only audit entry
type Activity struct {
	ID          int64        `json:"id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NormalizeTags lowercases, trims, drops empties and duplicates, and sorts.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
