// Package ingest turns manual memory entries and scanner output into store
// writes.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/store"
)

// MemoryInput is a manually created memory
type MemoryInput struct {
	Type      domain.MemoryType `json:"type"`
	Content   string            `json:"content"`
	Context   string            `json:"context,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  domain.Metadata   `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Metrics are the aggregate figures a scanner may report
type Metrics struct {
	TotalFiles int               `json:"totalFiles"`
	TotalLines int               `json:"totalLines"`
	Complexity domain.Complexity `json:"complexity,omitempty"`
	Languages  map[string]int    `json:"languages,omitempty"`
}

// ScanResult is the scanner payload
type ScanResult struct {
	Files        []domain.FileRecord `json:"files"`
	Patterns     []domain.Pattern    `json:"patterns"`
	Architecture map[string]any      `json:"architecture,omitempty"`
	Dependencies []string            `json:"dependencies,omitempty"`
	Metrics      *Metrics            `json:"metrics,omitempty"`
}

// Progress counts the records written by a scan ingestion
type Progress struct {
	Files    int `json:"files"`
	Patterns int `json:"patterns"`
}

// BatchError reports the first failure of a scan ingestion together with the
// records already committed. Committed records are not rolled back.
type BatchError struct {
	Progress Progress
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("scan ingestion stopped after %d files and %d patterns: %v",
		e.Progress.Files, e.Progress.Patterns, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Writer is the store surface used by ingestion.
type Writer interface {
	Root() string
	InsertMemory(ctx context.Context, m domain.Memory) (*domain.Memory, error)
	UpsertFile(ctx context.Context, f domain.FileRecord) error
	UpsertPattern(ctx context.Context, p domain.Pattern) error
	UpsertProject(ctx context.Context, p *domain.Project) (*domain.Project, error)
	Project(ctx context.Context) (*domain.Project, error)
	AppendActivity(ctx context.Context, typ domain.ActivityType, description string) error
}

// Remember validates in and stores it as a new memory.
func Remember(ctx context.Context, w Writer, in MemoryInput) (*domain.Memory, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, &store.Error{Kind: store.ErrInvalidMemory, Op: "remember", Err: fmt.Errorf("content is required")}
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return w.InsertMemory(ctx, domain.Memory{
		Type:      in.Type,
		Content:   in.Content,
		Context:   in.Context,
		Tags:      in.Tags,
		Metadata:  in.Metadata,
		CreatedAt: createdAt,
	})
}

// Scan upserts the files and then the patterns of res, stopping at the first
// failure, and refreshes the project's cached totals.
func Scan(ctx context.Context, w Writer, res ScanResult) (Progress, error) {
	var p Progress

	for _, f := range res.Files {
		if err := ctx.Err(); err != nil {
			return p, &BatchError{Progress: p, Err: err}
		}
		if err := w.UpsertFile(ctx, f); err != nil {
			return p, &BatchError{Progress: p, Err: err}
		}
		p.Files++
	}

	for _, pat := range res.Patterns {
		if err := ctx.Err(); err != nil {
			return p, &BatchError{Progress: p, Err: err}
		}
		if pat.ID == "" {
			pat.ID = PatternID(pat)
		}
		if err := w.UpsertPattern(ctx, pat); err != nil {
			return p, &BatchError{Progress: p, Err: err}
		}
		p.Patterns++
	}

	files, lines, complexity := totals(res)
	project, err := w.Project(ctx)
	if err != nil {
		return p, &BatchError{Progress: p, Err: err}
	}
	if project == nil {
		project = &domain.Project{Name: filepath.Base(w.Root()), Path: w.Root()}
	}
	project.TotalFiles = files
	project.TotalLines = lines
	project.Complexity = complexity
	project.LastActive = time.Now().UTC()
	if _, err := w.UpsertProject(ctx, project); err != nil {
		return p, &BatchError{Progress: p, Err: err}
	}

	if err := w.AppendActivity(ctx, domain.ActivityScan,
		fmt.Sprintf("Scanned %d files (%d lines), %d patterns", files, lines, p.Patterns)); err != nil {
		return p, &BatchError{Progress: p, Err: err}
	}

	return p, nil
}

func totals(res ScanResult) (int, int, domain.Complexity) {
	files := len(res.Files)
	lines := 0
	for _, f := range res.Files {
		lines += f.Lines
	}

	if m := res.Metrics; m != nil {
		if m.TotalFiles > 0 {
			files = m.TotalFiles
		}
		if m.TotalLines > 0 {
			lines = m.TotalLines
		}
		if m.Complexity.Valid() {
			return files, lines, m.Complexity
		}
	}
	return files, lines, domain.ClassifyComplexity(files, lines)
}
