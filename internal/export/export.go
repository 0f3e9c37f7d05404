// Package export produces complete snapshots of a project's store, either as
// a structured JSON document or as a human-readable Markdown report, and
// re-imports the structured form.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format selects the output shape
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, markdown or md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json or markdown)", s)
}

// Summary is the project status section of a snapshot
type Summary struct {
	Project        *domain.Project   `json:"project,omitempty"`
	Name           string            `json:"name"`
	Path           string            `json:"path"`
	Counts         store.Counts      `json:"counts"`
	StoreSize      int64             `json:"storeSize"`
	RecentActivity []domain.Activity `json:"recentActivity"`
}

// Snapshot is the complete structured export
type Snapshot struct {
	Project    Summary             `json:"project"`
	Memories   []domain.Memory     `json:"memories"`
	Patterns   []domain.Pattern    `json:"patterns"`
	Files      []domain.FileRecord `json:"files"`
	ExportedAt time.Time           `json:"exportedAt"`
}

// Collect reads everything needed for an export. recent bounds the number
// of activity rows in the summary.
func Collect(ctx context.Context, st *store.Store, recent int) (*Snapshot, error) {
	status, err := st.Status(ctx, recent)
	if err != nil {
		return nil, err
	}
	memories, err := st.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return nil, err
	}
	patterns, err := st.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}
	files, err := st.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(st.Root())
	switch {
	case status.Project != nil:
		name = status.Project.Name
	case status.Sidecar != nil && status.Sidecar.ProjectName != "":
		name = status.Sidecar.ProjectName
	}

	snap := &Snapshot{
		Project: Summary{
			Project:        status.Project,
			Name:           name,
			Path:           st.Root(),
			Counts:         status.Counts,
			StoreSize:      status.StoreSize,
			RecentActivity: nonNil(status.Recent),
		},
		Memories:   nonNil(memories),
		Patterns:   nonNil(patterns),
		Files:      nonNil(files),
		ExportedAt: time.Now().UTC(),
	}
	return snap, nil
}

// Render encodes snap in the requested format.
func Render(snap *Snapshot, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(snap)
	case FormatMarkdown:
		return Markdown(snap), nil
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// JSON encodes the structured form.
func JSON(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Markdown renders the narrative form: statistics first, then one section
// per memory. Patterns and files are only counted.
func Markdown(snap *Snapshot) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s memory export\n\n", snap.Project.Name)
	fmt.Fprintf(&sb, "Exported %s from `%s`.\n\n", snap.ExportedAt.Format("2006-01-02 15:04 MST"), snap.Project.Path)

	sb.WriteString("## Statistics\n\n")
	c := snap.Project.Counts
	fmt.Fprintf(&sb, "- Memories: %d\n", c.Memories)
	fmt.Fprintf(&sb, "- Patterns: %d\n", c.Patterns)
	fmt.Fprintf(&sb, "- Files: %d\n", c.Files)
	if p := snap.Project.Project; p != nil {
		fmt.Fprintf(&sb, "- Lines of code: %s\n", humanize.Comma(int64(p.TotalLines)))
		fmt.Fprintf(&sb, "- Complexity: %s\n", p.Complexity)
	}
	fmt.Fprintf(&sb, "- Store size: %s\n", humanize.Bytes(uint64(snap.Project.StoreSize)))

	if len(snap.Project.RecentActivity) > 0 {
		sb.WriteString("\n### Recent activity\n\n")
		for _, a := range snap.Project.RecentActivity {
			fmt.Fprintf(&sb, "- %s [%s] %s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Type, a.Description)
		}
	}

	sb.WriteString("\n## Memories\n")
	if len(snap.Memories) == 0 {
		sb.WriteString("\nNo memories recorded.\n")
	}
	for _, m := range snap.Memories {
		fmt.Fprintf(&sb, "\n### %s (%s)\n\n", titleCase(string(m.Type)), m.CreatedAt.Format("2006-01-02"))
		sb.WriteString(m.Content)
		sb.WriteString("\n")
		if m.Context != "" {
			fmt.Fprintf(&sb, "\n_Context:_ %s\n", m.Context)
		}
		if len(m.Tags) > 0 {
			fmt.Fprintf(&sb, "\n_Tags:_ %s\n", strings.Join(m.Tags, ", "))
		}
		if len(m.Metadata) > 0 {
			pairs := make([]string, 0, len(m.Metadata))
			for _, k := range m.Metadata.Keys() {
				pairs = append(pairs, k+"="+metadataText(m.Metadata[k]))
			}
			fmt.Fprintf(&sb, "\n_Metadata:_ %s\n", strings.Join(pairs, ", "))
		}
	}

	return []byte(sb.String())
}

func metadataText(v domain.Value) string {
	if v.Kind == domain.KindString {
		return v.Str
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return "?"
	}
	return string(data)
}

// WriteFile writes data to path in one step: a sibling temp file is
// written fully and then renamed over the target.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}

// DefaultFileName returns the export file name used when none is given.
func DefaultFileName(f Format, now time.Time) string {
	ext := "json"
	if f == FormatMarkdown {
		ext = "md"
	}
	return fmt.Sprintf("codecontext-export-%s.%s", now.Format("20060102-150405"), ext)
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
