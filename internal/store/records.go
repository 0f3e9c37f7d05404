package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/codecontext/internal/domain"
)

// UpsertFile writes f keyed by its path, replacing any previous row.
func (s *Store) UpsertFile(ctx context.Context, f domain.FileRecord) error {
	if err := f.Validate(); err != nil {
		return newError(ErrInvalidRecord, "upsert file", f.Path, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (path, language, size, lines, modified_at, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			size = excluded.size,
			lines = excluded.lines,
			modified_at = excluded.modified_at,
			hash = excluded.hash
	`, f.Path, f.Language, f.Size, f.Lines, toMillis(f.ModifiedAt), f.Hash)
	if err != nil {
		return storageErr("upsert file", f.Path, err)
	}
	return nil
}

// UpsertPattern writes p keyed by its id, replacing any previous row.
func (s *Store) UpsertPattern(ctx context.Context, p domain.Pattern) error {
	if err := p.Validate(); err != nil {
		return newError(ErrInvalidRecord, "upsert pattern", p.ID, err)
	}

	examples := p.Examples
	if examples == nil {
		examples = []string{}
	}
	examplesJSON, err := json.Marshal(examples)
	if err != nil {
		return newError(ErrInvalidRecord, "upsert pattern", p.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, type, name, description, frequency, confidence, examples, file, line_start, line_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			description = excluded.description,
			frequency = excluded.frequency,
			confidence = excluded.confidence,
			examples = excluded.examples,
			file = excluded.file,
			line_start = excluded.line_start,
			line_end = excluded.line_end
	`, p.ID, string(p.Type), p.Name, p.Description, p.Frequency, p.Confidence,
		string(examplesJSON), p.File, p.Lines.Start, p.Lines.End)
	if err != nil {
		return storageErr("upsert pattern", p.ID, err)
	}
	return nil
}

// UpsertProject writes p keyed by its path. On conflict the stored id and
// creation time are kept.
func (s *Store) UpsertProject(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, newError(ErrInvalidRecord, "upsert project", "", fmt.Errorf("project path is required"))
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, newError(ErrInvalidRecord, "upsert project", p.Path, fmt.Errorf("project name is required"))
	}
	if p.Complexity == "" {
		p.Complexity = domain.ComplexityLow
	}
	if !p.Complexity.Valid() {
		return nil, newError(ErrInvalidRecord, "upsert project", p.Path, fmt.Errorf("unknown complexity %q", p.Complexity))
	}
	if p.TotalFiles < 0 || p.TotalLines < 0 {
		return nil, newError(ErrInvalidRecord, "upsert project", p.Path, fmt.Errorf("negative totals"))
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastActive.IsZero() {
		p.LastActive = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, created_at, last_active, total_files, total_lines, complexity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			last_active = excluded.last_active,
			total_files = excluded.total_files,
			total_lines = excluded.total_lines,
			complexity = excluded.complexity
	`, p.ID, p.Name, p.Path, toMillis(p.CreatedAt), toMillis(p.LastActive), p.TotalFiles, p.TotalLines, string(p.Complexity))
	if err != nil {
		return nil, storageErr("upsert project", p.Path, err)
	}

	return s.projectByPath(ctx, p.Path)
}

// Project returns the record for this store's root, or nil when the row was
// cleared.
func (s *Store) Project(ctx context.Context) (*domain.Project, error) {
	return s.projectByPath(ctx, s.root)
}

func (s *Store) projectByPath(ctx context.Context, path string) (*domain.Project, error) {
	var p domain.Project
	var created, active int64
	var complexity string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, created_at, last_active, total_files, total_lines, complexity
		FROM projects WHERE path = ?
	`, path).Scan(&p.ID, &p.Name, &p.Path, &created, &active, &p.TotalFiles, &p.TotalLines, &complexity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get project", path, err)
	}
	p.CreatedAt = fromMillis(created)
	p.LastActive = fromMillis(active)
	p.Complexity = domain.Complexity(complexity)
	return &p, nil
}

// ListFiles returns every file record ordered by path.
func (s *Store) ListFiles(ctx context.Context) ([]domain.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, language, size, lines, modified_at, hash FROM files ORDER BY path",
	)
	if err != nil {
		return nil, storageErr("list files", s.dbPath, err)
	}
	defer rows.Close()

	var out []domain.FileRecord
	for rows.Next() {
		var f domain.FileRecord
		var modified int64
		if err := rows.Scan(&f.Path, &f.Language, &f.Size, &f.Lines, &modified, &f.Hash); err != nil {
			return nil, storageErr("scan file", s.dbPath, err)
		}
		f.ModifiedAt = fromMillis(modified)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list files", s.dbPath, err)
	}
	return out, nil
}

// ListPatterns returns every pattern, most frequent first.
func (s *Store) ListPatterns(ctx context.Context) ([]domain.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, description, frequency, confidence, examples, file, line_start, line_end
		FROM patterns ORDER BY frequency DESC, id
	`)
	if err != nil {
		return nil, storageErr("list patterns", s.dbPath, err)
	}
	defer rows.Close()

	var out []domain.Pattern
	for rows.Next() {
		var p domain.Pattern
		var typ, examplesJSON string
		if err := rows.Scan(&p.ID, &typ, &p.Name, &p.Description, &p.Frequency, &p.Confidence,
			&examplesJSON, &p.File, &p.Lines.Start, &p.Lines.End); err != nil {
			return nil, storageErr("scan pattern", s.dbPath, err)
		}
		p.Type = domain.PatternType(typ)
		if err := json.Unmarshal([]byte(examplesJSON), &p.Examples); err != nil {
			p.Examples = nil
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list patterns", s.dbPath, err)
	}
	return out, nil
}
