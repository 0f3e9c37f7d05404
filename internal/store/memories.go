package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/codecontext/internal/domain"
)

// MemoryFilter narrows ListMemories. Zero fields do not filter.
type MemoryFilter struct {
	Type  domain.MemoryType
	Since time.Time
	// Terms restricts to memories whose index holds every term
	Terms []string
	Limit int
}

// InsertMemory validates m, assigns it a fresh id, and writes it together with
// its index entries and an activity row. A zero CreatedAt is stamped with the
// current time.
func (s *Store) InsertMemory(ctx context.Context, m domain.Memory) (*domain.Memory, error) {
	m.Content = strings.TrimSpace(m.Content)
	m.Context = strings.TrimSpace(m.Context)
	if m.Content == "" {
		return nil, invalidMemory("insert memory", "content is required")
	}
	if m.Type == "" {
		m.Type = domain.MemoryNote
	}
	if !m.Type.Valid() {
		return nil, invalidMemory("insert memory", "malformed type %q", m.Type)
	}

	m.ID = uuid.New().String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = fromMillis(toMillis(m.CreatedAt))
	m.Tags = domain.NormalizeTags(m.Tags)

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return nil, invalidMemory("insert memory", "encode tags: %v", err)
	}
	metaJSON := []byte("{}")
	if len(m.Metadata) > 0 {
		if metaJSON, err = json.Marshal(m.Metadata); err != nil {
			return nil, invalidMemory("insert memory", "encode metadata: %v", err)
		}
	}

	err = s.withTx(ctx, "insert memory", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO memories (id, type, content, context, created_at, tags, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)",
			m.ID, string(m.Type), m.Content, m.Context, toMillis(m.CreatedAt), string(tagsJSON), string(metaJSON),
		); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
		if err := indexMemory(ctx, tx, m.ID, m.Content, m.Context); err != nil {
			return err
		}
		return appendActivity(ctx, tx, domain.ActivityMemory,
			fmt.Sprintf("Remembered %s: %s", m.Type, Summarize(m.Content, SummaryWidth)))
	})
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// ListMemories returns memories matching f, newest first. Memories created
// in the same millisecond keep insertion order reversed.
func (s *Store) ListMemories(ctx context.Context, f MemoryFilter) ([]domain.Memory, error) {
	var where []string
	var args []any

	if f.Type != "" {
		where = append(where, "m.type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		where = append(where, "m.created_at >= ?")
		args = append(args, ceilMillis(f.Since))
	}
	if terms := dedupe(f.Terms); len(terms) > 0 {
		where = append(where, fmt.Sprintf(
			"m.id IN (SELECT memory_id FROM memory_terms WHERE term IN (%s) GROUP BY memory_id HAVING COUNT(*) = ?)",
			placeholders(len(terms)),
		))
		for _, t := range terms {
			args = append(args, t)
		}
		args = append(args, len(terms))
	}

	q := "SELECT m.id, m.type, m.content, m.context, m.created_at, m.tags, m.metadata FROM memories m"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY m.created_at DESC, m.rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list memories", s.dbPath, err)
	}
	defer rows.Close()

	var out []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storageErr("scan memory", s.dbPath, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list memories", s.dbPath, err)
	}
	return out, nil
}

func scanMemory(rows *sql.Rows) (domain.Memory, error) {
	var m domain.Memory
	var typ, tagsJSON, metaJSON string
	var created int64
	if err := rows.Scan(&m.ID, &typ, &m.Content, &m.Context, &created, &tagsJSON, &metaJSON); err != nil {
		return m, err
	}
	m.Type = domain.MemoryType(typ)
	m.CreatedAt = fromMillis(created)

	// Malformed blobs degrade to empty values rather than failing the read
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		m.Tags = nil
	}
	if meta, err := domain.ParseMetadata([]byte(metaJSON)); err == nil && len(meta) > 0 {
		m.Metadata = meta
	}
	return m, nil
}
