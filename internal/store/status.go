package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pbaille/codecontext/internal/domain"
)

// Counts holds per-table row counts
type Counts struct {
	Memories   int `json:"memories"`
	Files      int `json:"files"`
	Patterns   int `json:"patterns"`
	Activities int `json:"activities"`
}

// Status summarizes the store for reporting
type Status struct {
	Project   *domain.Project   `json:"project,omitempty"`
	Sidecar   *Sidecar          `json:"sidecar,omitempty"`
	Counts    Counts            `json:"counts"`
	StoreSize int64             `json:"store_size"`
	Recent    []domain.Activity `json:"recent_activity"`
}

// Counts returns row counts of the entity tables.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM memories),
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM patterns),
			(SELECT COUNT(*) FROM activities)
	`).Scan(&c.Memories, &c.Files, &c.Patterns, &c.Activities)
	if err != nil {
		return c, storageErr("count rows", s.dbPath, err)
	}
	return c, nil
}

// Size returns the on-disk size of the database including its WAL.
func (s *Store) Size() int64 {
	var total int64
	for _, p := range []string{s.dbPath, s.dbPath + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// Status gathers counts, size and the recent newest activity rows.
func (s *Store) Status(ctx context.Context, recent int) (*Status, error) {
	project, err := s.Project(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := ReadSidecar(s.root)
	if err != nil {
		return nil, err
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		return nil, err
	}
	activities, err := s.RecentActivities(ctx, recent)
	if err != nil {
		return nil, err
	}

	return &Status{
		Project:   project,
		Sidecar:   sc,
		Counts:    counts,
		StoreSize: s.Size(),
		Recent:    activities,
	}, nil
}

// ClearAll deletes every project, file, pattern and memory row together with
// the index. The activity log is kept and gains a clear entry.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.withTx(ctx, "clear", func(tx *sql.Tx) error {
		var memories int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&memories); err != nil {
			return err
		}
		for _, t := range []string{"memory_terms", "memory_index", "memories", "patterns", "files", "projects"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return appendActivity(ctx, tx, domain.ActivityClear,
			fmt.Sprintf("Cleared store (%d memories removed)", memories))
	})
}
