package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pbaille/codecontext/internal/domain"
)

// SummaryWidth bounds the content excerpt written into activity rows
const SummaryWidth = 50

// AppendActivity adds an audit row.
func (s *Store) AppendActivity(ctx context.Context, typ domain.ActivityType, description string) error {
	if err := appendActivity(ctx, s.db, typ, description); err != nil {
		return storageErr("append activity", s.dbPath, err)
	}
	return nil
}

func appendActivity(ctx context.Context, ex execer, typ domain.ActivityType, description string) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO activities (type, description, created_at) VALUES (?, ?, ?)",
		string(typ), description, toMillis(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// RecentActivities returns the n newest activity rows, newest first.
func (s *Store) RecentActivities(ctx context.Context, n int) ([]domain.Activity, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, description, created_at FROM activities ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, storageErr("list activities", s.dbPath, err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var typ string
		var created int64
		if err := rows.Scan(&a.ID, &typ, &a.Description, &created); err != nil {
			return nil, storageErr("scan activity", s.dbPath, err)
		}
		a.Type = domain.ActivityType(typ)
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list activities", s.dbPath, err)
	}
	return out, nil
}

// Summarize flattens text to one line and truncates it to width display
// columns.
func Summarize(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	return runewidth.Truncate(text, width, "...")
}
