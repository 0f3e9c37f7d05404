package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Tokenize case-folds text and splits it on anything that is not a letter or
// digit. Tokens are returned once each, in first-seen order.
func Tokenize(text string) []string {
	_, order := termCounts(text)
	return order
}

func termCounts(text string) (map[string]int, []string) {
	folded := cases.Fold().String(text)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	counts := make(map[string]int, len(fields))
	var order []string
	for _, f := range fields {
		if counts[f] == 0 {
			order = append(order, f)
		}
		counts[f]++
	}
	return counts, order
}

func indexMemory(ctx context.Context, ex execer, id, content, memContext string) error {
	counts, order := termCounts(content + " " + memContext)
	for _, term := range order {
		if _, err := ex.ExecContext(ctx,
			"INSERT INTO memory_terms (term, memory_id, hits) VALUES (?, ?, ?)",
			term, id, counts[term],
		); err != nil {
			return fmt.Errorf("index term: %w", err)
		}
	}
	if _, err := ex.ExecContext(ctx,
		"INSERT INTO memory_index (memory_id, term_count) VALUES (?, ?)",
		id, len(order),
	); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}
	return nil
}

// LookupTerms returns the ids of memories whose indexed text contains every
// term, mapped to the summed hit count of those terms.
func (s *Store) LookupTerms(ctx context.Context, terms []string) (map[string]int, error) {
	terms = dedupe(terms)
	if len(terms) == 0 {
		return map[string]int{}, nil
	}

	args := make([]any, 0, len(terms)+1)
	for _, t := range terms {
		args = append(args, t)
	}
	args = append(args, len(terms))

	q := fmt.Sprintf(`
		SELECT memory_id, SUM(hits)
		FROM memory_terms
		WHERE term IN (%s)
		GROUP BY memory_id
		HAVING COUNT(*) = ?
	`, placeholders(len(terms)))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("lookup terms", s.dbPath, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var hits int
		if err := rows.Scan(&id, &hits); err != nil {
			return nil, storageErr("lookup terms", s.dbPath, err)
		}
		out[id] = hits
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("lookup terms", s.dbPath, err)
	}
	return out, nil
}

// IndexHealth compares the index bookkeeping with the base table
type IndexHealth struct {
	Memories     int `json:"memories"`
	Indexed      int `json:"indexed"`
	Terms        int `json:"terms"`
	ExpectedRows int `json:"expected_rows"`
	Missing      int `json:"missing"`
}

func (h IndexHealth) OK() bool {
	return h.Memories == h.Indexed && h.Terms == h.ExpectedRows && h.Missing == 0
}

// VerifyIndex checks row counts of the index against the memories table.
func (s *Store) VerifyIndex(ctx context.Context) (IndexHealth, error) {
	var h IndexHealth
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM memories),
			(SELECT COUNT(*) FROM memory_index),
			(SELECT COUNT(*) FROM memory_terms),
			(SELECT COALESCE(SUM(term_count), 0) FROM memory_index),
			(SELECT COUNT(*) FROM memories m LEFT JOIN memory_index i ON i.memory_id = m.id WHERE i.memory_id IS NULL)
	`).Scan(&h.Memories, &h.Indexed, &h.Terms, &h.ExpectedRows, &h.Missing)
	if err != nil {
		return h, storageErr("verify index", s.dbPath, err)
	}
	return h, nil
}

// EnsureIndex rebuilds the index when VerifyIndex reports a mismatch. It
// returns true when a rebuild happened.
func (s *Store) EnsureIndex(ctx context.Context) (bool, error) {
	h, err := s.VerifyIndex(ctx)
	if err != nil {
		return false, err
	}
	if h.OK() {
		return false, nil
	}
	return true, s.RebuildIndex(ctx)
}

// RebuildIndex discards the index and re-tokenizes every memory.
func (s *Store) RebuildIndex(ctx context.Context) error {
	return s.withTx(ctx, "rebuild index", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM memory_terms"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM memory_index"); err != nil {
			return err
		}

		type doc struct{ id, content, context string }
		rows, err := tx.QueryContext(ctx, "SELECT id, content, context FROM memories")
		if err != nil {
			return err
		}
		var docs []doc
		for rows.Next() {
			var d doc
			if err := rows.Scan(&d.id, &d.content, &d.context); err != nil {
				rows.Close()
				return err
			}
			docs = append(docs, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, d := range docs {
			if err := indexMemory(ctx, tx, d.id, d.content, d.context); err != nil {
				return err
			}
		}
		return nil
	})
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
