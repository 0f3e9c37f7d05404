package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/codecontext/internal/domain"
)

//go:embed schema.sql
var schema string

const (
	// StateDirName is the hidden per-project directory holding the store
	StateDirName = ".codecontext"
	DBFileName   = "memory.db"
	SidecarName  = "project.json"

	FormatVersion = "1.0.0"
)

var tables = []string{"memory_terms", "memory_index", "memories", "patterns", "files", "projects", "activities"}

// Sidecar is the small JSON file written next to the database
type Sidecar struct {
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	Version     string `json:"version"`
	Initialized bool   `json:"initialized"`
}

// Store is the storage layer for a single project directory
type Store struct {
	db       *sql.DB
	root     string
	stateDir string
	dbPath   string
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open locates or creates the store under projectPath/.codecontext.
func Open(projectPath string) (*Store, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, newError(ErrStoreUnavailable, "open", projectPath, err)
	}

	stateDir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, newError(ErrStoreUnavailable, "open", stateDir, err)
	}

	dbPath := filepath.Join(stateDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, newError(ErrStoreUnavailable, "open", dbPath, err)
	}

	db.SetMaxOpenConns(1) // one writer at a time

	if err := checkReadable(db); err != nil {
		db.Close()
		return nil, newError(ErrStoreUnavailable, "open", dbPath, err)
	}

	return &Store{db: db, root: root, stateDir: stateDir, dbPath: dbPath}, nil
}

// OpenExisting opens the store of an initialized project. It fails with
// ErrNotFound without creating anything when the project was never
// initialized.
func OpenExisting(projectPath string) (*Store, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, newError(ErrStoreUnavailable, "open", projectPath, err)
	}

	sc, err := ReadSidecar(root)
	if err != nil {
		return nil, err
	}
	if sc == nil || !sc.Initialized {
		return nil, newError(ErrNotFound, "open", root, nil)
	}

	s, err := Open(root)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasSchema(context.Background())
	if err != nil {
		s.Close()
		return nil, err
	}
	if !ok {
		s.Close()
		return nil, newError(ErrNotFound, "open", root, nil)
	}
	return s, nil
}

// checkReadable forces the lazy driver to read the file so corruption surfaces at open
func checkReadable(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return err
	}
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Root returns the absolute project path
func (s *Store) Root() string { return s.root }

// StateDir returns the hidden state directory
func (s *Store) StateDir() string { return s.stateDir }

// DBPath returns the database file path
func (s *Store) DBPath() string { return s.dbPath }

func (s *Store) hasSchema(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('projects', 'memories', 'activities')",
	).Scan(&n)
	if err != nil {
		return false, storageErr("check schema", s.dbPath, err)
	}
	return n == 3, nil
}

// Initialized reports whether both the sidecar and the schema exist.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	sc, err := ReadSidecar(s.root)
	if err != nil {
		return false, err
	}
	if sc == nil || !sc.Initialized {
		return false, nil
	}
	return s.hasSchema(ctx)
}

// Initialize creates the schema and the project record. An initialized store
// is only recreated when force is set, destroying its data.
func (s *Store) Initialize(ctx context.Context, name string, force bool) (*domain.Project, error) {
	initialized, err := s.Initialized(ctx)
	if err != nil {
		return nil, err
	}
	if initialized && !force {
		return nil, newError(ErrAlreadyInitialized, "initialize", s.root, nil)
	}

	if force {
		for _, t := range tables {
			if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
				return nil, storageErr("initialize", s.dbPath, fmt.Errorf("drop %s: %w", t, err))
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, storageErr("initialize", s.dbPath, fmt.Errorf("init schema: %w", err))
	}

	if strings.TrimSpace(name) == "" {
		name = filepath.Base(s.root)
	}
	now := time.Now().UTC()
	project, err := s.UpsertProject(ctx, &domain.Project{
		ID:         uuid.New().String(),
		Name:       name,
		Path:       s.root,
		CreatedAt:  now,
		LastActive: now,
		Complexity: domain.ComplexityLow,
	})
	if err != nil {
		return nil, err
	}

	if err := s.writeSidecar(Sidecar{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Version:     FormatVersion,
		Initialized: true,
	}); err != nil {
		return nil, err
	}

	if err := s.AppendActivity(ctx, domain.ActivityInit, fmt.Sprintf("Initialized project %s", project.Name)); err != nil {
		return nil, err
	}

	return project, nil
}

// ReadSidecar loads the project sidecar. A missing file yields nil, nil.
func ReadSidecar(projectPath string) (*Sidecar, error) {
	path := filepath.Join(projectPath, StateDirName, SidecarName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, newError(ErrStoreUnavailable, "read sidecar", path, err)
	}

	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, newError(ErrStoreUnavailable, "read sidecar", path, err)
	}
	return &sc, nil
}

func (s *Store) writeSidecar(sc Sidecar) error {
	path := filepath.Join(s.stateDir, SidecarName)
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return storageErr("write sidecar", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return storageErr("write sidecar", path, err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, s.dbPath, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		var se *Error
		if errors.As(err, &se) {
			return err
		}
		return storageErr(op, s.dbPath, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, s.dbPath, err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ceilMillis rounds t up to the next stored millisecond so a floor with
// sub-millisecond precision never admits an earlier row.
func ceilMillis(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.After(time.UnixMilli(ms)) {
		ms++
	}
	return ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
