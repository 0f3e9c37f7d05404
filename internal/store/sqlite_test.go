package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Initialize(context.Background(), "demo", false)
	require.NoError(t, err)
	return s
}

func TestOpen_CreatesStateDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, StateDirName))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, StateDirName, DBFileName), s.DBPath())
}

func TestOpen_Unavailable(t *testing.T) {
	t.Run("path is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		_, err := Open(file)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("corrupt database", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, StateDirName), 0o755))
		garbage := []byte(strings.Repeat("not a sqlite database ", 512))
		require.NoError(t, os.WriteFile(filepath.Join(dir, StateDirName, DBFileName), garbage, 0o644))

		_, err := Open(dir)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestOpenExisting_NotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenExisting(dir)
	assert.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(filepath.Join(dir, StateDirName))
	assert.True(t, os.IsNotExist(statErr), "OpenExisting must not create the state dir")
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	project, err := s.Initialize(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), project.Name)
	assert.Equal(t, domain.ComplexityLow, project.Complexity)

	sc, err := ReadSidecar(dir)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.True(t, sc.Initialized)
	assert.Equal(t, project.ID, sc.ProjectID)
	assert.Equal(t, FormatVersion, sc.Version)

	_, err = s.InsertMemory(ctx, domain.Memory{Type: domain.MemoryNote, Content: "before reset"})
	require.NoError(t, err)

	_, err = s.Initialize(ctx, "", false)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	again, err := s.Initialize(ctx, "renamed", true)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	memories, err := s.ListMemories(ctx, MemoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, memories)

	acts, err := s.RecentActivities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityInit, acts[0].Type)

	reopened, err := OpenExisting(dir)
	require.NoError(t, err)
	reopened.Close()
}

func TestInsertMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.InsertMemory(ctx, domain.Memory{
		Type:     domain.MemoryDecision,
		Content:  "  Use Redis for sessions  ",
		Context:  "auth service",
		Tags:     []string{"Cache", "#redis", "cache"},
		Metadata: domain.Metadata{"ticket": domain.String("OPS-12"), "priority": domain.Number(2)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Use Redis for sessions", m.Content)
	assert.Equal(t, []string{"cache", "redis"}, m.Tags)
	assert.False(t, m.CreatedAt.IsZero())

	got, err := s.ListMemories(ctx, MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
	assert.Equal(t, "auth service", got[0].Context)
	assert.True(t, m.CreatedAt.Equal(got[0].CreatedAt))
	ticket, ok := got[0].Metadata.Get("ticket")
	assert.True(t, ok)
	assert.Equal(t, "OPS-12", ticket)
	assert.Equal(t, 2.0, got[0].Metadata["priority"].Num)

	acts, err := s.RecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityMemory, acts[0].Type)
	assert.Contains(t, acts[0].Description, "Use Redis for sessions")
}

func TestInsertMemory_Invalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, domain.Memory{Type: domain.MemoryNote, Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidMemory)

	_, err = s.InsertMemory(ctx, domain.Memory{Type: "Not A Type", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidMemory)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Memories)
}

func TestInsertMemory_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		m, err := s.InsertMemory(ctx, domain.Memory{Content: "same content"})
		require.NoError(t, err)
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestInsertMemory_SummaryTruncated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	long := strings.Repeat("abcdefghij ", 20)
	_, err := s.InsertMemory(ctx, domain.Memory{Content: long})
	require.NoError(t, err)

	acts, err := s.RecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.True(t, strings.HasSuffix(acts[0].Description, "..."))
	assert.Less(t, len(acts[0].Description), len(long))
}

func TestListMemories_Filters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	_, err := s.InsertMemory(ctx, domain.Memory{Type: domain.MemoryDecision, Content: "old decision", CreatedAt: now.Add(-72 * time.Hour)})
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, domain.Memory{Type: domain.MemoryDecision, Content: "new decision", CreatedAt: now})
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, domain.Memory{Type: domain.MemoryNote, Content: "new note", CreatedAt: now})
	require.NoError(t, err)

	got, err := s.ListMemories(ctx, MemoryFilter{Type: domain.MemoryDecision, Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new decision", got[0].Content)

	all, err := s.ListMemories(ctx, MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new note", all[0].Content, "same timestamp resolves to the later insert")
	assert.Equal(t, "old decision", all[2].Content)

	byTerm, err := s.ListMemories(ctx, MemoryFilter{Terms: []string{"new", "decision"}})
	require.NoError(t, err)
	require.Len(t, byTerm, 1)
	assert.Equal(t, "new decision", byTerm[0].Content)
}

func TestListMemories_SinceSubMillisecond(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 3, 4, 10, 0, 31, 484_000_000, time.UTC)

	_, err := s.InsertMemory(ctx, domain.Memory{Content: "at base", CreatedAt: base})
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, domain.Memory{Content: "one ms later", CreatedAt: base.Add(time.Millisecond)})
	require.NoError(t, err)

	since := base.Add(500 * time.Microsecond)
	got, err := s.ListMemories(ctx, MemoryFilter{Since: since})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one ms later", got[0].Content)
	assert.False(t, got[0].CreatedAt.Before(since))

	got, err = s.ListMemories(ctx, MemoryFilter{Since: base})
	require.NoError(t, err)
	assert.Len(t, got, 2, "an aligned floor is inclusive")
}

func TestCeilMillis(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_123)
	assert.Equal(t, int64(1_700_000_000_123), ceilMillis(base))
	assert.Equal(t, int64(1_700_000_000_124), ceilMillis(base.Add(time.Nanosecond)))
	assert.Equal(t, int64(-1), ceilMillis(time.UnixMilli(-2).Add(500*time.Microsecond)))
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, domain.Memory{Content: "to be cleared"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertFile(ctx, domain.FileRecord{Path: "main.go", Language: "go", Lines: 10}))

	require.NoError(t, s.ClearAll(ctx))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Memories)
	assert.Equal(t, 0, c.Files)
	assert.Equal(t, 3, c.Activities)

	acts, err := s.RecentActivities(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityClear, acts[0].Type)

	h, err := s.VerifyIndex(ctx)
	require.NoError(t, err)
	assert.True(t, h.OK())

	project, err := s.Project(ctx)
	require.NoError(t, err)
	assert.Nil(t, project)
}

func TestUpsertFile_Replaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertFile(ctx, domain.FileRecord{Path: "a.go", Language: "go", Lines: 1, Hash: "h1"}))
	require.NoError(t, s.UpsertFile(ctx, domain.FileRecord{Path: "a.go", Language: "go", Lines: 2, Hash: "h2"}))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, files[0].Lines)
	assert.Equal(t, "h2", files[0].Hash)

	err = s.UpsertFile(ctx, domain.FileRecord{Path: ""})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestUpsertPattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := domain.Pattern{
		ID: "p1", Type: domain.PatternFunction, Name: "handlers", Frequency: 3, Confidence: 0.8,
		Examples: []string{"func a()", "func b()"}, File: "a.go", Lines: domain.LineRange{Start: 1, End: 9},
	}
	require.NoError(t, s.UpsertPattern(ctx, p))
	p.Frequency = 5
	require.NoError(t, s.UpsertPattern(ctx, p))

	got, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Frequency)
	assert.Equal(t, []string{"func a()", "func b()"}, got[0].Examples)
	assert.Equal(t, domain.LineRange{Start: 1, End: 9}, got[0].Lines)

	bad := p
	bad.Confidence = 1.5
	assert.ErrorIs(t, s.UpsertPattern(ctx, bad), ErrInvalidRecord)
	bad = p
	bad.Frequency = 0
	assert.ErrorIs(t, s.UpsertPattern(ctx, bad), ErrInvalidRecord)
}

func TestUpsertProject_OnePerPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	before, err := s.Project(ctx)
	require.NoError(t, err)

	after, err := s.UpsertProject(ctx, &domain.Project{
		ID: "ignored", Name: "demo", Path: s.Root(), TotalFiles: 4, TotalLines: 120, Complexity: domain.ComplexityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, 4, after.TotalFiles)
	assert.Equal(t, domain.ComplexityMedium, after.Complexity)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, domain.Memory{Content: "one"})
	require.NoError(t, err)

	st, err := s.Status(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Counts.Memories)
	assert.Equal(t, "demo", st.Project.Name)
	assert.Greater(t, st.StoreSize, int64(0))
	require.Len(t, st.Recent, 2)
	assert.Equal(t, domain.ActivityMemory, st.Recent[0].Type)
}
