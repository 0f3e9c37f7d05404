package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Initialize(context.Background(), "ingest-test", false)
	require.NoError(t, err)
	return s
}

func sampleScan() ScanResult {
	return ScanResult{
		Files: []domain.FileRecord{
			{Path: "main.go", Language: "go", Size: 120, Lines: 10, Hash: "a"},
			{Path: "pkg/util.go", Language: "go", Size: 300, Lines: 30, Hash: "b"},
		},
		Patterns: []domain.Pattern{
			{Type: domain.PatternFunction, Name: "go functions", Frequency: 4, Confidence: 0.9, File: "main.go"},
			{ID: "style-tabs", Type: domain.PatternStyle, Name: "tab indentation", Frequency: 2, Confidence: 0.7},
		},
	}
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	before := time.Now().Add(-time.Second)
	m, err := Remember(ctx, s, MemoryInput{Type: domain.MemoryDecision, Content: "Use Redis for sessions", Tags: []string{"infra"}})
	require.NoError(t, err)
	assert.Equal(t, domain.MemoryDecision, m.Type)
	assert.True(t, m.CreatedAt.After(before))
	assert.Equal(t, []string{"infra"}, m.Tags)

	past := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err = Remember(ctx, s, MemoryInput{Content: "dated", CreatedAt: past})
	require.NoError(t, err)
	assert.True(t, past.Equal(m.CreatedAt))
	assert.Equal(t, domain.MemoryNote, m.Type)
}

func TestRemember_EmptyContent(t *testing.T) {
	s := newStore(t)
	_, err := Remember(context.Background(), s, MemoryInput{Type: domain.MemoryNote, Content: " \n\t"})
	assert.ErrorIs(t, err, store.ErrInvalidMemory)
}

func TestScan_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p, err := Scan(ctx, s, sampleScan())
	require.NoError(t, err)
	assert.Equal(t, Progress{Files: 2, Patterns: 2}, p)

	first, err := s.Counts(ctx)
	require.NoError(t, err)

	_, err = Scan(ctx, s, sampleScan())
	require.NoError(t, err)

	second, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.Patterns, second.Patterns)
	assert.Equal(t, 2, second.Files)
	assert.Equal(t, 2, second.Patterns)
}

func TestScan_UpdatesProject(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := Scan(ctx, s, sampleScan())
	require.NoError(t, err)

	project, err := s.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, project.TotalFiles)
	assert.Equal(t, 40, project.TotalLines)
	assert.Equal(t, domain.ComplexityLow, project.Complexity)

	res := sampleScan()
	res.Metrics = &Metrics{TotalFiles: 900, TotalLines: 120000, Complexity: domain.ComplexityHigh}
	_, err = Scan(ctx, s, res)
	require.NoError(t, err)

	project, err = s.Project(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900, project.TotalFiles)
	assert.Equal(t, domain.ComplexityHigh, project.Complexity)

	acts, err := s.RecentActivities(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityScan, acts[0].Type)
}

func TestScan_FailFast(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	res := sampleScan()
	res.Files = append(res.Files[:1], domain.FileRecord{Path: ""}, domain.FileRecord{Path: "never.go"})

	p, err := Scan(ctx, s, res)
	require.Error(t, err)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, Progress{Files: 1}, batchErr.Progress)
	assert.Equal(t, Progress{Files: 1}, p)
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	// the first file stays committed
	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Path)
}

func TestDecodeScanResult(t *testing.T) {
	valid := []byte(`{
		"files": [{"path": "a.go", "language": "go", "lines": 3, "size": 40}],
		"patterns": [{"type": "class", "name": "models", "frequency": 2, "confidence": 0.5, "extra": true}],
		"architecture": {"layers": ["api", "store"]},
		"dependencies": ["cobra"],
		"metrics": {"totalFiles": 1, "totalLines": 3}
	}`)
	res, err := DecodeScanResult(valid)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, domain.PatternClass, res.Patterns[0].Type)
	assert.Equal(t, 3, res.Metrics.TotalLines)

	tests := []struct {
		name string
		data string
	}{
		{"confidence above one", `{"patterns": [{"type": "class", "name": "x", "frequency": 1, "confidence": 1.2}]}`},
		{"zero frequency", `{"patterns": [{"type": "class", "name": "x", "frequency": 0, "confidence": 0.2}]}`},
		{"unknown pattern type", `{"patterns": [{"type": "widget", "name": "x", "frequency": 1, "confidence": 0.2}]}`},
		{"file without path", `{"files": [{"language": "go"}]}`},
		{"not an object", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeScanResult([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestPatternID_Stable(t *testing.T) {
	p := domain.Pattern{Type: domain.PatternFunction, Name: "handlers", File: "api.go"}
	assert.Equal(t, PatternID(p), PatternID(p))

	q := p
	q.File = "other.go"
	assert.NotEqual(t, PatternID(p), PatternID(q))
}
