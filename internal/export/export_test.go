package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, name string) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Initialize(context.Background(), name, false)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	types := []domain.MemoryType{domain.MemoryDecision, domain.MemoryNote, domain.MemoryConversation, domain.MemoryPattern}

	for i := 0; i < 8; i++ {
		_, err := s.InsertMemory(ctx, domain.Memory{
			Type:      types[i%len(types)],
			Content:   fmt.Sprintf("memory number %d", i),
			Context:   fmt.Sprintf("context %d", i%3),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Tags:      []string{"batch", fmt.Sprintf("t%d", i%2)},
			Metadata:  domain.Metadata{"index": domain.Number(float64(i)), "source": domain.String("seed")},
		})
		require.NoError(t, err)
	}

	_, err := ingest.Scan(ctx, s, ingest.ScanResult{
		Files: []domain.FileRecord{{Path: "main.go", Language: "go", Size: 10, Lines: 2, Hash: "x", ModifiedAt: base}},
		Patterns: []domain.Pattern{{
			ID: "p1", Type: domain.PatternFunction, Name: "funcs", Frequency: 2, Confidence: 0.5,
			Examples: []string{"func main()"}, Lines: domain.LineRange{Start: 1, End: 2},
		}},
	})
	require.NoError(t, err)
}

func TestCollect(t *testing.T) {
	s := newStore(t, "collect")
	seed(t, s)

	snap, err := Collect(context.Background(), s, 3)
	require.NoError(t, err)
	assert.Equal(t, "collect", snap.Project.Name)
	assert.Equal(t, 8, snap.Project.Counts.Memories)
	assert.Len(t, snap.Memories, 8)
	assert.Len(t, snap.Patterns, 1)
	assert.Len(t, snap.Files, 1)
	assert.Len(t, snap.Project.RecentActivity, 3)
	assert.Greater(t, snap.Project.StoreSize, int64(0))
}

func TestJSON_Keys(t *testing.T) {
	s := newStore(t, "keys")
	snap, err := Collect(context.Background(), s, 5)
	require.NoError(t, err)

	data, err := JSON(snap)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"project", "memories", "patterns", "files", "exportedAt"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "[]", string(raw["memories"]))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, "source")
	seed(t, src)

	snap, err := Collect(ctx, src, 10)
	require.NoError(t, err)
	data, err := JSON(snap)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, parsed.Memories, 8)

	dst := newStore(t, "target")
	res, err := Import(ctx, dst, data)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Memories: 8, Patterns: 1, Files: 1}, res)

	want, err := src.ListMemories(ctx, store.MemoryFilter{})
	require.NoError(t, err)
	got, err := dst.ListMemories(ctx, store.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for i := range want {
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, want[i].Context, got[i].Context)
		assert.Equal(t, want[i].Tags, got[i].Tags)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		assert.Equal(t, want[i].Metadata, got[i].Metadata)
		assert.NotEqual(t, want[i].ID, got[i].ID)
	}

	patterns, err := dst.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, []string{"func main()"}, patterns[0].Examples)

	hits, err := dst.LookupTerms(ctx, []string{"number", "3"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"memories": [{"type": "note", "content": ""}]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"project": {}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	s := newStore(t, "narrative")
	seed(t, s)

	snap, err := Collect(context.Background(), s, 2)
	require.NoError(t, err)
	out := string(Markdown(snap))

	assert.True(t, strings.HasPrefix(out, "# narrative memory export"))
	assert.Contains(t, out, "## Statistics")
	assert.Contains(t, out, "- Memories: 8")
	assert.Contains(t, out, "### Decision (2025-06-01)")
	assert.Contains(t, out, "_Context:_ context 0")
	assert.Contains(t, out, "_Metadata:_ index=0, source=seed")
	assert.Equal(t, 8, strings.Count(out, "\n### ")-1, "one section per memory plus recent activity")
	assert.NotContains(t, out, "func main()")
	assert.Less(t, strings.Index(out, "## Statistics"), strings.Index(out, "## Memories"))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFile(path, []byte("new contents")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	assert.Error(t, WriteFile(filepath.Join(dir, "missing", "out.json"), []byte("x")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("MD")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
