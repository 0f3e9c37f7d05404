package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_HTML(t *testing.T) {
	page := `<html><head><title>ignored</title><style>p{}</style></head>
<body><nav>menu</nav><h1>Decision log</h1><p>Use   WAL mode.</p><script>alert(1)</script></body></html>`

	text, err := Reader(strings.NewReader(page), "notes.html")
	require.NoError(t, err)
	assert.Equal(t, "Decision log\nUse WAL mode.", text)
}

func TestReader_HTMLParagraphs(t *testing.T) {
	page := "<body><p>First <b>bold</b>\n  paragraph.</p><ul><li>one</li><li>two</li></ul>tail<br>after</body>"

	text, err := Reader(strings.NewReader(page), "list.html")
	require.NoError(t, err)
	assert.Equal(t, "First bold paragraph.\none\ntwo\ntail\nafter", text)
}

func TestReader_SniffsHTML(t *testing.T) {
	text, err := Reader(strings.NewReader("<!DOCTYPE html><p>sniffed</p>"), "notes")
	require.NoError(t, err)
	assert.Equal(t, "sniffed", text)
}

func TestReader_PlainText(t *testing.T) {
	text, err := Reader(strings.NewReader("\n  line one\nline two  \n"), "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestReader_Errors(t *testing.T) {
	_, err := Reader(strings.NewReader("a\x00b"), "blob.bin")
	assert.Error(t, err)

	_, err = Reader(strings.NewReader("   \n"), "empty.txt")
	assert.Error(t, err)

	_, err = Reader(strings.NewReader("<html><script>x()</script></html>"), "only-script.html")
	assert.Error(t, err)
}

func TestReader_Truncates(t *testing.T) {
	long := strings.Repeat("é", MaxTextLen)
	text, err := Reader(strings.NewReader(long), "long.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.LessOrEqual(t, len(text), MaxTextLen+3)
	assert.True(t, strings.HasPrefix(text, "éé"))
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("remember this"), 0o644))

	text, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "remember this", text)

	_, err = File(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL(" www.example.com"))
	assert.False(t, IsURL("notes.txt"))
}
