// Package scanner walks a project tree and produces the file records,
// declaration patterns and metrics consumed by scan ingestion.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/rs/zerolog"
)

// Options configures a scan
type Options struct {
	Exclude     []string
	MaxFileSize int64
	// IncludeHidden also walks dot-directories other than the state dir
	IncludeHidden bool
	Logger        zerolog.Logger
}

// DefaultExclude lists globs skipped unless the config overrides them
var DefaultExclude = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/target/**",
	"**/build/**",
	"**/dist/**",
	"**/*.min.js",
	"**/*.lock",
}

const defaultMaxFileSize = 1 << 20

// Scanner walks one project root
type Scanner struct {
	root string
	opts Options
}

func New(root string, opts Options) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Scanner{root: abs, opts: opts}, nil
}

// Root returns the absolute root being scanned
func (s *Scanner) Root() string { return s.root }

// Excluded reports whether rel (slash separated, relative to root) is
// skipped by the exclude globs or the hidden-directory rule.
func (s *Scanner) Excluded(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}

	for _, part := range strings.Split(rel, "/") {
		if part == ".codecontext" {
			return true
		}
		if !s.opts.IncludeHidden && strings.HasPrefix(part, ".") {
			return true
		}
	}

	candidates := []string{rel}
	if isDir {
		candidates = append(candidates, rel+"/")
	}
	for _, pattern := range s.opts.Exclude {
		for _, c := range candidates {
			if match, _ := doublestar.Match(pattern, c); match {
				return true
			}
			// "**/dir/**" also names the directory itself
			if isDir && strings.HasSuffix(pattern, "/**") {
				if match, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); match {
					return true
				}
			}
		}
	}
	return false
}

// Scan walks the tree and returns the scan payload.
func (s *Scanner) Scan(ctx context.Context) (*ingest.ScanResult, error) {
	log := s.opts.Logger
	det := newDetector()
	res := &ingest.ScanResult{Files: []domain.FileRecord{}}
	languages := map[string]int{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if walkErr != nil {
			log.Debug().Err(walkErr).Str("path", rel).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.Excluded(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.Excluded(rel, false) {
			return nil
		}

		rec, content, err := s.readFile(path, rel)
		if err != nil {
			log.Debug().Err(err).Str("path", rel).Msg("skipping file")
			return nil
		}
		if rec == nil {
			return nil
		}

		res.Files = append(res.Files, *rec)
		languages[rec.Language]++
		det.scan(rec.Path, rec.Language, content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	lines := 0
	for _, f := range res.Files {
		lines += f.Lines
	}
	res.Patterns = det.patterns()
	res.Dependencies = dependencies(s.root)
	res.Metrics = &ingest.Metrics{
		TotalFiles: len(res.Files),
		TotalLines: lines,
		Complexity: domain.ClassifyComplexity(len(res.Files), lines),
		Languages:  languages,
	}

	log.Debug().Int("files", len(res.Files)).Int("lines", lines).Int("patterns", len(res.Patterns)).Msg("scan complete")
	return res, nil
}

// ScanFile builds the record of a single file, or nil when the file is not
// tracked (unknown language, binary, too large).
func (s *Scanner) ScanFile(path string) (*domain.FileRecord, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return nil, err
	}
	rec, _, err := s.readFile(path, rel)
	return rec, err
}

func (s *Scanner) readFile(path, rel string) (*domain.FileRecord, []byte, error) {
	lang := Language(path)
	if lang == "" {
		return nil, nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.Size() > s.opts.MaxFileSize {
		return nil, nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if isBinary(content) {
		return nil, nil, nil
	}

	sum := sha256.Sum256(content)
	return &domain.FileRecord{
		Path:       filepath.ToSlash(rel),
		Language:   lang,
		Size:       info.Size(),
		Lines:      countLines(content),
		ModifiedAt: info.ModTime().UTC(),
		Hash:       hex.EncodeToString(sum[:]),
	}, content, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func isBinary(content []byte) bool {
	head := content
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}

var manifests = map[string]string{
	"go.mod":           "go",
	"package.json":     "npm",
	"requirements.txt": "pip",
	"pyproject.toml":   "python",
	"Cargo.toml":       "cargo",
	"Gemfile":          "bundler",
	"pom.xml":          "maven",
	"build.gradle":     "gradle",
	"composer.json":    "composer",
}

// dependencies lists the package managers whose manifest sits at the root.
func dependencies(root string) []string {
	var out []string
	for file, name := range manifests {
		if _, err := os.Stat(filepath.Join(root, file)); err == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
