package scanner

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"sort"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/ingest"
)

const maxExamples = 5

type rule struct {
	kind domain.PatternType
	re   *regexp.Regexp
}

// Declaration regexes are line based; the first capture group is the name.
var rules = map[string][]rule{
	"go": {
		{domain.PatternFunction, regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)},
		{domain.PatternClass, regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+struct\b`)},
	},
	"javascript": {
		{domain.PatternFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)},
		{domain.PatternClass, regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][\w$]*)`)},
	},
	"typescript": {
		{domain.PatternFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)},
		{domain.PatternClass, regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)},
	},
	"python": {
		{domain.PatternFunction, regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`)},
		{domain.PatternClass, regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`)},
	},
	"ruby": {
		{domain.PatternFunction, regexp.MustCompile(`^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!]?)`)},
		{domain.PatternClass, regexp.MustCompile(`^\s*class\s+([A-Z]\w*)`)},
	},
	"rust": {
		{domain.PatternFunction, regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`)},
		{domain.PatternClass, regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+([A-Za-z_]\w*)`)},
	},
	"java": {
		{domain.PatternClass, regexp.MustCompile(`^\s*(?:public\s+|private\s+|protected\s+)?(?:abstract\s+|final\s+)?class\s+([A-Za-z_]\w*)`)},
	},
}

type occurrence struct {
	name string
	file string
	line int
}

type detector struct {
	found   map[string][]occurrence
	perFile map[string]map[string]int
}

func newDetector() *detector {
	return &detector{
		found:   map[string][]occurrence{},
		perFile: map[string]map[string]int{},
	}
}

func key(lang string, kind domain.PatternType) string {
	return lang + "/" + string(kind)
}

func (d *detector) scan(file, lang string, content []byte) {
	langRules := rules[lang]
	if len(langRules) == 0 {
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, r := range langRules {
			m := r.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			k := key(lang, r.kind)
			d.found[k] = append(d.found[k], occurrence{name: m[1], file: file, line: line})
			if d.perFile[k] == nil {
				d.perFile[k] = map[string]int{}
			}
			d.perFile[k][file]++
		}
	}
}

// patterns aggregates occurrences into one Pattern per language and kind.
func (d *detector) patterns() []domain.Pattern {
	keys := make([]string, 0, len(d.found))
	for k := range d.found {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.Pattern, 0, len(keys))
	for _, k := range keys {
		occ := d.found[k]
		lang, kind := splitKey(k)

		// the file declaring the most instances represents the pattern
		top, topCount := "", 0
		for file, n := range d.perFile[k] {
			if n > topCount || (n == topCount && file < top) {
				top, topCount = file, n
			}
		}

		start, end := 0, 0
		var examples []string
		for _, o := range occ {
			if o.file != top {
				continue
			}
			if start == 0 {
				start = o.line
			}
			end = o.line
		}
		for _, o := range occ {
			if len(examples) == maxExamples {
				break
			}
			examples = append(examples, o.name)
		}

		p := domain.Pattern{
			Type:        kind,
			Name:        fmt.Sprintf("%s %s declarations", lang, kind),
			Description: fmt.Sprintf("%d %s declarations across %d %s files", len(occ), kind, len(d.perFile[k]), lang),
			Frequency:   len(occ),
			Confidence:  confidence(len(occ)),
			Examples:    examples,
			File:        top,
			Lines:       domain.LineRange{Start: start, End: end},
		}
		p.ID = ingest.PatternID(domain.Pattern{Type: p.Type, Name: p.Name})
		out = append(out, p)
	}
	return out
}

// confidence grows with the number of observations and saturates at 0.95.
func confidence(n int) float64 {
	c := 0.5 + float64(n)*0.05
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func splitKey(k string) (string, domain.PatternType) {
	for i := len(k) - 1; i >= 0; i-- {
		if k[i] == '/' {
			return k[:i], domain.PatternType(k[i+1:])
		}
	}
	return k, ""
}
