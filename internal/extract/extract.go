// Package extract turns local files into plain text suitable for a memory.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// MaxFileSize bounds how much of a file is read
	MaxFileSize = 5 * 1024 * 1024
	// MaxTextLen bounds the extracted text
	MaxTextLen = 10 * 1024
)

// File reads path and extracts readable text from it
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	return Reader(f, filepath.Base(path))
}

// Reader extracts readable text from r. name is used to detect the format
// when the content alone is ambiguous.
func Reader(r io.Reader, name string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxFileSize))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	var text string
	switch {
	case isHTML(name, body):
		text = extractText(string(body))
	case isText(body):
		text = strings.TrimSpace(string(body))
	default:
		return "", fmt.Errorf("%s: binary content", name)
	}

	if text == "" {
		return "", fmt.Errorf("no text content found")
	}
	return truncate(text, MaxTextLen), nil
}

// IsURL checks if a string looks like a URL
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

func isHTML(name string, body []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return strings.HasPrefix(http.DetectContentType(body), "text/html")
}

func isText(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return utf8.Valid(trimPartialRune(head))
}

// trimPartialRune drops a rune cut in half by the sniff boundary
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// extractText parses HTML and returns readable text content
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)

	// Tags to skip (non-content)
	skipTags := map[string]bool{
		"script": true, "style": true, "nav": true,
		"header": true, "footer": true, "aside": true,
		"noscript": true, "iframe": true, "head": true,
	}

	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		if n.Type == html.TextNode {
			// source line breaks inside a text node are not paragraph breaks
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "pre", "tr":
				sb.WriteString("\n")
			}
		}
	}

	extract(doc)

	// block elements end a line; collapse spacing within each line
	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
