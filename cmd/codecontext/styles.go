package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/pbaille/codecontext/internal/domain"
)

var (
	colorRed     = lipgloss.Color("#E06C75")
	colorGreen   = lipgloss.Color("#98C379")
	colorYellow  = lipgloss.Color("#E5C07B")
	colorBlue    = lipgloss.Color("#61AFEF")
	colorMagenta = lipgloss.Color("#C678DD")
	colorCyan    = lipgloss.Color("#56B6C2")
	colorMuted   = lipgloss.Color("#636B78")
)

var typeColors = map[domain.MemoryType]lipgloss.Color{
	domain.MemoryDecision:     colorMagenta,
	domain.MemoryPattern:      colorBlue,
	domain.MemoryIssue:        colorRed,
	domain.MemoryConversation: colorCyan,
	domain.MemoryNote:         colorYellow,
}

// styles renders for one writer; color is dropped when it is not a terminal
type styles struct {
	r       *lipgloss.Renderer
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	score   lipgloss.Style
	content lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	return &styles{
		r:       r,
		title:   r.NewStyle().Bold(true),
		label:   r.NewStyle().Foreground(colorMuted).Width(12),
		muted:   r.NewStyle().Foreground(colorMuted),
		ok:      r.NewStyle().Foreground(colorGreen),
		err:     r.NewStyle().Foreground(colorRed).Bold(true),
		score:   r.NewStyle().Foreground(colorYellow),
		content: r.NewStyle(),
	}
}

func (s *styles) memoryType(t domain.MemoryType) string {
	c, ok := typeColors[t]
	if !ok {
		c = colorMuted
	}
	return s.r.NewStyle().Foreground(c).Render("[" + string(t) + "]")
}
