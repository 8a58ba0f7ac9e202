package formatter

import (
	"github.com/charmbracelet/lipgloss"
)

// DefaultPalette mirrors the console colors of the upload notifications.
var DefaultPalette = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#00B7C3", "#626262")

// PlainPalette renders text unchanged.
var PlainPalette = &Palette{plain: true}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	info  lipgloss.Style
	muted lipgloss.Style
	plain bool
}

func NewPalette(t, s, e, w, i, m string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		info:  NewStyle(i),
		muted: NewEm(m),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *Palette) Title(text string) string   { return p.render(p.title, text) }
func (p *Palette) Success(text string) string { return p.render(p.ok, text) }
func (p *Palette) Failure(text string) string { return p.render(p.err, text) }
func (p *Palette) Warning(text string) string { return p.render(p.warn, text) }
func (p *Palette) Info(text string) string    { return p.render(p.info, text) }
func (p *Palette) Muted(text string) string   { return p.render(p.muted, text) }
