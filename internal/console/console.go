// Package console renders tutor speech and session status for a terminal.
//
// Highlighted text follows the word highlighter: emphasised words stand out
// and stay marked once they have been spoken, and the word being spoken is
// shown in reverse video.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/tutorvoice/pkg/highlight"
	"github.com/MrWong99/tutorvoice/pkg/provider/live"
)

// Styles holds the lipgloss styles used by a [Printer].
type Styles struct {
	Word            lipgloss.Style
	Important       lipgloss.Style
	Spoken          lipgloss.Style // emphasised words already spoken
	Active          lipgloss.Style
	ActiveImportant lipgloss.Style
	Label           lipgloss.Style
	Value           lipgloss.Style
	Failure         lipgloss.Style
	Hint            lipgloss.Style
}

// DefaultStyles returns the standard palette bound to r.
func DefaultStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Word: r.NewStyle(),
		Important: r.NewStyle().
			Bold(true),
		Spoken: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		Active: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("36")),
		ActiveImportant: r.NewStyle().
			Bold(true).
			Reverse(true).
			Foreground(lipgloss.Color("220")),
		Label: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		Value: r.NewStyle().
			Foreground(lipgloss.Color("250")),
		Failure: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
		Hint: r.NewStyle().
			Faint(true),
	}
}

// Printer writes styled output to a terminal. All methods are safe for
// concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
	inLine bool // a highlight line is being redrawn in place
}

// New returns a Printer that writes to w using a renderer detected from w.
func New(w io.Writer) *Printer {
	return NewWithStyles(w, DefaultStyles(lipgloss.NewRenderer(w)))
}

// NewWithStyles returns a Printer with explicit styles.
func NewWithStyles(w io.Writer, styles Styles) *Printer {
	return &Printer{w: w, styles: styles}
}

// Styles returns the styles in use.
func (p *Printer) Styles() Styles { return p.styles }

// Line renders the words of tl with word active highlighted. Pass
// [highlight.NoActive] to render without a current word.
func (p *Printer) Line(tl highlight.Timeline, active int) string {
	words := make([]string, tl.Len())
	for i, seg := range tl.Segments() {
		words[i] = p.word(seg, i, active)
	}
	return strings.Join(words, " ")
}

func (p *Printer) word(seg highlight.Segment, i, active int) string {
	switch {
	case i == active && seg.Important:
		return p.styles.ActiveImportant.Render(seg.Display)
	case i == active:
		return p.styles.Active.Render(seg.Display)
	case seg.Important && active != highlight.NoActive && i < active:
		return p.styles.Spoken.Render(seg.Display)
	case seg.Important:
		return p.styles.Important.Render(seg.Display)
	default:
		return p.styles.Word.Render(seg.Display)
	}
}

// Highlight redraws the current line for a highlight update. The line is
// finished with a newline once the index returns to [highlight.NoActive].
func (p *Printer) Highlight(tl highlight.Timeline, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if active == highlight.NoActive {
		if p.inLine {
			fmt.Fprintf(p.w, "\r\x1b[2K%s\n", p.Line(tl, highlight.NoActive))
			p.inLine = false
		}
		return
	}
	fmt.Fprintf(p.w, "\r\x1b[2K%s", p.Line(tl, active))
	p.inLine = true
}

// Status prints a labelled status line such as the session state. A
// non-empty failure is printed underneath.
func (p *Printer) Status(label, value, failure string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLineLocked()

	fmt.Fprintf(p.w, "%s %s\n", p.styles.Label.Render(label+":"), p.styles.Value.Render(value))
	if failure != "" {
		fmt.Fprintln(p.w, p.styles.Failure.Render(failure))
	}
}

// Transcript prints a transcript message from the live session. Other
// message kinds are ignored.
func (p *Printer) Transcript(m live.Message) {
	var who string
	switch m.Kind {
	case live.MessageInputTranscript:
		who = "You"
	case live.MessageOutputTranscript:
		who = "Tutor"
	default:
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLineLocked()
	fmt.Fprintf(p.w, "%s %s\n", p.styles.Label.Render(who+":"), p.styles.Word.Render(text))
}

// Hint prints a faint one-line hint.
func (p *Printer) Hint(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLineLocked()
	fmt.Fprintln(p.w, p.styles.Hint.Render(text))
}

func (p *Printer) breakLineLocked() {
	if p.inLine {
		fmt.Fprintln(p.w)
		p.inLine = false
	}
}
