package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes evaluation results, colored when the output is a terminal.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
}

// NewPrinter writes to out. Colors are used only if out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		profile = termenv.ColorProfile()
	}
	return &Printer{out: out, profile: profile}
}

// Outcome prints a status line followed by the value or error.
func (p *Printer) Outcome(o domain.Outcome) {
	status := p.profile.String(string(o.Status)).Bold()
	switch o.Status {
	case domain.OutcomeSuccess:
		status = status.Foreground(p.profile.Color("#22c55e"))
		fmt.Fprintf(p.out, "%s %v\n", status, o.Value)
	case domain.OutcomeError:
		status = status.Foreground(p.profile.Color("#ef4444"))
		fmt.Fprintf(p.out, "%s %v\n", status, o.Err)
	default:
		status = status.Foreground(p.profile.Color("#eab308"))
		fmt.Fprintln(p.out, status)
	}
}

// Effects lists effects still waiting for a resolution.
func (p *Printer) Effects(effects []*domain.Effect) {
	for _, e := range effects {
		id := p.profile.String(e.ID.String()).Faint()
		if e.Payload == nil {
			fmt.Fprintf(p.out, "  waiting %s %s\n", e.Type, id)
			continue
		}
		fmt.Fprintf(p.out, "  waiting %s %v %s\n", e.Type, e.Payload, id)
	}
}
