package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the weft banner.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	// Using a subtle gradient-like color scheme (Indigo/Violet)
	lines := []termenv.Style{
		termenv.String(" __      __        __ _   ").Foreground(p.Color("#818cf8")),
		termenv.String(" \\ \\ /\\ / /__ ___ / _| |_ ").Foreground(p.Color("#a78bfa")),
		termenv.String("  \\ V  V / -_) -_)  _|  _|").Foreground(p.Color("#c084fc")),
		termenv.String("   \\_/\\_/\\___\\___|_|  \\__|").Foreground(p.Color("#f472b6")),
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	fmt.Fprintf(w, "   %s\n\n", termenv.String(version).Faint())
}
