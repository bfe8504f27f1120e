package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
)

// maxLabel truncates value labels.
const maxLabel = 32

// Overlay contains evaluation data to visualize on the graph.
type Overlay struct {
	Resolved   []hash.Hash
	Unresolved []hash.Hash
}

// GenerateMermaid produces a Mermaid flowchart of an expression tree. Shared
// subexpressions appear once. It applies semantic styling:
// - Effect: [/Parallelogram/]
// - Async and Suspense: [[Subroutine]]
// - Fallback: {Rhombus}
// - Pending: ((Circle))
// - Failure: {{Hexagon}}
// - Default: [Rectangle]
// It also applies overlay styles (Resolved/Unresolved) if provided.
func GenerateMermaid(root domain.Expression, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	seen := make(map[hash.Hash]bool)
	var walk func(expr domain.Expression)
	walk = func(expr domain.Expression) {
		id := expr.Hash()
		if seen[id] {
			return
		}
		seen[id] = true

		opener, closer, label := shape(expr)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(id), opener, escape(label), closer)

		for _, e := range edges(expr) {
			arrow := "-->"
			switch {
			case e.dotted && e.label != "":
				arrow = fmt.Sprintf("-. \"%s\" .->", e.label)
			case e.label != "":
				arrow = fmt.Sprintf("-- \"%s\" -->", e.label)
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", nodeID(id), arrow, nodeID(e.to.Hash()))
			walk(e.to)
		}
	}
	walk(root)

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef resolved fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef unresolved fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, id := range overlay.Resolved {
			if seen[id] {
				fmt.Fprintf(&sb, "    class %s resolved;\n", nodeID(id))
			}
		}
		for _, id := range overlay.Unresolved {
			if seen[id] {
				fmt.Fprintf(&sb, "    class %s unresolved;\n", nodeID(id))
			}
		}
	}

	return sb.String()
}

type edge struct {
	to     domain.Expression
	label  string
	dotted bool
}

func edges(expr domain.Expression) []edge {
	var out []edge
	switch e := expr.(type) {
	case *domain.Async:
		for i, arg := range e.Args {
			if sub, ok := arg.(domain.Expression); ok {
				out = append(out, edge{to: sub, label: fmt.Sprint(i)})
			}
		}
	case *domain.Suspense:
		for _, dep := range e.Dependencies {
			out = append(out, edge{to: dep})
		}
	case *domain.Fallback:
		out = append(out, edge{to: e.Attempt}, edge{to: e.Fallback, label: "else", dotted: true})
	}
	return out
}

func shape(expr domain.Expression) (opener, closer, label string) {
	switch e := expr.(type) {
	case *domain.Result:
		return "[", "]", truncate(fmt.Sprintf("%v", e.Value))
	case *domain.Failure:
		return "{{", "}}", truncate(e.Err.Error())
	case *domain.Effect:
		if e.Payload == nil {
			return "[/", "/]", e.Type
		}
		return "[/", "/]", truncate(fmt.Sprintf("%s %v", e.Type, e.Payload))
	case *domain.Async:
		return "[[", "]]", e.Target.Name
	case *domain.Suspense:
		return "[[", "]]", e.Parent.Name + " (suspended)"
	case *domain.Fallback:
		return "{", "}", "fallback"
	case domain.Pending:
		return "((", "))", "pending"
	}
	return "[", "]", expr.Kind().String()
}

func nodeID(h hash.Hash) string {
	return "n" + h.String()
}

func escape(s string) string {
	// Escape double quotes for Mermaid labels
	return strings.ReplaceAll(s, "\"", "'")
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxLabel {
		return string(r[:maxLabel-1]) + "…"
	}
	return s
}
