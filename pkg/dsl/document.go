package dsl

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Document is a decoded expression document.
type Document struct {
	Name string
	Root domain.Expression
}

type rawDocument struct {
	Name string `yaml:"name"`
	Root any    `yaml:"root"`
}

type rawNode struct {
	Result   any          `mapstructure:"result"`
	Failure  string       `mapstructure:"failure"`
	Effect   *rawEffect   `mapstructure:"effect"`
	Async    string       `mapstructure:"async"`
	Args     []any        `mapstructure:"args"`
	Fallback *rawFallback `mapstructure:"fallback"`
	Pending  any          `mapstructure:"pending"`
	All      []any        `mapstructure:"all"`
	First    []any        `mapstructure:"first"`
}

type rawEffect struct {
	Type    string `mapstructure:"type"`
	Payload any    `mapstructure:"payload"`
}

type rawFallback struct {
	Attempt any `mapstructure:"attempt"`
	Else    any `mapstructure:"else"`
}

var kinds = []string{"result", "failure", "effect", "async", "fallback", "pending", "all", "first"}

// Decoder turns documents into expressions, resolving calls against a registry.
type Decoder struct {
	reg *registry.Registry
}

// NewDecoder creates a decoder. A nil registry means the built-in definitions.
func NewDecoder(reg *registry.Registry) *Decoder {
	if reg == nil {
		reg = registry.Default()
	}
	return &Decoder{reg: reg}
}

// Load reads and decodes the document at path.
func (d *Decoder) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := d.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a YAML or JSON document.
func (d *Decoder) Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if raw.Root == nil {
		return nil, ErrMissingRoot
	}
	root, err := d.Node("root", raw.Root)
	if err != nil {
		return nil, err
	}
	return &Document{Name: raw.Name, Root: root}, nil
}

// Node decodes one node. path names it in errors.
func (d *Decoder) Node(path string, raw any) (domain.Expression, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &NodeError{Path: path, Err: fmt.Errorf("%w: expected a map, got %T", ErrInvalidNode, raw)}
	}

	var present []string
	for _, k := range kinds {
		if _, ok := m[k]; ok {
			present = append(present, k)
		}
	}
	if len(present) != 1 {
		return nil, &NodeError{Path: path, Err: fmt.Errorf("%w: want one of %s, found %d", ErrInvalidNode, strings.Join(kinds, ", "), len(present))}
	}
	kind := present[0]
	if _, hasArgs := m["args"]; hasArgs && kind != "async" {
		return nil, &NodeError{Path: path, Err: fmt.Errorf("%w: args only apply to async", ErrInvalidNode)}
	}

	var n rawNode
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &n,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, &NodeError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidNode, err)}
	}

	expr, err := d.build(path, kind, &n)
	if err != nil {
		var ne *NodeError
		if errors.As(err, &ne) {
			return nil, err
		}
		return nil, &NodeError{Path: path, Err: err}
	}
	return expr, nil
}

func (d *Decoder) build(path, kind string, n *rawNode) (domain.Expression, error) {
	switch kind {
	case "result":
		return domain.ResultOf(n.Result)
	case "failure":
		if n.Failure == "" {
			return nil, fmt.Errorf("%w: failure needs a message", ErrInvalidNode)
		}
		return domain.NewFailure(errors.New(n.Failure))
	case "effect":
		if n.Effect == nil || n.Effect.Type == "" {
			return nil, fmt.Errorf("%w: effect needs a type", ErrInvalidNode)
		}
		return domain.NewEffect(n.Effect.Type, n.Effect.Payload), nil
	case "pending":
		return domain.Pending{}, nil
	case "fallback":
		if n.Fallback == nil || n.Fallback.Attempt == nil || n.Fallback.Else == nil {
			return nil, fmt.Errorf("%w: fallback needs attempt and else", ErrInvalidNode)
		}
		attempt, err := d.Node(path+".fallback.attempt", n.Fallback.Attempt)
		if err != nil {
			return nil, err
		}
		alt, err := d.Node(path+".fallback.else", n.Fallback.Else)
		if err != nil {
			return nil, err
		}
		return domain.NewFallback(attempt, alt), nil
	case "async":
		return d.call(path+".args", n.Async, n.Args)
	case "all":
		return d.call(path+".all", registry.Collect.Name, n.All)
	case "first":
		return d.call(path+".first", registry.First.Name, n.First)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidNode, kind)
}

func (d *Decoder) call(path, name string, rawArgs []any) (domain.Expression, error) {
	args := make([]any, 0, len(rawArgs))
	for i, raw := range rawArgs {
		argPath := fmt.Sprintf("%s[%d]", path, i)
		switch raw.(type) {
		case map[string]any:
			expr, err := d.Node(argPath, raw)
			if err != nil {
				return nil, err
			}
			args = append(args, expr)
		case []any:
			return nil, &NodeError{Path: argPath, Err: fmt.Errorf("%w: lists must be wrapped in a result node", ErrInvalidNode)}
		default:
			args = append(args, raw)
		}
	}
	return d.reg.Call(name, args...)
}
