package dsl

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNode is returned when a node does not name exactly one kind.
	ErrInvalidNode = errors.New("invalid node")
	// ErrMissingRoot is returned when a document has no root node.
	ErrMissingRoot = errors.New("document has no root")
)

// NodeError locates a decoding failure inside a document.
type NodeError struct {
	Path string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
