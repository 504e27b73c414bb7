package rag

import "fmt"

// Kind tags where in the pipeline a query failed.
type Kind string

const (
	KindEmbed  Kind = "embed"
	KindSearch Kind = "search"
	KindChat   Kind = "chat"
	KindTool   Kind = "tool"
)

// Error is a tagged pipeline error. Callers decide how to surface it; the
// engine never converts failures into answer text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rag: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errOf(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
