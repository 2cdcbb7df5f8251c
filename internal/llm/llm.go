package llm

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("llm unavailable")

// Completer submits one instructional prompt and returns the raw text
// completion. Callers own prompt construction and output validation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
