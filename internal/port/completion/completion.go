// Package completion defines the text-completion port used for SQL generation.
package completion

import "context"

// Completer produces a single completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
