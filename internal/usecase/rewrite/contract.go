package rewrite

import "context"

// Generator produces a JSON object from a system and user prompt.
type Generator interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}
