package adapter

import "context"

// Generator is a stateless text-generation backend. Each call is an
// independent single-turn transaction: the interface deliberately has no
// history parameter, so adversarial content fetched from the platform
// cannot accumulate influence across calls.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
