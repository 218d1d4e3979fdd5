package repository

import (
	"context"

	"github.com/m-mizutani/moltbeat/pkg/model"
)

// Repository defines the interface for agent state persistence and the
// append-only generated-content log.
type Repository interface {
	// LoadState reads the persisted agent state. A missing state file
	// yields a fresh empty state (first run); an unreadable or malformed
	// file is an error, never a silent reset.
	LoadState(ctx context.Context) (*model.AgentState, error)

	// SaveState persists the state atomically: a partially written state
	// must never replace the previous one.
	SaveState(ctx context.Context, state *model.AgentState) error

	// AppendContent appends one record to the generated-content log.
	AppendContent(ctx context.Context, entry *model.ContentLogEntry) error
}
