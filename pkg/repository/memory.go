package repository

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/model"
)

// Memory is an in-memory repository for tests. It round-trips state through
// JSON so tests exercise the same (de)serialization as the file store.
type Memory struct {
	state   []byte
	Content []*model.ContentLogEntry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LoadState(ctx context.Context) (*model.AgentState, error) {
	if m.state == nil {
		return model.NewAgentState(), nil
	}

	var state model.AgentState
	if err := json.Unmarshal(m.state, &state); err != nil {
		return nil, goerr.Wrap(model.ErrStateCorrupted, err.Error())
	}
	state.Normalize()
	return &state, nil
}

func (m *Memory) SaveState(ctx context.Context, state *model.AgentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal state")
	}
	m.state = data
	return nil
}

func (m *Memory) AppendContent(ctx context.Context, entry *model.ContentLogEntry) error {
	m.Content = append(m.Content, entry)
	return nil
}
