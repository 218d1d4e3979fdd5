package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/model"
)

// Local persists agent state as a single JSON file and the content log as
// append-only JSONL next to it.
type Local struct {
	statePath   string
	contentPath string
}

type LocalOption func(*Local)

// WithContentLog overrides the content log path.
func WithContentLog(path string) LocalOption {
	return func(l *Local) {
		l.contentPath = path
	}
}

func NewLocal(statePath string, opts ...LocalOption) (*Local, error) {
	if statePath == "" {
		return nil, goerr.New("state path is required")
	}

	l := &Local{
		statePath:   statePath,
		contentPath: filepath.Join(filepath.Dir(statePath), "content.jsonl"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create state directory", goerr.V("path", statePath))
	}

	return l, nil
}

func (l *Local) LoadState(ctx context.Context) (*model.AgentState, error) {
	data, err := os.ReadFile(l.statePath)
	if os.IsNotExist(err) {
		return model.NewAgentState(), nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read state file", goerr.V("path", l.statePath))
	}

	var state model.AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		// Fail closed: a silent reset would erase dedup history and risk
		// duplicate engagement.
		return nil, goerr.Wrap(model.ErrStateCorrupted, err.Error(), goerr.V("path", l.statePath))
	}
	state.Normalize()

	return &state, nil
}

// SaveState writes to a temp file in the same directory and renames it over
// the state file, so a crash mid-write leaves the previous state intact.
func (l *Local) SaveState(ctx context.Context, state *model.AgentState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal state")
	}

	dir := filepath.Dir(l.statePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.statePath)+".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp state file", goerr.V("dir", dir))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to write temp state file", goerr.V("path", tmpPath))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to close temp state file", goerr.V("path", tmpPath))
	}

	if err := os.Rename(tmpPath, l.statePath); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to replace state file", goerr.V("path", l.statePath))
	}

	return nil
}

func (l *Local) AppendContent(ctx context.Context, entry *model.ContentLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal content log entry")
	}

	f, err := os.OpenFile(l.contentPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open content log", goerr.V("path", l.contentPath))
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return goerr.Wrap(err, "failed to append content log", goerr.V("path", l.contentPath))
	}
	return nil
}
