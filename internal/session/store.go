package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fileutil "pixora/internal/file"
)

// Store abstracts persistence for session state.
type Store interface {
	Save(ctx context.Context, s State) error
	Load(ctx context.Context) ([]State, error)
}

// fileStore keeps one state.json per session under dataDir/sessions.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) Store { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) sessionDir(id string) string {
	return filepath.Join(s.dataDir, "sessions", id)
}

func (s *fileStore) statePath(id string) string {
	return filepath.Join(s.sessionDir(id), "state.json")
}

func (s *fileStore) Save(_ context.Context, st State) error {
	if err := fileutil.EnsureDir(s.sessionDir(st.ID)); err != nil {
		return fmt.Errorf("ensure session dir: %w", err)
	}
	return fileutil.WriteJSONAtomic(s.statePath(st.ID), st) //nolint:wrapcheck
}

func (s *fileStore) Load(_ context.Context) ([]State, error) {
	root := filepath.Join(s.dataDir, "sessions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	states := make([]State, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(s.statePath(e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var st State
		if err := json.Unmarshal(b, &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

// memoryStore discards everything; used when no data dir is configured.
type memoryStore struct{}

func (memoryStore) Save(context.Context, State) error     { return nil }
func (memoryStore) Load(context.Context) ([]State, error) { return nil, nil }
