// Crash-recovery persistence for the chain snapshot, adapted from the
// upstream monitor's internal/validators/state.go atomic tmp-file-then-
// rename pattern. This is a recovery aid only: on restart the view has a
// last-good snapshot to serve from (subject to MAX_STALE) while the first
// live sync completes, rather than refusing all reads until sync finishes.
package chain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type snapshotFile struct {
	Version  int                `json:"version"`
	NetUID   int                `json:"net_uid"`
	SyncedAt time.Time          `json:"synced_at"`
	Keys     map[string]KeyInfo `json:"keys"`
}

type StateStore struct {
	path string
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Load() (*Snapshot, error) {
	if s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &Snapshot{NetUID: f.NetUID, Keys: f.Keys, SyncedAt: f.SyncedAt}, nil
}

func (s *StateStore) Save(snap *Snapshot) error {
	if s.path == "" || snap == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	f := snapshotFile{Version: 1, NetUID: snap.NetUID, SyncedAt: snap.SyncedAt, Keys: snap.Keys}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
