package session

import (
	"fmt"
	"path/filepath"

	"github.com/jcode-dev/jcoded/pkg/storage"
)

// Store persists sessions to individual JSON files under Dir, one file
// per session id, written atomically via pkg/storage so a crash mid-save
// never corrupts a session's history.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Save writes sess's current state to disk.
func (s *Store) Save(sess *Session) error {
	snapshot := sess.snapshotForPersist()
	if err := storage.AtomicWriteJSON(s.path(sess.ID), snapshot); err != nil {
		return fmt.Errorf("session store: save %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a previously saved session back from disk.
func (s *Store) Load(id string) (*Session, error) {
	var p persistedSession
	if err := storage.ReadJSON(s.path(id), &p); err != nil {
		return nil, fmt.Errorf("session store: load %s: %w", id, err)
	}
	sess := &Session{}
	sess.restoreFromPersisted(p)
	sess.ID = id
	return sess, nil
}
