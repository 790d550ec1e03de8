// Package resume provides durable storage for chunked-upload resume state
package resume

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/example/uploadkit/internal/models"
)

const sessionBucket = "sessions"

// Store persists upload sessions keyed by upload ID. The record for an
// upload ID has at most one writer at any instant: the file's active engine.
type Store interface {
	// Save persists the session, overwriting any previous state
	Save(session *models.UploadSession) error

	// Load returns the session for the upload ID, and whether one exists
	Load(uploadID string) (*models.UploadSession, bool, error)

	// Delete removes the session for the upload ID; missing sessions are not an error
	Delete(uploadID string) error
}

// BoltStore is a Store backed by a bbolt database file, surviving restarts
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the resume database at the given path
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open resume database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save persists the session
func (s *BoltStore) Save(session *models.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(session.UploadID), data)
	})
}

// Load returns the session for the upload ID
func (s *BoltStore) Load(uploadID string) (*models.UploadSession, bool, error) {
	var session *models.UploadSession

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(uploadID))
		if data == nil {
			return nil
		}

		session = &models.UploadSession{}
		return json.Unmarshal(data, session)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", uploadID, err)
	}

	return session, session != nil, nil
}

// Delete removes the session for the upload ID
func (s *BoltStore) Delete(uploadID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(uploadID))
	})
}

// MemoryStore is an in-memory Store for tests and non-resumable configurations
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.UploadSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.UploadSession),
	}
}

// Save persists the session
func (s *MemoryStore) Save(session *models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UploadID] = *session
	return nil
}

// Load returns the session for the upload ID
func (s *MemoryStore) Load(uploadID string) (*models.UploadSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[uploadID]
	if !ok {
		return nil, false, nil
	}
	copied := session
	return &copied, true, nil
}

// Delete removes the session for the upload ID
func (s *MemoryStore) Delete(uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uploadID)
	return nil
}
