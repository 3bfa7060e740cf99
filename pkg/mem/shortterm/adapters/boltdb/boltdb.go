// Package boltdb provides a BoltDB-backed implementation of the
// shortterm.Store interface. Each session gets its own bucket; keys are
// monotonically increasing sequence numbers, so bucket order is insertion
// order.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/procagent/procagent/pkg/mem/shortterm"
	"github.com/procagent/procagent/pkg/session"
)

// rootBucket holds one nested bucket per session.
var rootBucket = []byte("conversation_messages")

// BoltStore implements the shortterm.Store interface using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltStore with the given database handle.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create root bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Open opens the BoltDB file at path and returns a ready store.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewBoltStore(db)
}

// Append adds a message to the session log.
func (s *BoltStore) Append(ctx context.Context, msg shortterm.Message) (string, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return "", session.ErrMissingSessionContext
	}

	if msg.SessionID == "" {
		msg.SessionID = sessCtx.SessionID
	} else if msg.SessionID != sessCtx.SessionID {
		return "", fmt.Errorf("message session ID must match context session ID")
	}

	if msg.UserID == "" {
		msg.UserID = sessCtx.UserID
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		bucket, err := root.CreateBucketIfNotExists([]byte(sessCtx.SessionID))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, value)
	})
	if err != nil {
		return "", err
	}

	return msg.ID, nil
}

// Recent returns up to limit of the most recent messages, oldest first.
func (s *BoltStore) Recent(ctx context.Context, limit int) ([]shortterm.Message, error) {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return nil, session.ErrMissingSessionContext
	}

	if limit <= 0 {
		limit = 10
	}

	var messages []shortterm.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rootBucket).Bucket([]byte(sessCtx.SessionID))
		if bucket == nil {
			return nil
		}

		// Walk backwards from the newest key, then reverse
		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil && len(messages) < limit; k, v = cursor.Prev() {
			var msg shortterm.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clear removes all messages for the session.
func (s *BoltStore) Clear(ctx context.Context) error {
	sessCtx, ok := session.GetSessionContext(ctx)
	if !ok {
		return session.ErrMissingSessionContext
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if root.Bucket([]byte(sessCtx.SessionID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(sessCtx.SessionID))
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
