package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"privmsg/internal/domain"
)

const (
	metadataBucket      = "metadata"
	versionKey          = "version"
	conversationsBucket = "conversations"
	recordsBucket       = "records"
	idIndexBucket       = "ids"

	// MessageStorageVersion is the bbolt layout version.
	MessageStorageVersion = 0

	// MessagesFilename is the message database inside the home directory.
	MessagesFilename = "messages.db"
)

// ErrMessageNotFound is returned by MarkRead for unknown message ids.
var ErrMessageNotFound = errors.New("message not found")

// BoltMessageStore persists conversation messages in a bbolt database.
//
// Each conversation has its own bucket holding records keyed by an increasing
// sequence number, plus an index from message id to sequence key.
type BoltMessageStore struct {
	db *bolt.DB
}

// OpenBoltMessageStore opens or creates the database at path.
func OpenBoltMessageStore(path string) (*BoltMessageStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open message db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(conversationsBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != MessageStorageVersion {
				return fmt.Errorf("message storage: incompatible version: %x", b)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{MessageStorageVersion})
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltMessageStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltMessageStore) Close() error { return s.db.Close() }

// AppendMessage stores rec at the end of its conversation. Appending an id that
// is already present is a no-op.
func (s *BoltMessageStore) AppendMessage(rec domain.MessageRecord) error {
	if rec.ID == "" || rec.ConversationID == "" {
		return errors.New("message record needs id and conversation id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		conv, err := tx.Bucket([]byte(conversationsBucket)).CreateBucketIfNotExists([]byte(rec.ConversationID))
		if err != nil {
			return err
		}
		records, err := conv.CreateBucketIfNotExists([]byte(recordsBucket))
		if err != nil {
			return err
		}
		ids, err := conv.CreateBucketIfNotExists([]byte(idIndexBucket))
		if err != nil {
			return err
		}
		if ids.Get([]byte(rec.ID)) != nil {
			return nil
		}
		seq, err := records.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := records.Put(key[:], raw); err != nil {
			return err
		}
		return ids.Put([]byte(rec.ID), key[:])
	})
}

// ListMessages returns the conversation's records in append order.
func (s *BoltMessageStore) ListMessages(convID domain.ConversationID) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records := recordsOf(tx, convID)
		if records == nil {
			return nil
		}
		return records.ForEach(func(_, v []byte) error {
			var rec domain.MessageRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// MarkRead sets the read time of message id.
func (s *BoltMessageStore) MarkRead(convID domain.ConversationID, id string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		conv := tx.Bucket([]byte(conversationsBucket)).Bucket([]byte(convID))
		if conv == nil {
			return ErrMessageNotFound
		}
		key := conv.Bucket([]byte(idIndexBucket)).Get([]byte(id))
		if key == nil {
			return ErrMessageNotFound
		}
		records := conv.Bucket([]byte(recordsBucket))
		var rec domain.MessageRecord
		if err := json.Unmarshal(records.Get(key), &rec); err != nil {
			return err
		}
		if rec.ReadAt != nil {
			return nil
		}
		t := at.UTC()
		rec.ReadAt = &t
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return records.Put(append([]byte(nil), key...), raw)
	})
}

func recordsOf(tx *bolt.Tx, convID domain.ConversationID) *bolt.Bucket {
	conv := tx.Bucket([]byte(conversationsBucket)).Bucket([]byte(convID))
	if conv == nil {
		return nil
	}
	return conv.Bucket([]byte(recordsBucket))
}

// Compile-time assertion that BoltMessageStore implements domain.MessageStore.
var _ domain.MessageStore = (*BoltMessageStore)(nil)
