package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pencroft/chat-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

const errLoggerKey = "err"

// BoltDB is the local transcript store owned by the UI layer. It mirrors the chat list and keeps
// the append-only message log the session writes into; the authoritative log lives in the backend
// and the mirror is refreshed from it on list and detail loads.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates a BoltDB instance backed by the file at path. The database file is created
// with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("chats"))
		return err
	})

	return BoltDB{db: db}, err
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(chatID string) []byte {
	return []byte(fmt.Sprintf("chat-%s", chatID))
}

// messageKey keeps messages iterable in append order.
func messageKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// Chats retrieves all mirrored chat records.
func (b BoltDB) Chats(context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte("chats"))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var chat models.Chat
			if err := json.Unmarshal(v, &chat); err != nil {
				return fmt.Errorf("failed to unmarshal chat: %w", err)
			}
			chats = append(chats, chat)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// PutChat inserts or replaces a mirrored chat record and makes sure its message bucket exists.
func (b BoltDB) PutChat(_ context.Context, chat models.Chat) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte("chats"))
		if bkt == nil {
			return nil
		}

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(chat.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(chat)
		if err != nil {
			return fmt.Errorf("failed to marshal chat: %w", err)
		}

		return bkt.Put([]byte(chat.ID), v)
	})
}

// DeleteChat removes a mirrored chat and its message log.
func (b BoltDB) DeleteChat(_ context.Context, chatID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(messageBucketName(chatID)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("failed to delete message bucket: %w", err)
		}

		bkt := tx.Bucket([]byte("chats"))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(chatID))
	})
}

// Messages retrieves the mirrored message log of a chat in append order.
func (b BoltDB) Messages(_ context.Context, chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(chatID))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AppendMessage appends one message to a chat's log. Messages are immutable once appended.
func (b BoltDB) AppendMessage(_ context.Context, chatID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(messageBucketName(chatID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bkt.Put(messageKey(seq), v)
	})
}

// ReplaceMessages swaps a chat's mirrored log for the authoritative one fetched from the backend.
func (b BoltDB) ReplaceMessages(_ context.Context, chatID string, messages []models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(messageBucketName(chatID)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("failed to delete message bucket: %w", err)
		}

		bkt, err := tx.CreateBucket(messageBucketName(chatID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		for _, message := range messages {
			seq, err := bkt.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get next sequence: %w", err)
			}

			v, err := json.Marshal(message)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}

			if err := bkt.Put(messageKey(seq), v); err != nil {
				return err
			}
		}
		return nil
	})
}
