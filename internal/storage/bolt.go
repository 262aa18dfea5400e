package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
)

var objectsBucket = []byte("objects")

// BoltStore keeps every artifact in a single bbolt file. Keys are stored
// flat; the prefix convention is purely logical.
type BoltStore struct {
	bucket string
	db     *bolt.DB

	mu    sync.RWMutex
	hooks []NotifyFunc
}

type boltRecord struct {
	Data      []byte            `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewBoltStore opens (or creates) the store file at path.
func NewBoltStore(bucket, path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating objects bucket: %w", err)
	}
	return &BoltStore{bucket: bucket, db: db}, nil
}

// OnCreate registers a create-notification hook.
func (s *BoltStore) OnCreate(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *BoltStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := boltRecord{Data: data, Metadata: metadata, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding object: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).Put([]byte(key), b)
	})
	if err != nil {
		return fmt.Errorf("writing object: %w", err)
	}

	s.mu.RLock()
	hooks := make([]NotifyFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	ev := event.ObjectCreated{Bucket: s.bucket, Key: key, OccurredAt: rec.CreatedAt}
	for _, fn := range hooks {
		fn(ev)
	}
	return nil
}

func (s *BoltStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		rec = &boltRecord{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return &Object{Key: key, Data: rec.Data, Metadata: rec.Metadata, CreatedAt: rec.CreatedAt}, nil
}

func (s *BoltStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	return keys, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
