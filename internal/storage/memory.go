package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
)

// MemoryStore is a map-backed store for tests and dry runs. It honors the
// same overwrite and notification semantics as the durable backends.
type MemoryStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]*Object
	hooks   []NotifyFunc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:  bucket,
		objects: make(map[string]*Object),
	}
}

// OnCreate registers a create-notification hook.
func (s *MemoryStore) OnCreate(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	obj := &Object{Key: key, Data: cp, Metadata: metadata, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.objects[key] = obj
	hooks := make([]NotifyFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	ev := event.ObjectCreated{Bucket: s.bucket, Key: key, OccurredAt: obj.CreatedAt}
	for _, fn := range hooks {
		fn(ev)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
