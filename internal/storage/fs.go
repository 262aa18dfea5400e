package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
)

// FSStore keeps objects as files under a root directory, mirroring the key
// layout (uploads/, textract-output/, bedrock-output/). Metadata rides in a
// sidecar file so the artifact itself stays inspectable with plain tools.
type FSStore struct {
	bucket string
	root   string

	mu    sync.RWMutex
	hooks []NotifyFunc
}

const metadataSuffix = ".meta.json"

// NewFSStore creates the root directory if needed.
func NewFSStore(bucket, root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FSStore{bucket: bucket, root: root}, nil
}

// Root returns the base directory, for wiring the watcher.
func (s *FSStore) Root() string { return s.root }

// OnCreate registers a create-notification hook.
func (s *FSStore) OnCreate(fn NotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating prefix directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		if err := os.WriteFile(full+metadataSuffix, b, 0644); err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
	}

	s.mu.RLock()
	hooks := make([]NotifyFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	ev := event.ObjectCreated{Bucket: s.bucket, Key: key, OccurredAt: time.Now().UTC()}
	for _, fn := range hooks {
		fn(ev)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("stat object: %w", err)
	}
	obj := &Object{Key: key, Data: data, CreatedAt: info.ModTime()}
	if mb, err := os.ReadFile(full + metadataSuffix); err == nil {
		md := map[string]string{}
		if err := json.Unmarshal(mb, &md); err == nil {
			obj.Metadata = md
		}
	}
	return obj, nil
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, metadataSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
