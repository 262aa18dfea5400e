package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
)

// WatchConfig configures a directory watcher over an FSStore root. The
// watcher covers uploads dropped in by external tools (scp, a synced
// folder); writes going through FSStore.Put already notify via OnCreate.
type WatchConfig struct {
	Store       *FSStore
	WatchPrefix string        // only keys under this prefix produce events
	InitialScan bool          // if true, walk the prefix and emit existing files
	Debounce    time.Duration // coalesce rapid create/write bursts
}

// StartWatcher converts filesystem creates under the watch prefix into
// ObjectCreated events published on the bus. It runs until ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, bus event.Bus, logger *slog.Logger) error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	root := filepath.Join(cfg.Store.Root(), filepath.FromSlash(strings.TrimSuffix(cfg.WatchPrefix, "/")))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher.create.failed", "error", err)
		return err
	}

	keyFor := func(path string) (string, bool) {
		rel, err := filepath.Rel(cfg.Store.Root(), path)
		if err != nil {
			return "", false
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, cfg.WatchPrefix) || strings.HasSuffix(key, metadataSuffix) {
			return "", false
		}
		return key, true
	}

	publish := func(path string) {
		key, ok := keyFor(path)
		if !ok {
			return
		}
		ev := event.ObjectCreated{Bucket: cfg.Store.bucket, Key: key, OccurredAt: time.Now().UTC()}
		if err := bus.Publish(ctx, ev); err != nil {
			logger.Error("watcher.publish.failed", "key", key, "error", err)
		}
	}

	addDir := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan {
				publish(path)
			}
			return nil
		})
	}
	if err := addDir(root); err != nil {
		logger.Error("watcher.add_root.failed", "root", root, "error", err)
		_ = w.Close()
		return err
	}

	go func() {
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher.close.failed", "error", err)
			}
		}()

		pending := map[string]struct{}{}
		timer := time.NewTimer(cfg.Debounce)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					// Track new subdirectories under the watched prefix.
					if info, statErr := os.Stat(e.Name); statErr == nil && info.IsDir() {
						if err := addDir(e.Name); err != nil {
							logger.Warn("watcher.add_dir.failed", "dir", e.Name, "error", err)
						}
						continue
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					pending[e.Name] = struct{}{}
					timer.Reset(cfg.Debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher.error", "error", err)
			case <-timer.C:
				for p := range pending {
					publish(p)
					delete(pending, p)
				}
			}
		}
	}()

	logger.Info("watcher.started", "root", root, "prefix", cfg.WatchPrefix)
	return nil
}
