package smbcore

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WatchAction classifies a single change-watch event (§4.J).
type WatchAction int

const (
	WatchCreate WatchAction = iota
	WatchWrite
	WatchRemove
)

func (a WatchAction) String() string {
	switch a {
	case WatchCreate:
		return "create"
	case WatchRemove:
		return "remove"
	default:
		return "write"
	}
}

// WatchEvent is delivered to a Watch callback: Path is relative to the
// watched directory, using '/' separators (§4.J).
type WatchEvent struct {
	Path   string
	Action WatchAction
}

// WatchOptions configures the polling Watcher.
type WatchOptions struct {
	// PollInterval between subtree snapshots; default 2s.
	PollInterval time.Duration
	// SnapshotCacheSize bounds the prior-snapshot LRU; default 4096 paths.
	SnapshotCacheSize int
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.SnapshotCacheSize <= 0 {
		o.SnapshotCacheSize = 4096
	}
	return o
}

// WatchSubscription is the handle returned by Watch (§4.J, §3): Cancel stops
// emission, Wait blocks until the last in-flight callback invocation
// returns.
type WatchSubscription struct {
	ID     uuid.UUID
	cancel context.CancelFunc
	g      *errgroup.Group
}

// Cancel stops further emission; in-flight callbacks already started are
// allowed to finish.
func (w *WatchSubscription) Cancel() { w.cancel() }

// Wait resolves after Cancel once the last in-flight callback returns.
func (w *WatchSubscription) Wait() error { return w.g.Wait() }

// Watch implements §4.J: the Driver (here, a dedicated poll goroutine)
// periodically lists the watched subtree, diffs against the prior
// snapshot, and emits {path, action} to callback. Multiple write events may
// collapse or repeat; callers should treat write as zero-or-more between
// create and remove, exactly as specified.
func (d DirectoryHandle) Watch(ctx context.Context, callback func(WatchEvent), opts WatchOptions) (*WatchSubscription, error) {
	opts = opts.withDefaults()
	snapshots, err := lru.New[string, uint64](opts.SnapshotCacheSize)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(watchCtx)

	sub := &WatchSubscription{ID: uuid.New(), cancel: cancel, g: g}

	g.Go(func() error {
		return runWatchLoop(gctx, d, opts, snapshots, callback)
	})

	return sub, nil
}

func runWatchLoop(ctx context.Context, d DirectoryHandle, opts WatchOptions, snapshots *lru.Cache[string, uint64], callback func(WatchEvent)) error {
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	seen := make(map[string]bool)
	// Prime the snapshot without emitting synthetic creates for entries
	// that already existed before Watch was called.
	if err := snapshotSubtree(ctx, d, "", snapshots, seen, nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next := make(map[string]bool)
			if err := snapshotSubtree(ctx, d, "", snapshots, next, callback); err != nil {
				return err
			}
			for rel := range seen {
				if !next[rel] {
					snapshots.Remove(rel)
					callback(WatchEvent{Path: rel, Action: WatchRemove})
				}
			}
			seen = next
		}
	}
}

// snapshotSubtree walks one directory level, recursing into subdirectories,
// fingerprinting each file and emitting create/write events by comparing
// against the snapshots cache; present marks every path still seen this
// pass so the caller can detect removals by set difference.
func snapshotSubtree(ctx context.Context, dir DirectoryHandle, relPrefix string, snapshots *lru.Cache[string, uint64], present map[string]bool, callback func(WatchEvent)) error {
	it := dir.Entries(ctx)
	for {
		entry, ok := it.Next(ctx)
		if !ok {
			break
		}
		rel := entry.Name
		if relPrefix != "" {
			rel = relPrefix + "/" + entry.Name
		}
		present[rel] = true

		if entry.Kind == KindDirectory {
			child, err := dir.GetDirectoryHandle(ctx, entry.Name, CreateOptions{})
			if err != nil {
				continue
			}
			if err := snapshotSubtree(ctx, child, rel, snapshots, present, callback); err != nil {
				return err
			}
			continue
		}

		childPath, err := dir.path.Join(entry.Name)
		if err != nil {
			continue
		}
		// Drop any cached stat first so a change made by another client
		// within the stat cache's TTL is still observed on this pass.
		dir.broker.invalidateStat(dir.endpoint, childPath)
		rec, err := dir.broker.stat(ctx, dir.endpoint, childPath)
		if err != nil {
			continue
		}
		fp := fingerprint(rec)

		prev, existed := snapshots.Get(rel)
		snapshots.Add(rel, fp)
		if callback == nil {
			continue
		}
		if !existed {
			callback(WatchEvent{Path: rel, Action: WatchCreate})
		} else if prev != fp {
			callback(WatchEvent{Path: rel, Action: WatchWrite})
		}
	}
	return it.Err()
}

// fingerprint cheaply hashes the fields of a StatRecord that change on
// write, avoiding a byte-for-byte content comparison (which this bridge
// never does — no in-process caching of file contents).
func fingerprint(rec StatRecord) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.Size))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(rec.ModifiedTime))
	return xxhash.Sum64(buf[:])
}
