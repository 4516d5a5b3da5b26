package smbcore

import (
	"context"
	"io/fs"
	"os"
	"time"
)

// BrokerOptions configures the Request Broker (§4.D).
type BrokerOptions struct {
	Retry         RetryPolicy
	Logger        Logger
	StatCacheSize int           // default 256
	StatCacheTTL  time.Duration // default 2s
}

func (o BrokerOptions) withDefaults() BrokerOptions {
	if o.Retry.MaxAttempts == 0 {
		o.Retry = defaultRetryPolicy
	}
	if o.StatCacheSize <= 0 {
		o.StatCacheSize = 256
	}
	if o.StatCacheTTL <= 0 {
		o.StatCacheTTL = 2 * time.Second
	}
	return o
}

// Broker is the single choke point every Handle operation passes through:
// it acquires the Endpoint's pooled SmbContext, submits the call to that
// context's driver, retries transient failures, and releases the context
// (§4.D). Handles never talk to the Pool or a driver directly.
type Broker struct {
	pool  *Pool
	opts  BrokerOptions
	stats *statCache
}

// NewBroker builds a Broker over pool.
func NewBroker(pool *Pool, opts BrokerOptions) *Broker {
	opts = opts.withDefaults()
	return &Broker{
		pool:  pool,
		opts:  opts,
		stats: newStatCache(opts.StatCacheSize, opts.StatCacheTTL),
	}
}

// withContext acquires ep's SmbContext, runs fn against it with retry, and
// always releases the context back to the pool.
func (b *Broker) withContext(ctx context.Context, op string, ep Endpoint, fn func(c *SmbContext) (any, error)) (any, error) {
	var result any
	err := withRetry(ctx, b.opts.Retry, b.opts.Logger, op, func() error {
		c, err := b.pool.Acquire(ctx, ep)
		if err != nil {
			return err
		}
		defer b.pool.Release(c)

		v, err := fn(c)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (b *Broker) stat(ctx context.Context, ep Endpoint, path PathRef) (StatRecord, error) {
	if rec, ok := b.stats.get(ep, path); ok {
		return rec, nil
	}
	v, err := b.withContext(ctx, "stat", ep, func(c *SmbContext) (any, error) {
		return c.run(ctx, "stat", path.String(), func() (any, error) {
			info, err := c.share.Stat(path.smbPath())
			if err != nil {
				return nil, err
			}
			return toStatRecord(info), nil
		})
	})
	if err != nil {
		return StatRecord{}, err
	}
	rec := v.(StatRecord)
	b.stats.put(ep, path, rec)
	return rec, nil
}

func (b *Broker) mkdir(ctx context.Context, ep Endpoint, path PathRef) error {
	_, err := b.withContext(ctx, "mkdir", ep, func(c *SmbContext) (any, error) {
		return c.run(ctx, "mkdir", path.String(), func() (any, error) {
			return nil, c.share.Mkdir(path.smbPath(), 0o755)
		})
	})
	if err == nil {
		b.stats.invalidate(ep, path)
	}
	return err
}

// invalidateStat drops any cached stat for path; WritableStream calls this
// after a successful close since a write changes size/mtime without going
// through mkdir/remove/rename.
func (b *Broker) invalidateStat(ep Endpoint, path PathRef) {
	b.stats.invalidate(ep, path)
}

func (b *Broker) remove(ctx context.Context, ep Endpoint, path PathRef, recursive bool) error {
	_, err := b.withContext(ctx, "remove", ep, func(c *SmbContext) (any, error) {
		return c.run(ctx, "remove", path.String(), func() (any, error) {
			if recursive {
				return nil, c.share.RemoveAll(path.smbPath())
			}
			return nil, c.share.Remove(path.smbPath())
		})
	})
	if err == nil {
		b.stats.invalidate(ep, path)
	}
	return err
}

func (b *Broker) rename(ctx context.Context, ep Endpoint, from, to PathRef) error {
	_, err := b.withContext(ctx, "rename", ep, func(c *SmbContext) (any, error) {
		return c.run(ctx, "rename", from.String(), func() (any, error) {
			return nil, c.share.Rename(from.smbPath(), to.smbPath())
		})
	})
	if err == nil {
		b.stats.invalidate(ep, from)
		b.stats.invalidate(ep, to)
	}
	return err
}

// dirEntryInfo is the shape readDirOnce returns per child, enough to build a
// Handle without a second round trip for the common case.
type dirEntryInfo struct {
	Name string
	Kind Kind
}

// readDirOnce lists the immediate children of path (§4.H: directory
// iteration is a fresh snapshot every call, never a stateful cursor left
// open server-side).
func (b *Broker) readDirOnce(ctx context.Context, ep Endpoint, path PathRef) ([]dirEntryInfo, error) {
	v, err := b.withContext(ctx, "readDir", ep, func(c *SmbContext) (any, error) {
		return c.run(ctx, "readDir", path.String(), func() (any, error) {
			f, err := c.share.Open(path.smbPath())
			if err != nil {
				return nil, err
			}
			defer f.Close()

			infos, err := f.Readdir(-1)
			if err != nil {
				return nil, err
			}
			entries := make([]dirEntryInfo, 0, len(infos))
			for _, info := range infos {
				if info.Name() == "." || info.Name() == ".." {
					continue
				}
				entries = append(entries, dirEntryInfo{
					Name: info.Name(),
					Kind: fileKindFromMode(info.Mode()),
				})
			}
			return entries, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]dirEntryInfo), nil
}

// smbHandle is the open-file surface the read/write paths need from a
// *smb2.File, isolated so file_read.go and writable.go never import
// cloudsoda/go-smb2 directly. Every call takes the caller's context so a
// cancelled read/write/seek does not block behind one already queued on the
// driver.
type smbHandle interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
	Seek(ctx context.Context, offset int64, whence int) (int64, error)
	Truncate(ctx context.Context, size int64) error
	Close(ctx context.Context) error
	Stat(ctx context.Context) (fs.FileInfo, error)
}

// openFile opens path with the given os.O_* flags on ep's share, returning
// an smbHandle bound to the owning context's driver and a release func that
// returns that context to the pool — the caller (FileHandle /
// WritableStream) is responsible for closing the handle and then calling
// release, since the handle is held open across more than one driver
// submission.
func (b *Broker) openFile(ctx context.Context, ep Endpoint, path PathRef, flag int, perm os.FileMode) (smbHandle, func(), error) {
	c, err := b.pool.Acquire(ctx, ep)
	if err != nil {
		return nil, nil, err
	}
	release := func() { b.pool.Release(c) }

	v, err := c.run(ctx, "open", path.String(), func() (any, error) {
		return c.share.OpenFile(path.smbPath(), flag, perm)
	})
	if err != nil {
		release()
		return nil, nil, err
	}

	file := v.(smbFile)
	return &driverBoundFile{c: c, f: file}, release, nil
}

// driverBoundFile routes every I/O call through the owning SmbContext's
// driver, so a read or write on a handle never races the context's other
// operations.
type driverBoundFile struct {
	c *SmbContext
	f smbFile
}

func (d *driverBoundFile) Read(ctx context.Context, p []byte) (int, error) {
	v, err := d.c.drv.submit(ctx, func() (any, error) { return d.f.Read(p) })
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (d *driverBoundFile) Write(ctx context.Context, p []byte) (int, error) {
	v, err := d.c.drv.submit(ctx, func() (any, error) { return d.f.Write(p) })
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (d *driverBoundFile) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	v, err := d.c.drv.submit(ctx, func() (any, error) { return d.f.Seek(offset, whence) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (d *driverBoundFile) Truncate(ctx context.Context, size int64) error {
	_, err := d.c.drv.submit(ctx, func() (any, error) { return nil, d.f.Truncate(size) })
	return err
}

func (d *driverBoundFile) Close(ctx context.Context) error {
	_, err := d.c.drv.submit(ctx, func() (any, error) { return nil, d.f.Close() })
	return err
}

func (d *driverBoundFile) Stat(ctx context.Context) (fs.FileInfo, error) {
	v, err := d.c.drv.submit(ctx, func() (any, error) { return d.f.Stat() })
	if err != nil {
		return nil, err
	}
	return v.(fs.FileInfo), nil
}
