package smbcore

import (
	"bytes"
	"context"
	"io"
	"os"
)

// MaxRead is the largest single pread issued against the share, matching
// the bounded SMB max-I/O size observed in practice (§1, §4.H).
const MaxRead = 8 << 20

// File is the §4.H getFile() result: a metadata snapshot plus lazy-read
// accessors over the underlying entry.
type File struct {
	handle       FileHandle
	Name         string
	Size         int64
	Type         string
	LastModified int64 // epoch ms
}

// GetFile implements §4.H getFile(): stat for size/time, infer MIME from
// the extension table.
func (f FileHandle) GetFile(ctx context.Context) (File, error) {
	rec, err := f.broker.stat(ctx, f.endpoint, f.path)
	if err != nil {
		return File{}, err
	}
	if rec.Kind != KindFile {
		return File{}, typeMismatchError("getFile", f.path.String())
	}
	return File{
		handle:       f,
		Name:         f.Name(),
		Size:         rec.Size,
		Type:         mimeForName(f.Name()),
		LastModified: rec.ModifiedTime,
	}, nil
}

// ArrayBuffer reads the whole file as a single buffer, internally chunked
// at MaxRead and issued sequentially from offset 0 (§4.H).
func (f File) ArrayBuffer(ctx context.Context) ([]byte, error) {
	return f.readRange(ctx, 0, f.Size)
}

// Text decodes ArrayBuffer as UTF-8 (§4.H).
func (f File) Text(ctx context.Context) (string, error) {
	b, err := f.ArrayBuffer(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Slice returns a Blob view over [start, end) of the file, clamping to
// [0, Size) and resolving negative indices from the end (§4.H).
func (f File) Slice(start, end int64) Blob {
	start, end = clampRange(start, end, f.Size)
	return Blob{handle: f.handle, start: start, end: end, Type: f.Type}
}

// Stream returns a finite, non-restartable reader over the whole file
// (§4.H); closing the returned ReadCloser releases the underlying OpenFile.
// Cancelling ctx makes further reads fail but does not close or release it.
func (f File) Stream(ctx context.Context) (io.ReadCloser, error) {
	return f.handle.openReadStream(ctx, 0, f.Size)
}

func (f File) readRange(ctx context.Context, start, end int64) ([]byte, error) {
	rc, err := f.handle.openReadStream(ctx, start, end)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	buf.Grow(int(end - start))
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, ioError("read", f.handle.path.String(), err)
	}
	return buf.Bytes(), nil
}

// Blob is a slice view produced by File.Slice (§4.H): reads independently
// via the same chunked path, starting at its own start offset.
type Blob struct {
	handle     FileHandle
	start, end int64
	Type       string
}

func (b Blob) Size() int64 { return b.end - b.start }

func (b Blob) ArrayBuffer(ctx context.Context) ([]byte, error) {
	rc, err := b.handle.openReadStream(ctx, b.start, b.end)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	buf.Grow(int(b.end - b.start))
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, ioError("read", b.handle.path.String(), err)
	}
	return buf.Bytes(), nil
}

func (b Blob) Text(ctx context.Context) (string, error) {
	buf, err := b.ArrayBuffer(ctx)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// clampRange resolves start/end (possibly negative, counting from the end)
// against size, per §4.H slice semantics.
func clampRange(start, end, size int64) (int64, int64) {
	if start < 0 {
		start += size
	}
	if end < 0 {
		end += size
	}
	if start < 0 {
		start = 0
	}
	if end > size {
		end = size
	}
	if start > size {
		start = size
	}
	if end < start {
		end = start
	}
	return start, end
}

// fileReadStream implements io.ReadCloser over a chunked pread range,
// releasing the broker-acquired SmbContext and open file on Close.
type fileReadStream struct {
	ctx     context.Context
	sh      smbHandle
	release func()
	pos     int64
	end     int64
}

func (f FileHandle) openReadStream(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	sh, release, err := f.broker.openFile(ctx, f.endpoint, f.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if start > 0 {
		if _, err := sh.Seek(ctx, start, io.SeekStart); err != nil {
			release()
			return nil, ioError("read", f.path.String(), err)
		}
	}
	return &fileReadStream{ctx: ctx, sh: sh, release: release, pos: start, end: end}, nil
}

func (s *fileReadStream) Read(p []byte) (int, error) {
	if s.pos >= s.end {
		return 0, io.EOF
	}
	if remaining := s.end - s.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if len(p) > MaxRead {
		p = p[:MaxRead]
	}
	n, err := s.sh.Read(s.ctx, p)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *fileReadStream) Close() error {
	defer s.release()
	return s.sh.Close(s.ctx)
}
