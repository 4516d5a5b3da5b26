package smbcore

import (
	"context"
	"io"
	"os"
	"sync"
)

// MaxWrite bounds a single pwrite issued against the share (§1, §4.I).
const MaxWrite = 8 << 20

// zeroFillChunk bounds a single zero-fill pwrite when extending past EOF or
// truncating up; kept well under MaxWrite so a zero-fill of a large sparse
// region doesn't hold one oversized buffer in memory.
const zeroFillChunk = 1 << 20

// WritableStream is the §4.I state machine: Open -> Locked/Closed/Aborted.
// All state is guarded by mu since Write/Seek/Truncate may be called
// through either the stream directly or its single-holder Writer.
type WritableStream struct {
	mu sync.Mutex

	handle  FileHandle
	sh      smbHandle
	release func()

	size    int64
	cursor  int64
	locked  bool
	closed  bool
	aborted bool
}

// CreateWritable implements createWritable (§4.I): keepExistingData=false
// truncates to empty; true preserves contents with size = current size,
// cursor starting at 0 either way.
func (f FileHandle) CreateWritable(ctx context.Context, opts WritableOptions) (*WritableStream, error) {
	flag := os.O_RDWR | os.O_CREATE
	if !opts.KeepExistingData {
		flag |= os.O_TRUNC
	}
	sh, release, err := f.broker.openFile(ctx, f.endpoint, f.path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	var size int64
	if opts.KeepExistingData {
		if info, err := sh.Stat(ctx); err == nil {
			size = info.Size()
		}
	}

	return &WritableStream{handle: f, sh: sh, release: release, size: size}, nil
}

func (ws *WritableStream) checkLive(op string) error {
	if ws.closed || ws.aborted {
		return invalidStateClosed(op)
	}
	return nil
}

// Write writes data at the stream's current cursor (§4.I effect of
// write(bytes, pos=cursor)).
func (ws *WritableStream) Write(ctx context.Context, data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.writeLocked(ctx, data, -1)
}

// WriteAt writes data at an explicit position, per the structured
// {type:'write', data, position} input form (§4.I).
func (ws *WritableStream) WriteAt(ctx context.Context, data []byte, pos int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.writeLocked(ctx, data, pos)
}

func (ws *WritableStream) writeLocked(ctx context.Context, data []byte, pos int64) error {
	if err := ws.checkLive("write"); err != nil {
		return err
	}
	if pos < 0 {
		pos = ws.cursor
	}

	if pos > ws.size {
		if err := ws.zeroFillLocked(ctx, ws.size, pos); err != nil {
			return err
		}
	} else if _, err := ws.sh.Seek(ctx, pos, io.SeekStart); err != nil {
		return ioError("write", ws.handle.path.String(), err)
	}

	written := int64(0)
	for written < int64(len(data)) {
		end := written + MaxWrite
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		n, err := ws.sh.Write(ctx, data[written:end])
		written += int64(n)
		if pos+written > ws.size {
			ws.size = pos + written
		}
		if err != nil {
			// Partial failure: size/cursor roll forward only past the
			// range actually committed (§4.I).
			ws.cursor = pos + written
			return ioError("write", ws.handle.path.String(), err)
		}
	}
	ws.cursor = pos + written
	return nil
}

// zeroFillLocked writes zero bytes across [from, to), advancing size as
// each chunk actually commits so a partial failure still leaves size
// correct for what was written (§4.I: seek-past-EOF zero-fill).
func (ws *WritableStream) zeroFillLocked(ctx context.Context, from, to int64) error {
	if _, err := ws.sh.Seek(ctx, from, io.SeekStart); err != nil {
		return ioError("write", ws.handle.path.String(), err)
	}
	remaining := to - from
	chunkSize := int64(zeroFillChunk)
	if remaining < chunkSize {
		chunkSize = remaining
	}
	zero := make([]byte, chunkSize)
	pos := from
	for remaining > 0 {
		n := int64(len(zero))
		if n > remaining {
			n = remaining
			zero = zero[:n]
		}
		written, err := ws.sh.Write(ctx, zero)
		pos += int64(written)
		if pos > ws.size {
			ws.size = pos
		}
		if err != nil {
			return ioError("write", ws.handle.path.String(), err)
		}
		remaining -= int64(written)
	}
	return nil
}

// Seek sets cursor without mutating the file; pos may exceed size (sparse
// intent, realized on the next write) (§4.I).
func (ws *WritableStream) Seek(ctx context.Context, pos int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.checkLive("seek"); err != nil {
		return err
	}
	ws.cursor = pos
	return nil
}

// Truncate sets size exactly, zero-filling [oldSize, n) and moving cursor to
// the new end when growing, and clamping cursor when n < cursor (§4.I).
func (ws *WritableStream) Truncate(ctx context.Context, n int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.checkLive("truncate"); err != nil {
		return err
	}
	if err := ws.sh.Truncate(ctx, n); err != nil {
		return ioError("truncate", ws.handle.path.String(), err)
	}
	grew := n > ws.size
	ws.size = n
	if grew || ws.cursor > n {
		ws.cursor = n
	}
	return nil
}

// Close flushes (go-smb2 writes are unbuffered at this layer, so Close has
// nothing pending to flush beyond the OS/driver write calls already made)
// and closes the OpenFile; subsequent ops fail InvalidState (§4.I).
func (ws *WritableStream) Close(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.checkLive("close"); err != nil {
		return err
	}
	ws.closed = true
	err := ws.sh.Close(ctx)
	ws.release()
	ws.handle.broker.invalidateStat(ws.handle.endpoint, ws.handle.path)
	return err
}

// Abort discards pending writes not yet submitted (there is no client-side
// write buffer in this implementation — every write call already
// round-tripped to the server — so Abort's only remaining effect is closing
// the OpenFile and marking the stream aborted) (§4.I).
func (ws *WritableStream) Abort(ctx context.Context, reason string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.checkLive("abort"); err != nil {
		return err
	}
	ws.aborted = true
	err := ws.sh.Close(ctx)
	ws.release()
	ws.handle.broker.invalidateStat(ws.handle.endpoint, ws.handle.path)
	return err
}

// WriteCommand is the Go-native analogue of the §4.I accepted-input union:
// a raw payload (Type == "") or an explicit structured command selecting
// write/seek/truncate. Data holds the raw or structured payload; Position is
// the write/seek offset (nil means "at cursor" for a write).
type WriteCommand struct {
	Type     string
	Data     any
	Position *int64
	Size     int64
}

// Submit dispatches cmd per §4.I's accepted-input union. An unknown Type, or
// a raw (Type == "") Data that is neither []byte nor string, fails
// UnsupportedType ("Writing unsupported type"); a "write" whose Data is
// neither []byte nor string, or a "seek" with no Position, fails
// UnsupportedType too, but with the struct-specific message ("Writing
// unsupported data type"). "seek" and "truncate" ignore Data. This is the
// one call site that can observe the "unknown type" vs. "unknown data shape"
// distinction, since Write/WriteAt below only ever receive
// already-validated []byte.
func (ws *WritableStream) Submit(ctx context.Context, cmd WriteCommand) error {
	switch cmd.Type {
	case "":
		data, err := rawWriteBytes(cmd.Data)
		if err != nil {
			return err
		}
		if cmd.Position != nil {
			return ws.WriteAt(ctx, data, *cmd.Position)
		}
		return ws.Write(ctx, data)
	case "write":
		data, ok := structuredWriteBytes(cmd.Data)
		if !ok {
			return unsupportedDataError("write")
		}
		if cmd.Position != nil {
			return ws.WriteAt(ctx, data, *cmd.Position)
		}
		return ws.Write(ctx, data)
	case "seek":
		if cmd.Position == nil {
			return unsupportedDataError("seek")
		}
		return ws.Seek(ctx, *cmd.Position)
	case "truncate":
		return ws.Truncate(ctx, cmd.Size)
	default:
		return unsupportedTypeError("write")
	}
}

// rawWriteBytes validates the unwrapped-raw write form (§4.I form 1):
// non-bytes/non-string payload without a struct wrapper is UnsupportedType.
func rawWriteBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, unsupportedTypeError("write")
	}
}

// structuredWriteBytes validates the {type:'write', data, position?} form
// (§4.I form 2): an unsupported data shape inside the wrapper is reported
// distinctly from an unsupported raw payload.
func structuredWriteBytes(data any) ([]byte, bool) {
	switch v := data.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// GetWriter returns a single-holder Writer, locking the stream (§4.I).
// Calling GetWriter while already locked fails InvalidState.
func (ws *WritableStream) GetWriter() (*Writer, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.locked {
		return nil, invalidStateLocked("getWriter")
	}
	ws.locked = true
	return &Writer{stream: ws}, nil
}

// Writer is the single-holder writer obtained via GetWriter (§4.I); once the
// stream is Closed, writer operations fail InvalidState("...is closed"),
// exactly as calling the same operation on the stream directly would.
type Writer struct {
	stream *WritableStream
}

func (w *Writer) Write(ctx context.Context, data []byte) error         { return w.stream.Write(ctx, data) }
func (w *Writer) WriteAt(ctx context.Context, data []byte, pos int64) error {
	return w.stream.WriteAt(ctx, data, pos)
}
func (w *Writer) Seek(ctx context.Context, pos int64) error   { return w.stream.Seek(ctx, pos) }
func (w *Writer) Truncate(ctx context.Context, n int64) error { return w.stream.Truncate(ctx, n) }
func (w *Writer) Close(ctx context.Context) error             { return w.stream.Close(ctx) }

// ReleaseLock clears locked, allowing a subsequent GetWriter (§4.I).
func (w *Writer) ReleaseLock() {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	w.stream.locked = false
}
