package smbcore

import (
	"context"
	"io"
	"io/fs"
	"testing"
	"time"
)

// newTestBroker wires a Broker to a Pool dialed entirely through
// newMockSmbContext, so these tests exercise the real Driver, Pool, Broker,
// Handle, WritableStream and File code paths without a live SMB server.
func newTestBroker(t *testing.T, ep Endpoint, backend *MockSMBBackend) (*Broker, func()) {
	t.Helper()
	pool := newPoolWithDialer(PoolOptions{}, func(ctx context.Context, ep Endpoint, timeout time.Duration, logger Logger) (*SmbContext, error) {
		return newMockSmbContext(ep, backend)
	})
	broker := NewBroker(pool, BrokerOptions{})
	return broker, func() { pool.Close() }
}

func TestScenario1ReadAnnar(t *testing.T) {
	const annarText = "In order to make sure that this file is exactly 123 bytes in " +
		"size, I have written this text while watching its chars count."
	if len(annarText) != 123 {
		t.Fatalf("fixture text is %d bytes, want 123", len(annarText))
	}

	backend := NewMockSMBBackend()
	backend.AddFile("/annar", []byte(annarText), 0o644)
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, err := root.GetFileHandle(ctx, "annar", CreateOptions{})
	if err != nil {
		t.Fatalf("GetFileHandle: %v", err)
	}
	file, err := fh.GetFile(ctx)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if file.Size != 123 {
		t.Errorf("Size = %d, want 123", file.Size)
	}
	text, err := file.Text(ctx)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != annarText {
		t.Errorf("Text() = %q, want %q", text, annarText)
	}
}

func TestScenario2Slice(t *testing.T) {
	const annarText = "In order to make sure that this file is exactly 123 bytes in " +
		"size, I have written this text while watching its chars count."
	backend := NewMockSMBBackend()
	backend.AddFile("/annar", []byte(annarText), 0o644)
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, _ := root.GetFileHandle(ctx, "annar", CreateOptions{})
	file, _ := fh.GetFile(ctx)

	blob := file.Slice(12, 65)
	if blob.Size() != 53 {
		t.Errorf("Slice size = %d, want 53", blob.Size())
	}
	text, err := blob.Text(ctx)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "make sure that this file is exactly 123 bytes in size"
	if text != want {
		t.Errorf("Slice text = %q, want %q", text, want)
	}
}

func TestScenario3SparseWrite(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, err := root.GetFileHandle(ctx, "sparse", CreateOptions{Create: true})
	if err != nil {
		t.Fatalf("GetFileHandle: %v", err)
	}

	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}
	if err := ws.Write(ctx, []byte("hello rust")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ws.WriteAt(ctx, []byte("tsur olleh"), 13); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, ok := backend.GetFile("/sparse")
	if !ok {
		t.Fatal("file not found in backend")
	}
	want := "hello rust\x00\x00\x00tsur olleh"
	if string(content) != want {
		t.Errorf("contents = %q, want %q", content, want)
	}
	if len(content) != 23 {
		t.Errorf("size = %d, want 23", len(content))
	}
}

func TestScenario4TruncateUpThenWrite(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, _ := root.GetFileHandle(ctx, "trunc", CreateOptions{Create: true})

	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}
	if err := ws.Write(ctx, []byte("hello rust")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ws.Truncate(ctx, 11); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := ws.Write(ctx, []byte("tsur olleh")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, _ := backend.GetFile("/trunc")
	want := "hello rust\x00tsur olleh"
	if string(content) != want {
		t.Errorf("contents = %q, want %q", content, want)
	}
	if len(content) != 21 {
		t.Errorf("size = %d, want 21", len(content))
	}
}

func TestScenario5LargeFileTwoChunkStream(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, _ := root.GetFileHandle(ctx, "large", CreateOptions{Create: true})

	const size = 10 << 20 // 10 MiB
	input := make([]byte, size)
	for i := range input {
		input[i] = byte(i)
	}

	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}
	if err := ws.Write(ctx, input); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := fh.GetFile(ctx)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if file.Size != size {
		t.Fatalf("Size = %d, want %d", file.Size, size)
	}

	rc, err := file.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer rc.Close()

	var chunkSizes []int
	var got []byte
	buf := make([]byte, MaxRead)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			chunkSizes = append(chunkSizes, n)
			got = append(got, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	if len(chunkSizes) != 2 || chunkSizes[0] != 8<<20 || chunkSizes[1] != 2<<20 {
		t.Fatalf("chunk sizes = %v, want [8388608 2097152]", chunkSizes)
	}
	if len(got) != size {
		t.Fatalf("read %d bytes, want %d", len(got), size)
	}
	for i := range got {
		if got[i] != input[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, got[i], input[i])
		}
	}
}

func TestScenario6WriterLock(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, _ := root.GetFileHandle(ctx, "locked", CreateOptions{Create: true})

	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}

	w, err := ws.GetWriter()
	if err != nil {
		t.Fatalf("GetWriter: %v", err)
	}

	_, err = ws.GetWriter()
	if err == nil {
		t.Fatal("second GetWriter should fail while locked")
	}
	if got, want := err.Error(), "Invalid state: WritableStream is locked"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}

	if err := w.Close(ctx); err != nil {
		t.Fatalf("Writer.Close: %v", err)
	}

	err = w.Close(ctx)
	if got, want := err.Error(), "Invalid state: WritableStream is closed"; got != want {
		t.Errorf("error after close = %q, want %q", got, want)
	}
}

func TestWritableStreamSubmitAcceptedForms(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, err := root.GetFileHandle(ctx, "submit", CreateOptions{Create: true})
	if err != nil {
		t.Fatalf("GetFileHandle: %v", err)
	}
	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}

	if err := ws.Submit(ctx, WriteCommand{Data: "raw string"}); err != nil {
		t.Fatalf("Submit(raw string): %v", err)
	}
	pos := int64(0)
	if err := ws.Submit(ctx, WriteCommand{Type: "write", Data: []byte("overwritten"), Position: &pos}); err != nil {
		t.Fatalf("Submit(structured write): %v", err)
	}
	seekPos := int64(3)
	if err := ws.Submit(ctx, WriteCommand{Type: "seek", Position: &seekPos}); err != nil {
		t.Fatalf("Submit(seek): %v", err)
	}
	if err := ws.Submit(ctx, WriteCommand{Type: "truncate", Size: 5}); err != nil {
		t.Fatalf("Submit(truncate): %v", err)
	}
	if err := ws.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, ok := backend.GetFile("/submit")
	if !ok {
		t.Fatal("file not found in backend")
	}
	if string(content) != "overw" {
		t.Errorf("contents = %q, want %q", content, "overw")
	}
}

func TestWritableStreamSubmitRejectsUnsupportedForms(t *testing.T) {
	backend := NewMockSMBBackend()
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	fh, _ := root.GetFileHandle(ctx, "rejected", CreateOptions{Create: true})
	ws, err := fh.CreateWritable(ctx, WritableOptions{})
	if err != nil {
		t.Fatalf("CreateWritable: %v", err)
	}
	defer ws.Close(ctx)

	err = ws.Submit(ctx, WriteCommand{Data: 12345})
	if got, want := err.Error(), "Writing unsupported type"; got != want {
		t.Errorf("Submit(raw int) error = %q, want %q", got, want)
	}

	err = ws.Submit(ctx, WriteCommand{Type: "write", Data: 12345})
	if got, want := err.Error(), "Writing unsupported data type"; got != want {
		t.Errorf("Submit(structured int) error = %q, want %q", got, want)
	}

	err = ws.Submit(ctx, WriteCommand{Type: "frobnicate"})
	if got, want := err.Error(), "Writing unsupported type"; got != want {
		t.Errorf("Submit(unknown type) error = %q, want %q", got, want)
	}
}

func TestDirectoryIterationAndRemove(t *testing.T) {
	backend := NewMockSMBBackend()
	backend.AddFile("/3", []byte("x"), 0o644)
	backend.AddDir("/first/comment", 0o755)
	backend.AddDir("/quatre/points", 0o755)
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)

	seen := map[string]Kind{}
	it := root.Entries(ctx)
	for {
		e, ok := it.Next(ctx)
		if !ok {
			break
		}
		seen[e.Name] = e.Kind
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if seen["3"] != KindFile {
		t.Errorf("expected \"3\" to be a file entry")
	}
	if seen["first"] != KindDirectory || seen["quatre"] != KindDirectory {
		t.Errorf("expected first/quatre directory entries, got %v", seen)
	}

	if err := root.RemoveEntry(ctx, "3", RemoveOptions{}); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if _, err := root.GetFileHandle(ctx, "3", CreateOptions{}); !Is(err, KindNotFound) {
		t.Errorf("GetFileHandle after remove: %v, want NotFound", err)
	}

	if err := root.RemoveEntry(ctx, "first", RemoveOptions{}); !Is(err, KindNotEmpty) {
		t.Errorf("RemoveEntry non-empty dir without Recursive: %v, want NotEmpty", err)
	}
	if err := root.RemoveEntry(ctx, "first", RemoveOptions{Recursive: true}); err != nil {
		t.Fatalf("RemoveEntry recursive: %v", err)
	}
}

func TestPermissionGate(t *testing.T) {
	backend := NewMockSMBBackend()
	backend.AddFile("/ro.txt", []byte("data"), 0o444)
	backend.AddFile("/rw.txt", []byte("data"), 0o644)
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)

	rw, _ := root.GetFileHandle(ctx, "rw.txt", CreateOptions{})
	state, err := rw.QueryPermission(ctx, PermissionReadWrite)
	if err != nil {
		t.Fatalf("QueryPermission: %v", err)
	}
	if state != PermissionGranted {
		t.Errorf("QueryPermission(rw.txt) = %v, want granted", state)
	}

	ro, _ := root.GetFileHandle(ctx, "ro.txt", CreateOptions{})
	state, err = ro.QueryPermission(ctx, PermissionRead)
	if err != nil {
		t.Fatalf("QueryPermission: %v", err)
	}
	if state != PermissionGranted {
		t.Errorf("QueryPermission(ro.txt, read) = %v, want granted", state)
	}
}

func TestPermissionGateDeniesWriteOnPermissionError(t *testing.T) {
	backend := NewMockSMBBackend()
	backend.AddFile("/ro.txt", []byte("data"), 0o444)
	ep := Endpoint{Server: "fileserver", Port: 445, Share: "testshare"}
	broker, closePool := newTestBroker(t, ep, backend)
	defer closePool()

	ctx := context.Background()
	root := RootHandle(ep, broker)
	ro, err := root.GetFileHandle(ctx, "ro.txt", CreateOptions{})
	if err != nil {
		t.Fatalf("GetFileHandle: %v", err)
	}

	// The mock never enforces the permission bits AddFile was given, so the
	// only way to exercise the denial branch of the write probe is fault
	// injection on the backend's "open" operation.
	backend.SetOperationError("open", fs.ErrPermission)

	state, err := ro.QueryPermission(ctx, PermissionReadWrite)
	if err != nil {
		t.Fatalf("QueryPermission: %v", err)
	}
	if state != PermissionDenied {
		t.Errorf("QueryPermission(ro.txt, readwrite) = %v, want denied", state)
	}
}
