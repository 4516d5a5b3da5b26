package smbcore

import (
	"io/fs"
	"os"
	"time"
)

// StatRecord is the metadata snapshot returned by Handle.Stat. Times are
// expressed as epoch milliseconds to match the host-runtime surface this
// package bridges to; Inode is absent (nil) when the backend cannot supply
// one.
type StatRecord struct {
	Inode        *uint64
	Size         int64
	CreationTime int64
	ModifiedTime int64
	AccessedTime int64
	Kind         Kind
}

// fileTimes is satisfied by stat results that expose Windows-style creation
// and last-access timestamps beyond the bare io/fs.FileInfo surface. go-smb2
// FileInfo implementations commonly provide these; attribute extraction
// degrades gracefully (falling back to ModTime) when they don't.
type fileTimes interface {
	CreationTime() time.Time
	LastAccessTime() time.Time
}

// inoProvider is satisfied by stat results that can report a server-side
// file ID/inode number.
type inoProvider interface {
	Ino() uint64
}

// toStatRecord builds a StatRecord from a stdlib fs.FileInfo, pulling
// Windows creation/access times and an inode number out of Sys() when the
// concrete type underneath provides them (mirroring the defensive
// type-assertion style the teacher used for WindowsAttributes extraction).
func toStatRecord(info fs.FileInfo) StatRecord {
	rec := StatRecord{
		Size:         info.Size(),
		ModifiedTime: info.ModTime().UnixMilli(),
		CreationTime: info.ModTime().UnixMilli(),
		AccessedTime: info.ModTime().UnixMilli(),
		Kind:         KindDirectory,
	}
	if !info.IsDir() {
		rec.Kind = KindFile
	}

	if ft, ok := info.Sys().(fileTimes); ok {
		if ct := ft.CreationTime(); !ct.IsZero() {
			rec.CreationTime = ct.UnixMilli()
		}
		if at := ft.LastAccessTime(); !at.IsZero() {
			rec.AccessedTime = at.UnixMilli()
		}
	}
	if ip, ok := info.Sys().(inoProvider); ok {
		ino := ip.Ino()
		rec.Inode = &ino
	}

	return rec
}

// fileKindFromMode is used by components (the Directory iterator) that only
// have an os.FileMode at hand rather than a full fs.FileInfo.
func fileKindFromMode(mode os.FileMode) Kind {
	if mode.IsDir() {
		return KindDirectory
	}
	return KindFile
}
