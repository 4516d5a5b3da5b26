package smbcore

import (
	"io/fs"

	smb2 "github.com/cloudsoda/go-smb2"
)

// smbFile is the open-handle surface the broker needs from a mounted share,
// narrowed from *smb2.File so a mock backend can stand in for broker/pool
// tests without a live server.
type smbFile interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Truncate(size int64) error
	Close() error
	Stat() (fs.FileInfo, error)
	Readdir(n int) ([]fs.FileInfo, error)
}

// smbShare is the mounted-share surface *SmbContext.run closures call
// through, narrowed from *smb2.Share for the same reason as smbFile.
type smbShare interface {
	Open(name string) (smbFile, error)
	OpenFile(name string, flag int, perm fs.FileMode) (smbFile, error)
	Stat(name string) (fs.FileInfo, error)
	Mkdir(name string, perm fs.FileMode) error
	Remove(name string) error
	RemoveAll(name string) error
	Rename(oldname, newname string) error
	Umount() error
}

// smbSession is the session-level surface SmbContext needs once Mount has
// already produced the smbShare (Mount itself is called once against the
// concrete *smb2.Session in dialSmbContext, before wrapping).
type smbSession interface {
	Logoff() error
	Echo() error
}

// realShare adapts a live *smb2.Share to smbShare. Open/OpenFile on the
// concrete type return *smb2.File, which satisfies smbFile structurally but
// not the exact return type smbShare declares, so the conversion has to
// happen at this one seam.
type realShare struct {
	sh *smb2.Share
}

func (r realShare) Open(name string) (smbFile, error) {
	f, err := r.sh.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r realShare) OpenFile(name string, flag int, perm fs.FileMode) (smbFile, error) {
	f, err := r.sh.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r realShare) Stat(name string) (fs.FileInfo, error)       { return r.sh.Stat(name) }
func (r realShare) Mkdir(name string, perm fs.FileMode) error   { return r.sh.Mkdir(name, perm) }
func (r realShare) Remove(name string) error                   { return r.sh.Remove(name) }
func (r realShare) RemoveAll(name string) error                 { return r.sh.RemoveAll(name) }
func (r realShare) Rename(oldname, newname string) error        { return r.sh.Rename(oldname, newname) }
func (r realShare) Umount() error                               { return r.sh.Umount() }
