// Package fsutil holds the filesystem primitives the cache builds on:
// directory creation with ownership fixup, atomic copies, and
// existence checks.
package fsutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"golang.org/x/sys/unix"
)

// Owner names the uid and gid new files and directories should be
// chowned to.  A negative id leaves that id alone.  Ownership is only
// fixed when the process runs as root; anyone else can't chown anyway.
type Owner struct {
	Uid int
	Gid int
}

// NoOwner leaves ownership alone.
var NoOwner = Owner{Uid: -1, Gid: -1}

func (o Owner) active() bool {
	return (o.Uid >= 0 || o.Gid >= 0) && unix.Geteuid() == 0
}

// Chown applies o to path.
func (o Owner) Chown(path string) (err error) {
	if !o.active() {
		return
	}
	return os.Lchown(path, o.Uid, o.Gid)
}

// MkdirFix creates dir and any missing parents, then chowns every
// directory it created to owner.
func MkdirFix(dir string, owner Owner) (err error) {
	defer Return(&err)

	// find the topmost missing directory so we only chown what we made
	first := ""
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if Exists(d) {
			break
		}
		first = d
		if d == filepath.Dir(d) {
			break
		}
	}

	err = os.MkdirAll(dir, 0755)
	Ck(err)

	if first == "" || !owner.active() {
		return
	}
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		err = owner.Chown(d)
		Ck(err)
		if d == first || d == filepath.Dir(d) {
			break
		}
	}
	return
}

// CopyFile copies src to dst.  The copy is written to a temporary file
// in dst's directory and renamed into place, so readers never see a
// partial dst.
func CopyFile(dst, src string) (err error) {
	defer Return(&err)

	in, err := os.Open(src)
	Ck(err)
	defer in.Close()

	pending, err := renameio.TempFile(filepath.Dir(dst), dst)
	Ck(err)
	defer pending.Cleanup()

	_, err = io.Copy(pending, in)
	Ck(err)

	info, err := in.Stat()
	Ck(err)
	err = pending.Chmod(info.Mode().Perm())
	Ck(err)

	err = pending.CloseAtomicallyReplace()
	Ck(err)
	log.Debugf("copied %s to %s", src, dst)
	return
}

// Exists reports whether path can be lstat'ed.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
