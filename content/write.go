// Package content stores byte streams in files named after their
// digest.  Files are written once, under a temporary name, and moved
// into place only after their digest is known; they are never
// modified afterwards.
package content

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/integrity"
	"github.com/t7a/pitcache/internal/fsutil"
)

// content file mode
const READ = 0444

type Opts struct {
	// Algo is the hash algorithm; defaults to integrity.DefaultAlgo.
	// When Integrity is set, its algorithm wins.
	Algo string
	// Size is the expected content size.  Zero disables the check.
	Size int64
	// Integrity is the expected digest.  Empty disables the check.
	Integrity string
	Owner     fsutil.Owner
}

// Writer accepts content, hashes it as it goes, and on Close moves it
// to the path derived from its digest.  A Writer is not safe for
// concurrent use; use one Writer per stream.
type Writer struct {
	root    string
	opts    Opts
	want    integrity.Integrity
	hasher  *integrity.Hasher
	pending *renameio.PendingFile
	result  integrity.Integrity
	err     error
	done    bool
}

func NewWriter(root string, opts Opts) (w *Writer, err error) {
	defer Return(&err)

	w = &Writer{root: root, opts: opts}
	algo := opts.Algo
	if opts.Integrity != "" {
		w.want, err = integrity.Parse(opts.Integrity)
		Ck(err)
		algo = w.want.Algo
	}
	w.hasher, err = integrity.NewHasher(algo)
	Ck(err)

	tmpdir := TmpDir(root)
	err = fsutil.MkdirFix(tmpdir, opts.Owner)
	Ck(err)
	w.pending, err = renameio.TempFile(tmpdir, filepath.Join(tmpdir, "content"))
	Ck(err)
	return
}

// Write supports the io.Writer interface.  A write that would take the
// stream past the expected size fails immediately with EBADSIZE.
func (w *Writer) Write(data []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.done {
		return 0, os.ErrClosed
	}
	size := w.hasher.Size() + int64(len(data))
	if w.opts.Size > 0 && size > w.opts.Size {
		w.fail(errs.BadSize(w.root, w.opts.Size, size))
		return 0, w.err
	}
	n, err = w.pending.Write(data)
	// add data to hash digest
	w.hasher.Write(data[:n])
	if err != nil {
		w.fail(err)
	}
	return
}

// fail records err and discards the temp file.
func (w *Writer) fail(err error) {
	w.err = err
	w.done = true
	w.pending.Cleanup()
}

// Abort discards everything written so far.  Nothing is left at the
// final content path.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.fail(os.ErrClosed)
}

// Close checks the expected size and digest, then moves the content
// into place.  If the content is already stored, the new copy is
// discarded and the existing file is trusted.
func (w *Writer) Close() (err error) {
	if w.done {
		return w.err
	}
	w.done = true
	defer w.pending.Cleanup()
	defer func() {
		w.err = err
	}()
	defer Return(&err)

	size := w.hasher.Size()
	if w.opts.Size > 0 && size != w.opts.Size {
		return errs.BadSize(w.root, w.opts.Size, size)
	}
	w.result = w.hasher.Sum()
	if !w.want.IsZero() && !w.result.Match(w.want) {
		return errs.Integrity(w.root, w.want.String(), w.result.String())
	}

	err = w.pending.Chmod(READ)
	Ck(err)
	err = w.pending.Sync()
	Ck(err)

	target := Path(w.root, w.result)
	err = fsutil.MkdirFix(filepath.Dir(target), w.opts.Owner)
	Ck(err)
	created, err := moveFile(w.pending.Name(), target)
	Ck(err)
	if created {
		err = w.opts.Owner.Chown(target)
		Ck(err)
	}
	log.Debugf("content Close() %s -> %s created %v", w.pending.Name(), target, created)
	return
}

// Integrity returns the digest of the content; valid after a
// successful Close.
func (w *Writer) Integrity() integrity.Integrity {
	return w.result
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.hasher.Size()
}

// moveFile gives src the name dst unless dst already exists.  A hard
// link fails with EEXIST instead of clobbering, which is what we want
// when racing other writers of the same digest; rename is the fallback
// for filesystems without hard links.
func moveFile(src, dst string) (created bool, err error) {
	err = link(src, dst)
	switch {
	case err == nil:
		return true, nil
	case os.IsExist(err):
		return false, nil
	}
	log.Debugf("link %s %s: %v, falling back to rename", src, dst, err)
	if fsutil.Exists(dst) {
		return false, nil
	}
	err = os.Rename(src, dst)
	if err != nil {
		return
	}
	return true, nil
}

// link is swapped out in tests to simulate filesystems that can't
// hard-link.
var link = os.Link

// Write stores buf and returns its digest.
func Write(root string, buf []byte, opts Opts) (in integrity.Integrity, err error) {
	in, _, err = WriteStream(root, bytes.NewReader(buf), opts)
	return
}

// WriteStream stores everything rd produces and returns its digest and
// size.
func WriteStream(root string, rd io.Reader, opts Opts) (in integrity.Integrity, size int64, err error) {
	w, err := NewWriter(root, opts)
	if err != nil {
		return
	}
	_, err = io.Copy(w, rd)
	if err != nil {
		w.Abort()
		return
	}
	err = w.Close()
	if err != nil {
		return
	}
	return w.Integrity(), w.Size(), nil
}
