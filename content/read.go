package content

import (
	"io"
	"io/ioutil"
	"os"
	"runtime"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/integrity"
)

// Reader streams stored content and re-verifies its digest.  If the
// bytes on disk don't hash to the requested digest, the final Read
// returns an EINTEGRITY error instead of io.EOF.
type Reader struct {
	root   string
	want   integrity.Integrity
	path   string
	fh     *os.File
	hasher *integrity.Hasher
	size   int64
}

// Open returns a Reader for the content addressed by want, or an
// ENOENT error carrying the cache root and digest.
func Open(root string, want integrity.Integrity) (r *Reader, err error) {
	defer Return(&err)

	if want.IsZero() {
		return nil, errs.NotFound(root, "", "")
	}
	r = &Reader{root: root, want: want, path: Path(root, want)}
	r.hasher, err = integrity.NewHasher(want.Algo)
	Ck(err)

	r.fh, err = os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, errs.NotFound(root, "", want.String())
	}
	Ck(err)

	info, err := r.fh.Stat()
	if err != nil {
		r.fh.Close()
		return nil, err
	}
	r.size = info.Size()
	return
}

// Read supports the io.Reader interface.
func (r *Reader) Read(buf []byte) (n int, err error) {
	n, err = r.fh.Read(buf)
	r.hasher.Write(buf[:n])
	if err == io.EOF {
		got := r.hasher.Sum()
		if !got.Match(r.want) {
			err = errs.Integrity(r.root, r.want.String(), got.String())
		}
	}
	return
}

func (r *Reader) Close() error {
	return r.fh.Close()
}

// Size is the size of the content file as found on disk.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Path() string {
	return r.path
}

// Read returns the verified content addressed by want.
func Read(root string, want integrity.Integrity) (buf []byte, err error) {
	r, err := Open(root, want)
	if err != nil {
		return
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// Exists checks for the content addressed by in.  A missing file is
// not an error.  On Windows, lstat of a file that is being deleted
// fails with a permission error; that case also counts as missing.
func Exists(root string, in integrity.Integrity) (ok bool, err error) {
	if in.IsZero() {
		return false, nil
	}
	_, err = os.Lstat(Path(root, in))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	case runtime.GOOS == "windows" && errors.Is(err, os.ErrPermission):
		return false, nil
	}
	return false, err
}

// Rm deletes the content addressed by in.
func Rm(root string, in integrity.Integrity) (err error) {
	err = os.Remove(Path(root, in))
	if os.IsNotExist(err) {
		return errs.NotFound(root, "", in.String())
	}
	return
}
