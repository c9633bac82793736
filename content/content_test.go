package content

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hlubek/readercomp"
	"github.com/pkg/errors"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/integrity"
	"github.com/t7a/pitcache/internal/fsutil"
	"golang.org/x/sys/unix"
)

const (
	kiB = 1024
	miB = 1024 * kiB
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func setup(t *testing.T) (root string) {
	if os.Getenv("DEBUG") == "1" {
		var err error
		root, err = ioutil.TempDir("", "pitcache")
		tassert(t, err == nil, "%v", err)
		fmt.Println(root)
		// no cleanup
		return
	}
	return t.TempDir()
}

// randStream produces Size bytes of seeded pseudo-random data.
type randStream struct {
	Size    int64
	nextPos int64
	rng     *rand.Rand
}

func RandStream(size int64) *randStream {
	return &randStream{Size: size, rng: rand.New(rand.NewSource(42))}
}

func (s *randStream) Read(p []byte) (n int, err error) {
	remaining := s.Size - s.nextPos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = s.rng.Read(p)
	s.nextPos += int64(n)
	return
}

func TestPath(t *testing.T) {
	in, err := integrity.FromData("sha512", []byte("foobarbaz"))
	tassert(t, err == nil, "%v", err)
	hexhash := in.Hex()
	expect := filepath.Join("/cache", "content-v2", "sha512", hexhash[0:2], hexhash[2:4], hexhash[4:])
	got := Path("/cache", in)
	tassert(t, expect == got, "expected %s, got %s", expect, got)
	tassert(t, Path("/cache", in) == got, "not deterministic")

	short := integrity.Integrity{Algo: "sha1", Digest: []byte{0xab}}
	got = Path("/cache", short)
	tassert(t, got == filepath.Join("/cache", "content-v2", "sha1", "ab"), "got %s", got)
}

func TestWriteRead(t *testing.T) {
	root := setup(t)
	buf := []byte("foobarbaz")
	in, err := Write(root, buf, Opts{})
	tassert(t, err == nil, "%v", err)
	want, err := integrity.FromData("sha512", buf)
	tassert(t, err == nil, "%v", err)
	tassert(t, in.Match(want), "expected %s got %s", want, in)

	got, err := ioutil.ReadFile(Path(root, in))
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(buf, got), "file contents %q", got)

	got, err = Read(root, in)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(buf, got), "read %q", got)

	info, err := os.Stat(Path(root, in))
	tassert(t, err == nil, "%v", err)
	tassert(t, info.Mode().Perm() == READ, "mode %v", info.Mode())
}

func TestWriteEmpty(t *testing.T) {
	root := setup(t)
	in, err := Write(root, nil, Opts{Algo: "sha256"})
	tassert(t, err == nil, "%v", err)
	got, err := Read(root, in)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(got) == 0, "read %q", got)
}

func TestWriteIdempotent(t *testing.T) {
	root := setup(t)
	buf := []byte("same bytes twice")
	in1, err := Write(root, buf, Opts{})
	tassert(t, err == nil, "%v", err)
	in2, err := Write(root, buf, Opts{})
	tassert(t, err == nil, "%v", err)
	tassert(t, in1.Match(in2), "%s != %s", in1, in2)

	files := 0
	err = filepath.Walk(Dir(root), func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			files++
		}
		return err
	})
	tassert(t, err == nil, "%v", err)
	tassert(t, files == 1, "expected 1 content file, found %d", files)

	// no temp files left behind
	tmps, err := ioutil.ReadDir(TmpDir(root))
	tassert(t, err == nil, "%v", err)
	tassert(t, len(tmps) == 0, "leftover temp files: %v", tmps)
}

func TestConcurrentWrites(t *testing.T) {
	root := setup(t)
	buf := bytes.Repeat([]byte("racing writers "), 4096)
	want, err := integrity.FromData("sha512", buf)
	tassert(t, err == nil, "%v", err)

	var wg sync.WaitGroup
	errc := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := Write(root, buf, Opts{})
			if err == nil && !in.Match(want) {
				err = fmt.Errorf("got %s", in)
			}
			errc <- err
		}()
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		tassert(t, err == nil, "%v", err)
	}
	got, err := Read(root, want)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(buf, got), "content mismatch")
}

func TestWriteStream(t *testing.T) {
	root := setup(t)
	size := int64(3 * miB)
	in, n, err := WriteStream(root, RandStream(size), Opts{Algo: "sha256"})
	tassert(t, err == nil, "%v", err)
	tassert(t, n == size, "size: expected %d got %d", size, n)
	tassert(t, in.Algo == "sha256", "algo %s", in.Algo)

	r, err := Open(root, in)
	tassert(t, err == nil, "%v", err)
	defer r.Close()
	tassert(t, r.Size() == size, "reader size %d", r.Size())
	ok, err := readercomp.Equal(RandStream(size), r, 4096)
	tassert(t, err == nil, "%v", err)
	tassert(t, ok, "stream mismatch")
}

func TestWriteBlake3(t *testing.T) {
	root := setup(t)
	buf := []byte("foobarbaz")
	in, err := Write(root, buf, Opts{Algo: "blake3"})
	tassert(t, err == nil, "%v", err)
	tassert(t, in.Algo == "blake3", "algo %s", in.Algo)
	got, err := Read(root, in)
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Equal(buf, got), "read %q", got)
}

func TestWriteBadSize(t *testing.T) {
	root := setup(t)
	buf := []byte("foobarbaz")

	// too much data
	_, err := Write(root, buf, Opts{Size: 2})
	tassert(t, errs.IsBadSize(err), "expected EBADSIZE, got %v", err)
	tassert(t, errs.Code(err) == errs.EBADSIZE, "code %q", errs.Code(err))

	// too little data
	_, err = Write(root, buf, Opts{Size: 100})
	tassert(t, errs.IsBadSize(err), "expected EBADSIZE, got %v", err)

	// right size
	_, err = Write(root, buf, Opts{Size: int64(len(buf))})
	tassert(t, err == nil, "%v", err)

	// the failed writes left nothing behind
	tmps, err := ioutil.ReadDir(TmpDir(root))
	tassert(t, err == nil, "%v", err)
	tassert(t, len(tmps) == 0, "leftover temp files: %v", tmps)
}

func TestWriteOverrunFailsEarly(t *testing.T) {
	root := setup(t)
	w, err := NewWriter(root, Opts{Size: 4})
	tassert(t, err == nil, "%v", err)
	_, err = w.Write([]byte("abc"))
	tassert(t, err == nil, "%v", err)
	_, err = w.Write([]byte("def"))
	tassert(t, errs.IsBadSize(err), "expected EBADSIZE, got %v", err)
	err = w.Close()
	tassert(t, errs.IsBadSize(err), "expected EBADSIZE from Close, got %v", err)
}

func TestWriteIntegrity(t *testing.T) {
	root := setup(t)
	buf := []byte("foobarbaz")
	want, err := integrity.FromData("sha256", buf)
	tassert(t, err == nil, "%v", err)

	in, err := Write(root, buf, Opts{Integrity: want.String()})
	tassert(t, err == nil, "%v", err)
	tassert(t, in.Match(want), "got %s", in)

	other, err := integrity.FromData("sha256", []byte("something else"))
	tassert(t, err == nil, "%v", err)
	_, err = Write(root, []byte("not foobarbaz"), Opts{Integrity: other.String()})
	tassert(t, errs.IsIntegrity(err), "expected EINTEGRITY, got %v", err)
	ok, err := Exists(root, other)
	tassert(t, err == nil, "%v", err)
	tassert(t, !ok, "mismatched content was stored")
}

func TestAbort(t *testing.T) {
	root := setup(t)
	w, err := NewWriter(root, Opts{})
	tassert(t, err == nil, "%v", err)
	_, err = w.Write([]byte("half a stream"))
	tassert(t, err == nil, "%v", err)
	w.Abort()

	_, err = w.Write([]byte("more"))
	tassert(t, err != nil, "write after abort succeeded")
	tmps, err := ioutil.ReadDir(TmpDir(root))
	tassert(t, err == nil, "%v", err)
	tassert(t, len(tmps) == 0, "leftover temp files: %v", tmps)
	tassert(t, !fsutil.Exists(Dir(root)), "content dir created by aborted write")
}

func TestReadCorrupt(t *testing.T) {
	root := setup(t)
	in, err := Write(root, []byte("foobarbaz"), Opts{})
	tassert(t, err == nil, "%v", err)

	// flip one byte on disk
	path := Path(root, in)
	err = os.Chmod(path, 0644)
	tassert(t, err == nil, "%v", err)
	err = ioutil.WriteFile(path, []byte("foobarbaZ"), 0644)
	tassert(t, err == nil, "%v", err)

	got, err := Read(root, in)
	tassert(t, errs.IsIntegrity(err), "expected EINTEGRITY, got %v (%q)", err, got)
}

func TestReadMissing(t *testing.T) {
	root := setup(t)
	in, err := integrity.FromData("sha512", []byte("never written"))
	tassert(t, err == nil, "%v", err)
	_, err = Open(root, in)
	tassert(t, errs.IsNotFound(err), "expected ENOENT, got %v", err)
	var e *errs.Error
	tassert(t, errors.As(err, &e), "not an *errs.Error: %v", err)
	tassert(t, e.Cache == root, "cache %q", e.Cache)
	tassert(t, e.Digest == in.String(), "digest %q", e.Digest)
}

func TestExists(t *testing.T) {
	root := setup(t)
	in, err := Write(root, []byte("foobarbaz"), Opts{})
	tassert(t, err == nil, "%v", err)
	ok, err := Exists(root, in)
	tassert(t, err == nil, "%v", err)
	tassert(t, ok, "content missing")

	missing, err := integrity.FromData("sha512", []byte("missing"))
	tassert(t, err == nil, "%v", err)
	ok, err = Exists(root, missing)
	tassert(t, err == nil, "%v", err)
	tassert(t, !ok, "phantom content")

	ok, err = Exists(root, integrity.Integrity{})
	tassert(t, err == nil && !ok, "zero integrity: %v %v", ok, err)
}

func TestRm(t *testing.T) {
	root := setup(t)
	in, err := Write(root, []byte("foobarbaz"), Opts{})
	tassert(t, err == nil, "%v", err)
	err = Rm(root, in)
	tassert(t, err == nil, "%v", err)
	ok, err := Exists(root, in)
	tassert(t, err == nil && !ok, "content still present: %v", err)
	err = Rm(root, in)
	tassert(t, errs.IsNotFound(err), "expected ENOENT, got %v", err)
}

func TestMirrorLink(t *testing.T) {
	src := setup(t)
	dst := setup(t)
	in, err := Write(src, []byte("foobarbaz"), Opts{})
	tassert(t, err == nil, "%v", err)

	err = Mirror(src, dst, in, fsutil.NoOwner)
	tassert(t, err == nil, "%v", err)
	a, err := os.Stat(Path(src, in))
	tassert(t, err == nil, "%v", err)
	b, err := os.Stat(Path(dst, in))
	tassert(t, err == nil, "%v", err)
	tassert(t, os.SameFile(a, b), "expected a hard link")

	// mirroring again is a no-op
	err = Mirror(src, dst, in, fsutil.NoOwner)
	tassert(t, err == nil, "%v", err)

	compareRoots(t, src, dst, in)
}

func TestMirrorCopyFallback(t *testing.T) {
	src := setup(t)
	dst := setup(t)
	in, _, err := WriteStream(src, RandStream(miB), Opts{})
	tassert(t, err == nil, "%v", err)

	// pretend the roots live on different devices
	oldlink := link
	link = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: unix.EXDEV}
	}
	defer func() { link = oldlink }()

	err = Mirror(src, dst, in, fsutil.NoOwner)
	tassert(t, err == nil, "%v", err)
	a, err := os.Stat(Path(src, in))
	tassert(t, err == nil, "%v", err)
	b, err := os.Stat(Path(dst, in))
	tassert(t, err == nil, "%v", err)
	tassert(t, !os.SameFile(a, b), "expected a copy, got a link")

	compareRoots(t, src, dst, in)
}

func TestMirrorMissingSource(t *testing.T) {
	src := setup(t)
	dst := setup(t)
	in, err := integrity.FromData("sha512", []byte("never written"))
	tassert(t, err == nil, "%v", err)
	err = Mirror(src, dst, in, fsutil.NoOwner)
	tassert(t, err != nil, "mirrored missing content")
}

func compareRoots(t *testing.T, src, dst string, in integrity.Integrity) {
	t.Helper()
	a, err := Open(src, in)
	tassert(t, err == nil, "%v", err)
	defer a.Close()
	b, err := Open(dst, in)
	tassert(t, err == nil, "%v", err)
	defer b.Close()
	ok, err := readercomp.Equal(a, b, 4096)
	tassert(t, err == nil, "%v", err)
	tassert(t, ok, "mirror content differs")
}
