package pitcache

import (
	"bytes"
	"io"
	"time"

	"github.com/t7a/pitcache/content"
	"github.com/t7a/pitcache/index"
	"github.com/t7a/pitcache/integrity"
)

type PutOpts struct {
	// Algo overrides the cache's default hash algorithm.
	Algo string
	// Size, when non-zero, is the exact size the content must have.
	Size int64
	// Integrity, when set, is the digest the content must match.
	Integrity string
	Metadata  interface{}
	// Time is recorded in the entry; defaults to now.
	Time    time.Time
	Memoize bool
	// Mirrors are other cache roots that receive the content and the
	// entry after a successful put.
	Mirrors []string
}

func (c *Cache) contentOpts(opts PutOpts) content.Opts {
	return content.Opts{
		Algo:      c.algo(opts.Algo),
		Size:      opts.Size,
		Integrity: opts.Integrity,
		Owner:     c.owner(),
	}
}

func (c *Cache) insertOpts(opts PutOpts, size int64) index.InsertOpts {
	return index.InsertOpts{
		Metadata: opts.Metadata,
		Size:     size,
		Time:     opts.Time,
		Owner:    c.owner(),
	}
}

// Put stores data under key and returns its integrity.
func (c *Cache) Put(key string, data []byte, opts PutOpts) (in integrity.Integrity, err error) {
	pw, err := c.PutStream(key, opts)
	if err != nil {
		return
	}
	_, err = pw.Write(data)
	if err != nil {
		pw.Abort()
		return
	}
	err = pw.Close()
	if err != nil {
		return
	}
	return pw.Integrity(), nil
}

// PutReader stores everything read from rd under key.
func (c *Cache) PutReader(key string, rd io.Reader, opts PutOpts) (in integrity.Integrity, err error) {
	pw, err := c.PutStream(key, opts)
	if err != nil {
		return
	}
	_, err = io.Copy(pw, rd)
	if err != nil {
		pw.Abort()
		return
	}
	err = pw.Close()
	if err != nil {
		return
	}
	return pw.Integrity(), nil
}

// PutWriter streams content into the cache.  Nothing is visible under
// the key until Close returns nil.
type PutWriter struct {
	c     *Cache
	key   string
	opts  PutOpts
	w     *content.Writer
	buf   *bytes.Buffer
	entry *index.Entry
}

// PutStream returns a PutWriter that stores what is written to it
// under key.  Callers must Close or Abort it.
func (c *Cache) PutStream(key string, opts PutOpts) (pw *PutWriter, err error) {
	w, err := content.NewWriter(c.Dir, c.contentOpts(opts))
	if err != nil {
		return
	}
	pw = &PutWriter{c: c, key: key, opts: opts, w: w}
	if opts.Memoize {
		pw.buf = &bytes.Buffer{}
	}
	return
}

func (pw *PutWriter) Write(data []byte) (n int, err error) {
	n, err = pw.w.Write(data)
	if pw.buf != nil && n > 0 {
		pw.buf.Write(data[:n])
	}
	return
}

// Abort discards everything written so far.
func (pw *PutWriter) Abort() {
	pw.w.Abort()
	pw.buf = nil
}

// Close commits the content, appends the index entry, and then
// memoizes and mirrors as requested.
func (pw *PutWriter) Close() (err error) {
	if pw.entry != nil {
		return
	}
	c := pw.c
	err = pw.w.Close()
	if err != nil {
		return
	}
	in := pw.w.Integrity()
	entry, err := index.Insert(c.Dir, pw.key, in.String(), c.insertOpts(pw.opts, pw.w.Size()))
	if err != nil {
		return
	}
	pw.entry = entry
	if pw.buf != nil {
		c.Memo.Put(c.Dir, entry, pw.buf.Bytes())
		pw.buf = nil
	}
	c.mirror(entry, in, pw.opts)
	return
}

func (pw *PutWriter) Integrity() integrity.Integrity {
	return pw.w.Integrity()
}

func (pw *PutWriter) Size() int64 {
	return pw.w.Size()
}

// Entry returns the index entry written by Close, or nil.
func (pw *PutWriter) Entry() *index.Entry {
	return pw.entry
}

// mirror copies in and entry to each of opts.Mirrors.  The primary
// cache already holds both, so failures here are only logged.
func (c *Cache) mirror(entry *index.Entry, in integrity.Integrity, opts PutOpts) {
	for _, target := range opts.Mirrors {
		log := c.Log.WithField("mirror", target).WithField("key", entry.Key)
		err := content.Mirror(c.Dir, target, in, c.owner())
		if err != nil {
			log.Warnf("mirroring content failed: %v", err)
			continue
		}
		iopts := c.insertOpts(opts, entry.Size)
		iopts.Time = entry.Time
		iopts.Metadata = nil
		if len(entry.Metadata) > 0 {
			iopts.Metadata = entry.Metadata
		}
		_, err = index.Insert(target, entry.Key, entry.Integrity, iopts)
		if err != nil {
			log.Warnf("mirroring index entry failed: %v", err)
		}
	}
}
