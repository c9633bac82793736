package pitcache

import (
	"bytes"
	"io"

	"github.com/t7a/pitcache/content"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/index"
	"github.com/t7a/pitcache/integrity"
)

type GetOpts struct {
	// Memoize serves from, and populates, the cache's memo store.
	Memoize bool
}

// Result is the outcome of a key lookup.
type Result struct {
	Entry *index.Entry
	Data  []byte
}

func (r *Result) Integrity() string {
	return r.Entry.Integrity
}

// lookup resolves key to its entry and parsed integrity, or returns an
// ENOENT error naming the key.
func (c *Cache) lookup(key string) (entry *index.Entry, in integrity.Integrity, err error) {
	entry, err = index.Find(c.Dir, key)
	if err != nil {
		return
	}
	if entry == nil {
		return nil, in, errs.NotFound(c.Dir, key, "")
	}
	in, err = integrity.Parse(entry.Integrity)
	if err != nil {
		return nil, in, errs.NotFound(c.Dir, key, entry.Integrity)
	}
	return
}

// notFound adds key to a content ENOENT so callers can tell which
// lookup failed.
func (c *Cache) notFound(err error, key, digest string) error {
	if errs.IsNotFound(err) {
		return errs.NotFound(c.Dir, key, digest)
	}
	return err
}

// Get returns the entry and verified content stored under key.
func (c *Cache) Get(key string, opts GetOpts) (res *Result, err error) {
	if opts.Memoize {
		item, ok := c.Memo.Get(c.Dir, key)
		if ok {
			return &Result{Entry: item.Entry, Data: item.Data}, nil
		}
	}
	entry, in, err := c.lookup(key)
	if err != nil {
		return
	}
	data, err := content.Read(c.Dir, in)
	if err != nil {
		return nil, c.notFound(err, key, entry.Integrity)
	}
	if opts.Memoize {
		c.Memo.Put(c.Dir, entry, data)
	}
	return &Result{Entry: entry, Data: data}, nil
}

// ReadCloser streams verified content.  Read returns an EINTEGRITY
// error instead of io.EOF if the content doesn't match its digest.
type ReadCloser struct {
	io.Reader
	closer io.Closer
	Entry  *index.Entry
}

func (rc *ReadCloser) Close() error {
	if rc.closer == nil {
		return nil
	}
	return rc.closer.Close()
}

// GetStream opens the content stored under key for reading.
func (c *Cache) GetStream(key string, opts GetOpts) (rc *ReadCloser, err error) {
	if opts.Memoize {
		item, ok := c.Memo.Get(c.Dir, key)
		if ok {
			return &ReadCloser{Reader: bytes.NewReader(item.Data), Entry: item.Entry}, nil
		}
	}
	entry, in, err := c.lookup(key)
	if err != nil {
		return
	}
	r, err := content.Open(c.Dir, in)
	if err != nil {
		return nil, c.notFound(err, key, entry.Integrity)
	}
	rc = &ReadCloser{Reader: r, closer: r, Entry: entry}
	if opts.Memoize {
		rc.Reader = &memoReader{c: c, entry: entry, rd: r}
	}
	return
}

// memoReader memoizes the content once it has been read and verified
// in full.
type memoReader struct {
	c     *Cache
	entry *index.Entry
	rd    io.Reader
	buf   bytes.Buffer
}

func (m *memoReader) Read(p []byte) (n int, err error) {
	n, err = m.rd.Read(p)
	m.buf.Write(p[:n])
	if err == io.EOF {
		m.c.Memo.Put(m.c.Dir, m.entry, m.buf.Bytes())
	}
	return
}

// GetByDigest returns the verified content addressed by digest,
// bypassing the index.
func (c *Cache) GetByDigest(digest string, opts GetOpts) (data []byte, err error) {
	in, err := integrity.Parse(digest)
	if err != nil {
		return nil, errs.NotFound(c.Dir, "", digest)
	}
	digest = in.String()
	if opts.Memoize {
		data, ok := c.Memo.GetByDigest(c.Dir, digest)
		if ok {
			return data, nil
		}
	}
	data, err = content.Read(c.Dir, in)
	if err != nil {
		return
	}
	if opts.Memoize {
		c.Memo.PutDigest(c.Dir, digest, data)
	}
	return
}

// GetStreamByDigest opens the content addressed by digest.
func (c *Cache) GetStreamByDigest(digest string) (rc io.ReadCloser, err error) {
	in, err := integrity.Parse(digest)
	if err != nil {
		return nil, errs.NotFound(c.Dir, "", digest)
	}
	r, err := content.Open(c.Dir, in)
	if err != nil {
		return
	}
	return r, nil
}

// GetInfo returns the current entry for key without touching its
// content, or nil if there is none.
func (c *Cache) GetInfo(key string) (entry *index.Entry, err error) {
	return index.Find(c.Dir, key)
}

// HasContent reports whether content for digest is present.
func (c *Cache) HasContent(digest string) (ok bool, err error) {
	in, err := integrity.Parse(digest)
	if err != nil {
		return false, nil
	}
	return content.Exists(c.Dir, in)
}

// CopyTo writes the content stored under key to w.
func (c *Cache) CopyTo(w io.Writer, key string) (n int64, err error) {
	rc, err := c.GetStream(key, GetOpts{})
	if err != nil {
		return
	}
	defer rc.Close()
	return io.Copy(w, rc)
}
