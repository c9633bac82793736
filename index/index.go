// Package index maps cache keys to content digests.  Entries live in
// append-only bucket files; the last valid entry for a key wins and
// deletion appends a tombstone.  There is no lock: each entry goes to
// disk in a single O_APPEND write, so concurrent writers interleave
// whole lines, and readers skip anything torn or corrupt.
package index

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/content"
	"github.com/t7a/pitcache/integrity"
	"github.com/t7a/pitcache/internal/fsutil"
)

// MaxLineSize bounds a single encoded entry.  Appends of this size are
// still one write(2) and land contiguously on local filesystems.
const MaxLineSize = 1 << 20

// Entry is the resolved state of a key.
type Entry struct {
	Key       string          `json:"key" msgpack:"key"`
	Integrity string          `json:"integrity" msgpack:"integrity"`
	Path      string          `json:"path" msgpack:"path"`
	Time      time.Time       `json:"time" msgpack:"time"`
	Size      int64           `json:"size,omitempty" msgpack:"size"`
	Metadata  json.RawMessage `json:"metadata,omitempty" msgpack:"metadata"`
}

// IsTombstone reports whether e marks its key as deleted.
func (e *Entry) IsTombstone() bool {
	return e.Integrity == ""
}

type InsertOpts struct {
	// Metadata is marshaled to JSON and stored verbatim.  Pass a
	// json.RawMessage to store pre-encoded metadata.
	Metadata interface{}
	// Size is the content size, recorded when non-zero.
	Size int64
	// Time defaults to now.
	Time  time.Time
	Owner fsutil.Owner
}

// Insert appends an entry mapping key to the content digest sri and
// returns the formatted entry.  Keys must be valid UTF-8; JSON can't
// carry anything else unchanged.
func Insert(root, key, sri string, opts InsertOpts) (entry *Entry, err error) {
	defer Return(&err)

	if !utf8.ValidString(key) {
		return nil, fmt.Errorf("%w: key %q is not valid UTF-8", syscall.EINVAL, key)
	}

	ts := opts.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := &Record{
		Key:  key,
		Time: ts.UnixNano() / int64(time.Millisecond),
		Size: opts.Size,
	}
	if sri != "" {
		rec.Integrity = &sri
	}
	if opts.Metadata != nil {
		rec.Metadata, err = json.Marshal(opts.Metadata)
		Ck(err)
	}

	line, err := Encode(rec)
	Ck(err)
	if len(line) > MaxLineSize {
		return nil, fmt.Errorf("%w: index entry for key is %d bytes", syscall.E2BIG, len(line))
	}

	bucket := BucketPath(root, key)
	err = fsutil.MkdirFix(filepath.Dir(bucket), opts.Owner)
	Ck(err)
	err = appendLine(bucket, line, opts.Owner)
	Ck(err)

	return rec.entry(root), nil
}

// Delete appends a tombstone for key.  Earlier entries stay in the
// bucket.
func Delete(root, key string, opts InsertOpts) (err error) {
	opts.Metadata = nil
	opts.Size = 0
	_, err = Insert(root, key, "", opts)
	return
}

// Find returns the current entry for key, or nil if key has no entry
// or was deleted.
func Find(root, key string) (entry *Entry, err error) {
	recs, err := readBucket(BucketPath(root, key))
	if err != nil {
		return
	}
	var found *Record
	for _, rec := range recs {
		if rec.Key == key {
			found = rec
		}
	}
	if found == nil || found.Integrity == nil {
		return nil, nil
	}
	return found.entry(root), nil
}

// BucketEntries returns every valid entry in key's bucket, oldest
// first, tombstones included.  Entries for other keys that share the
// bucket are included too.
func BucketEntries(root, key string) (entries []*Entry, err error) {
	recs, err := readBucket(BucketPath(root, key))
	if err != nil {
		return
	}
	for _, rec := range recs {
		entries = append(entries, rec.entry(root))
	}
	return
}

// appendLine writes line to bucket in a single write call.
func appendLine(bucket, line string, owner fsutil.Owner) (err error) {
	defer Return(&err)
	fh, err := os.OpenFile(bucket, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	Ck(err)
	n, err := fh.Write([]byte(line))
	if err != nil {
		fh.Close()
		return
	}
	err = fh.Close()
	Ck(err)
	if n != len(line) {
		return fmt.Errorf("%w: %s", io.ErrShortWrite, bucket)
	}
	err = owner.Chown(bucket)
	Ck(err)
	return
}

// readBucket decodes every line of a bucket file, skipping corrupt
// ones.  A missing bucket has no records.
func readBucket(bucket string) (recs []*Record, err error) {
	buf, err := ioutil.ReadFile(bucket)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(buf), "\n") {
		if len(line) == 0 {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			log.Debugf("skipping corrupt line in %s: %v", bucket, err)
			continue
		}
		recs = append(recs, rec)
	}
	return
}

// entry formats rec for callers, resolving the content path.
func (rec *Record) entry(root string) (e *Entry) {
	e = &Entry{
		Key:      rec.Key,
		Time:     time.Unix(0, rec.Time*int64(time.Millisecond)),
		Size:     rec.Size,
		Metadata: rec.Metadata,
	}
	if rec.Integrity == nil {
		return
	}
	e.Integrity = *rec.Integrity
	in, err := integrity.Parse(e.Integrity)
	if err == nil {
		e.Path = content.Path(root, in)
	}
	return
}
