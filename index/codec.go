package index

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Corrupt lines are reported with one of these.  They are diagnostics
// only: readers skip the line and keep going.
var (
	ErrTruncated = errors.New("index line has no hash separator")
	ErrBadHash   = errors.New("index line hash mismatch")
	ErrBadJSON   = errors.New("index line is not a valid entry")
)

// Record is what we serialize into a bucket.  A nil Integrity is a
// tombstone.
type Record struct {
	Key       string          `json:"key"`
	Integrity *string         `json:"integrity"`
	Time      int64           `json:"time"`
	Size      int64           `json:"size,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Encode returns the bucket line for rec:
//
//	"\n" + hex(sha1(payload)) + "\t" + payload
//
// The leading newline means a torn write never glues two entries
// together; the next complete entry always starts after a fresh
// newline.  JSON escapes newlines inside strings, so the payload itself
// never contains one.
func Encode(rec *Record) (line string, err error) {
	buf, err := json.Marshal(rec)
	if err != nil {
		return
	}
	payload := string(buf)
	return "\n" + HashEntry(payload) + "\t" + payload, nil
}

// Decode parses one line, without its leading newline.
func Decode(line string) (rec *Record, err error) {
	i := strings.IndexByte(line, '\t')
	if i < 0 {
		return nil, ErrTruncated
	}
	hash, payload := line[:i], line[i+1:]
	if HashEntry(payload) != hash {
		return nil, ErrBadHash
	}
	rec = &Record{}
	err = json.Unmarshal([]byte(payload), rec)
	if err != nil {
		return nil, errors.Wrap(ErrBadJSON, err.Error())
	}
	return
}
