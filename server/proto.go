package server

import (
	"encoding/json"
	"syscall"

	"github.com/alessio/shellescape"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/index"
)

type Op string

const (
	OpPut       Op = "put"
	OpGet       Op = "get"
	OpGetDigest Op = "get-digest"
	OpInfo      Op = "info"
	OpLs        Op = "ls"
	OpRm        Op = "rm"
	OpRmContent Op = "rm-content"
	OpRmAll     Op = "rm-all"
)

// codes for failures that aren't cache errors
const (
	EINVAL = "EINVAL"
	EFAIL  = "EFAIL"
)

// Request is one call from a client.  Fields an op doesn't use are
// ignored.
type Request struct {
	Op        Op     `msgpack:"op"`
	Key       string `msgpack:"key,omitempty"`
	Digest    string `msgpack:"digest,omitempty"`
	Data      []byte `msgpack:"data,omitempty"`
	Metadata  []byte `msgpack:"metadata,omitempty"`
	Algo      string `msgpack:"algo,omitempty"`
	Integrity string `msgpack:"integrity,omitempty"`
	Size      int64  `msgpack:"size,omitempty"`
	Memoize   bool   `msgpack:"memoize,omitempty"`
}

// Response answers a Request.  Code is empty on success.
type Response struct {
	Code      string         `msgpack:"code,omitempty"`
	Err       string         `msgpack:"err,omitempty"`
	Integrity string         `msgpack:"integrity,omitempty"`
	Data      []byte         `msgpack:"data,omitempty"`
	Entry     *index.Entry   `msgpack:"entry,omitempty"`
	Entries   []*index.Entry `msgpack:"entries,omitempty"`
}

// positional arguments of each op, in text form
var opArgs = map[Op][]string{
	OpPut:       {"key", "data"},
	OpGet:       {"key"},
	OpGetDigest: {"digest"},
	OpInfo:      {"key"},
	OpLs:        {},
	OpRm:        {"key"},
	OpRmContent: {"digest"},
	OpRmAll:     {},
}

// Parse turns a shell-quoted text command such as
//
//	put my-key 'some data' '{"a":1}'
//
// into a Request.  put takes an optional trailing JSON metadata
// argument.
func Parse(txt string) (req *Request, err error) {
	defer Return(&err)
	parts, err := shlex.Split(txt)
	Ck(err)
	ErrnoIf(len(parts) < 1, syscall.EINVAL, txt)
	op := Op(parts[0])
	names, ok := opArgs[op]
	ErrnoIf(!ok, syscall.EINVAL, parts[0])
	args := parts[1:]
	max := len(names)
	if op == OpPut {
		max++
	}
	ErrnoIf(len(args) < len(names) || len(args) > max, syscall.EINVAL, txt)

	req = &Request{Op: op}
	for i, name := range names {
		switch name {
		case "key":
			req.Key = args[i]
		case "digest":
			req.Digest = args[i]
		case "data":
			req.Data = []byte(args[i])
		}
	}
	if len(args) > len(names) {
		meta := args[len(names)]
		ErrnoIf(!json.Valid([]byte(meta)), syscall.EINVAL, meta)
		req.Metadata = []byte(meta)
	}
	return
}

// String renders req in the text form Parse accepts.
func (req *Request) String() string {
	parts := []string{string(req.Op)}
	for _, name := range opArgs[req.Op] {
		switch name {
		case "key":
			parts = append(parts, req.Key)
		case "digest":
			parts = append(parts, req.Digest)
		case "data":
			parts = append(parts, string(req.Data))
		}
	}
	if req.Op == OpPut && len(req.Metadata) > 0 {
		parts = append(parts, string(req.Metadata))
	}
	return shellescape.QuoteCommand(parts)
}

// Compare reports whether two requests carry the same call.
func (req *Request) Compare(other *Request) bool {
	return req.Op == other.Op &&
		req.Key == other.Key &&
		req.Digest == other.Digest &&
		string(req.Data) == string(other.Data) &&
		string(req.Metadata) == string(other.Metadata) &&
		req.Algo == other.Algo &&
		req.Integrity == other.Integrity &&
		req.Size == other.Size &&
		req.Memoize == other.Memoize
}

// RemoteError is a failure reported by the server.  Cache error codes
// unwrap to the matching errs sentinel.
type RemoteError struct {
	Code string
	Msg  string
}

func (e *RemoteError) Error() string {
	return e.Msg
}

func (e *RemoteError) Unwrap() error {
	if e.Code == EINVAL {
		return syscall.EINVAL
	}
	return errs.Sentinel(e.Code)
}

// errResponse encodes err for the wire.
func errResponse(err error) *Response {
	code := errs.Code(err)
	if code == "" {
		code = EFAIL
		if errors.Is(err, syscall.EINVAL) {
			code = EINVAL
		}
	}
	return &Response{Code: code, Err: err.Error()}
}
