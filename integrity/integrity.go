// Package integrity implements the algorithm-tagged digests used to
// address content in a cache.  The string form follows the
// subresource integrity convention: "<algo>-<base64 digest>", e.g.
// "sha512-yzd8ELD1piyANiWnmdnpCL5F...".
package integrity

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
	"syscall"

	"github.com/zeebo/blake3"
)

// DefaultAlgo is used whenever a caller doesn't name an algorithm.
const DefaultAlgo = "sha512"

var algos = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"blake3": func() hash.Hash { return blake3.New() },
}

// Integrity is an immutable digest value.  Two Integrity values that
// Match address byte-identical content.
type Integrity struct {
	Algo   string
	Digest []byte
}

// Algos returns the names of the supported hash algorithms, sorted.
func Algos() (names []string) {
	for name := range algos {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// NewHash returns a fresh hash engine for algo.
func NewHash(algo string) (h hash.Hash, err error) {
	if algo == "" {
		algo = DefaultAlgo
	}
	mk, ok := algos[algo]
	if !ok {
		err = fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
		return
	}
	return mk(), nil
}

// Hash returns the binary digest of buf.
func Hash(algo string, buf []byte) (binhash []byte, err error) {
	h, err := NewHash(algo)
	if err != nil {
		return
	}
	_, err = h.Write(buf)
	if err != nil {
		return
	}
	return h.Sum(nil), nil
}

// FromData computes the Integrity of buf.
func FromData(algo string, buf []byte) (in Integrity, err error) {
	if algo == "" {
		algo = DefaultAlgo
	}
	binhash, err := Hash(algo, buf)
	if err != nil {
		return
	}
	return Integrity{Algo: algo, Digest: binhash}, nil
}

// FromHex builds an Integrity from a hex digest such as the last
// component of a content path.
func FromHex(algo, hexhash string) (in Integrity, err error) {
	binhash, err := hex.DecodeString(hexhash)
	if err != nil {
		return
	}
	return Integrity{Algo: algo, Digest: binhash}, nil
}

// Parse decodes the string form.  Options after '?' are ignored.  If
// s holds several space-separated digests, the first one that parses
// wins.
func Parse(s string) (in Integrity, err error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		err = fmt.Errorf("%w: empty integrity", syscall.EINVAL)
		return
	}
	for _, field := range fields {
		in, err = parseOne(field)
		if err == nil {
			return
		}
	}
	return
}

func parseOne(s string) (in Integrity, err error) {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		err = fmt.Errorf("%w: malformed integrity: %q", syscall.EINVAL, s)
		return
	}
	algo, b64 := s[:i], s[i+1:]
	if _, ok := algos[algo]; !ok {
		err = fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
		return
	}
	digest, err := decode64(b64)
	if err != nil {
		err = fmt.Errorf("%w: malformed digest: %q", syscall.EINVAL, s)
		return
	}
	return Integrity{Algo: algo, Digest: digest}, nil
}

// decode64 is lenient about padding and alphabet.
func decode64(s string) (buf []byte, err error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		buf, err = enc.DecodeString(s)
		if err == nil {
			return
		}
	}
	return
}

// MustParse is Parse for constants in tests and examples.
func MustParse(s string) Integrity {
	in, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return in
}

func (in Integrity) String() string {
	if in.IsZero() {
		return ""
	}
	return in.Algo + "-" + base64.StdEncoding.EncodeToString(in.Digest)
}

// Hex returns the lowercase hex digest.
func (in Integrity) Hex() string {
	return hex.EncodeToString(in.Digest)
}

func (in Integrity) IsZero() bool {
	return in.Algo == "" && len(in.Digest) == 0
}

// Match reports whether in and other name the same digest.
func (in Integrity) Match(other Integrity) bool {
	return in.Algo == other.Algo && bytes.Equal(in.Digest, other.Digest)
}
