// Package errs defines the kinded errors surfaced by the cache.  Every
// *Error carries a code, the cache root, and the key or digest
// involved; Unwrap yields a sentinel so callers can use errors.Is.
package errs

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// error codes
const (
	ENOENT     = "ENOENT"
	EBADSIZE   = "EBADSIZE"
	EINTEGRITY = "EINTEGRITY"
)

var (
	ErrNotFound  error = syscall.ENOENT
	ErrBadSize         = errors.New("bad size")
	ErrIntegrity       = errors.New("integrity check failed")
)

type Error struct {
	Code     string
	Cache    string
	Key      string
	Digest   string
	Expected string
	Found    string
	Err      error
}

func (e *Error) Error() string {
	parts := []string{}
	switch e.Code {
	case ENOENT:
		parts = append(parts, "no such entry")
	case EBADSIZE:
		parts = append(parts, "bad data size")
	case EINTEGRITY:
		parts = append(parts, "integrity verification failed")
	default:
		parts = append(parts, e.Code)
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key %q", e.Key))
	}
	if e.Digest != "" && e.Digest != e.Expected {
		parts = append(parts, fmt.Sprintf("digest %s", e.Digest))
	}
	if e.Expected != "" || e.Found != "" {
		parts = append(parts, fmt.Sprintf("expected %s found %s", e.Expected, e.Found))
	}
	if e.Cache != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Cache))
	}
	msg := strings.Join(parts, ": ")
	if e.Err != nil && e.Code == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return Sentinel(e.Code)
}

// Sentinel returns the sentinel error for code, or nil for unknown
// codes.
func Sentinel(code string) error {
	switch code {
	case ENOENT:
		return ErrNotFound
	case EBADSIZE:
		return ErrBadSize
	case EINTEGRITY:
		return ErrIntegrity
	}
	return nil
}

func NotFound(cache, key, digest string) *Error {
	return &Error{Code: ENOENT, Cache: cache, Key: key, Digest: digest}
}

func BadSize(cache string, expected, found int64) *Error {
	return &Error{
		Code:     EBADSIZE,
		Cache:    cache,
		Expected: fmt.Sprint(expected),
		Found:    fmt.Sprint(found),
	}
}

func Integrity(cache, expected, found string) *Error {
	return &Error{
		Code:     EINTEGRITY,
		Cache:    cache,
		Digest:   expected,
		Expected: expected,
		Found:    found,
	}
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBadSize(err error) bool {
	return errors.Is(err, ErrBadSize)
}

func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}
