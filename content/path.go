package content

import (
	"path/filepath"

	"github.com/t7a/pitcache/integrity"
)

// Version names the content subtree under a cache root.  Bump it when
// the layout changes.
const Version = "content-v2"

// Depth is the number of two-character hex subdirectories between the
// algorithm directory and the content file.  Two levels of 256 give
// 65,536 leaf directories, which keeps every directory small for any
// realistic cache.
const Depth = 2

// Dir returns the root of the content subtree.
func Dir(root string) string {
	return filepath.Join(root, Version)
}

// TmpDir holds in-flight writes.  It lives under the cache root so the
// final move never crosses a device boundary.
func TmpDir(root string) string {
	return filepath.Join(root, "tmp")
}

// Path returns the absolute path of the file holding the content
// addressed by in.  It is a pure function of its arguments.
func Path(root string, in integrity.Integrity) string {
	hexhash := in.Hex()
	parts := []string{Dir(root), in.Algo}
	rest := hexhash
	for i := 0; i < Depth && len(rest) > 2; i++ {
		parts = append(parts, rest[:2])
		rest = rest[2:]
	}
	parts = append(parts, rest)
	return filepath.Join(parts...)
}
