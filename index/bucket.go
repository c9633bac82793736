package index

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Version names the index subtree under a cache root.
const Version = "index-v5"

// Dir returns the root of the index subtree.
func Dir(root string) string {
	return filepath.Join(root, Version)
}

// BucketPath returns the bucket file that holds entries for key.  The
// key is hashed, never used as a path component, so any string works:
// empty, binary, or longer than the filesystem allows for a name.
func BucketPath(root, key string) string {
	hashed := bucketHash(key)
	return filepath.Join(Dir(root), hashed[0:2], hashed[2:4], hashed[4:])
}

// bucketHash is swapped out in tests to force collisions.
var bucketHash = HashKey

// HashKey returns the hex sha256 of key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashEntry returns the consistency hash of one serialized entry.
func HashEntry(payload string) string {
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
