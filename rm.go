package pitcache

import (
	"os"
	"path/filepath"

	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/content"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/index"
	"github.com/t7a/pitcache/integrity"
)

// RmEntry appends a tombstone for key.  The content stays; other keys
// may still point at it.
func (c *Cache) RmEntry(key string) (err error) {
	c.Memo.Clear()
	return index.Delete(c.Dir, key, index.InsertOpts{Owner: c.owner()})
}

// RmContent removes the content addressed by digest.  Index entries
// pointing at it are left alone and will fail to resolve.
func (c *Cache) RmContent(digest string) (err error) {
	c.Memo.Clear()
	in, err := integrity.Parse(digest)
	if err != nil {
		return errs.NotFound(c.Dir, "", digest)
	}
	return content.Rm(c.Dir, in)
}

// RmAll removes every content and index subtree under the cache root,
// of any version.  Other files in the root are kept.
func (c *Cache) RmAll() (err error) {
	defer Return(&err)
	c.Memo.Clear()
	for _, pat := range []string{"content-*", "index-*"} {
		paths, err := filepath.Glob(filepath.Join(c.Dir, pat))
		Ck(err)
		for _, path := range paths {
			err = os.RemoveAll(path)
			Ck(err)
		}
	}
	return
}
