package pitcache

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/content"
	"github.com/t7a/pitcache/index"
	"github.com/t7a/pitcache/integrity"
	"github.com/t7a/pitcache/internal/fsutil"
	"github.com/t7a/pitcache/memo"
)

// ConfigFile lives in the cache root, beside the content and index
// subtrees.
const ConfigFile = "config.json"

// Config is persisted by Create and loaded by Open.
type Config struct {
	// Algo is the default hash algorithm for new content.
	Algo string `json:"algo"`
}

// Cache is a handle on one cache root.  A Cache is safe for concurrent
// use as long as its fields aren't changed.
type Cache struct {
	Dir  string
	Algo string
	// Uid and Gid, when non-negative and running as root, are applied
	// to every file and directory the cache creates.  Open sets both to
	// -1; a zero Cache leaves ownership alone too.
	Uid  int
	Gid  int
	Memo *memo.Memo
	Log  logrus.FieldLogger
}

type ExistsError struct {
	Dir string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("cache already initialized: %s", e.Dir)
}

// Open returns a Cache for dir, creating dir if needed.  If dir holds a
// config file, its settings are used.
func Open(dir string) (c *Cache, err error) {
	defer Return(&err)

	dir = filepath.Clean(dir)
	err = fsutil.MkdirFix(dir, fsutil.NoOwner)
	Ck(err)

	c = &Cache{
		Dir:  dir,
		Algo: integrity.DefaultAlgo,
		Uid:  -1,
		Gid:  -1,
		Memo: memo.New(),
		Log:  logrus.StandardLogger(),
	}

	buf, err := ioutil.ReadFile(filepath.Join(dir, ConfigFile))
	if os.IsNotExist(err) {
		return c, nil
	}
	Ck(err)
	var conf Config
	err = json.Unmarshal(buf, &conf)
	Ck(err)
	if conf.Algo != "" {
		_, err = integrity.NewHash(conf.Algo)
		Ck(err)
		c.Algo = conf.Algo
	}
	return
}

// Create initializes dir with conf and opens it.
func Create(dir string, conf Config) (c *Cache, err error) {
	defer Return(&err)

	if conf.Algo == "" {
		conf.Algo = integrity.DefaultAlgo
	}
	_, err = integrity.NewHash(conf.Algo)
	Ck(err)

	fn := filepath.Join(dir, ConfigFile)
	if fsutil.Exists(fn) {
		return nil, &ExistsError{Dir: dir}
	}
	err = fsutil.MkdirFix(dir, fsutil.NoOwner)
	Ck(err)
	buf, err := json.Marshal(conf)
	Ck(err)
	err = renameio.WriteFile(fn, buf, 0644)
	Ck(err)

	return Open(dir)
}

func (c *Cache) owner() fsutil.Owner {
	if c.Uid == 0 && c.Gid == 0 {
		return fsutil.NoOwner
	}
	return fsutil.Owner{Uid: c.Uid, Gid: c.Gid}
}

func (c *Cache) algo(requested string) string {
	if requested != "" {
		return requested
	}
	return c.Algo
}

// ContentPath returns where the content for digest would live.
func (c *Cache) ContentPath(digest string) (path string, err error) {
	in, err := integrity.Parse(digest)
	if err != nil {
		return
	}
	return content.Path(c.Dir, in), nil
}

// BucketPath returns the index bucket that holds key.
func (c *Cache) BucketPath(key string) string {
	return index.BucketPath(c.Dir, key)
}
