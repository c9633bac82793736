package content

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache/integrity"
	"github.com/t7a/pitcache/internal/fsutil"
	"golang.org/x/sys/unix"
)

// Mirror makes the content addressed by in available under the target
// cache root.  It prefers a hard link and falls back to a full copy
// when the two roots can't share an inode (EXDEV and company).
func Mirror(source, target string, in integrity.Integrity, owner fsutil.Owner) (err error) {
	defer Return(&err)

	from := Path(source, in)
	to := Path(target, in)
	err = fsutil.MkdirFix(filepath.Dir(to), owner)
	Ck(err)

	err = link(from, to)
	if err == nil || os.IsExist(err) {
		return nil
	}
	if errors.Is(err, unix.EXDEV) {
		log.Debugf("mirror %s: cross-device, copying", to)
	} else {
		log.Debugf("mirror %s: link failed: %v, copying", to, err)
	}

	err = fsutil.CopyFile(to, from)
	Ck(err)
	err = owner.Chown(to)
	Ck(err)
	return
}
