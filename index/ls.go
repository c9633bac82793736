package index

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
)

// Ls returns the current entry of every live key in the index.  A
// missing index yields an empty map.
func Ls(root string) (entries map[string]*Entry, err error) {
	entries = make(map[string]*Entry)
	err = Walk(root, func(e *Entry) error {
		entries[e.Key] = e
		return nil
	})
	return
}

// Walk calls fn once for each live key, bucket by bucket.  Within a
// bucket the last entry for each key wins and tombstoned keys are
// skipped.  If fn returns an error, Walk stops and returns it.
func Walk(root string, fn func(*Entry) error) (err error) {
	buckets, err := bucketFiles(Dir(root))
	if err != nil {
		return
	}
	for _, bucket := range buckets {
		recs, err := readBucket(bucket)
		if err != nil {
			return err
		}

		// collapse by key, not by bucket: colliding keys share files
		latest := make(map[string]*Record)
		for _, rec := range recs {
			latest[rec.Key] = rec
		}
		keys := make([]string, 0, len(latest))
		for key := range latest {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			rec := latest[key]
			if rec.Integrity == nil {
				continue
			}
			e := rec.entry(root)
			if e.Size == 0 && e.Path != "" {
				if info, err := os.Stat(e.Path); err == nil {
					e.Size = info.Size()
				}
			}
			err = fn(e)
			if err != nil {
				return err
			}
		}
	}
	return
}

// bucketFiles lists the regular files at bucket depth under dir.
// Anything else found in the index tree is ignored.
func bucketFiles(dir string) (buckets []string, err error) {
	level1, err := readDirs(dir)
	if err != nil {
		return
	}
	for _, d1 := range level1 {
		level2, err := readDirs(d1)
		if err != nil {
			return nil, err
		}
		for _, d2 := range level2 {
			infos, err := ioutil.ReadDir(d2)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, err
			}
			for _, info := range infos {
				if info.Mode().IsRegular() {
					buckets = append(buckets, filepath.Join(d2, info.Name()))
				}
			}
		}
	}
	return
}

// readDirs returns the subdirectories of dir.  A missing dir has none;
// it may have been removed by a concurrent rm.
func readDirs(dir string) (dirs []string, err error) {
	infos, err := ioutil.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return
	}
	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, filepath.Join(dir, info.Name()))
		}
	}
	return
}
