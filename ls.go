package pitcache

import (
	"context"

	"github.com/t7a/pitcache/index"
)

// Ls returns the current entry for every live key.
func (c *Cache) Ls() (entries map[string]*index.Entry, err error) {
	return index.Ls(c.Dir)
}

// LsStream walks the index in the background, sending each live entry
// on the returned channel in key order within each bucket.  Both
// channels are closed when the walk ends; at most one error is sent.
// Cancelling ctx stops the walk.
func (c *Cache) LsStream(ctx context.Context) (<-chan *index.Entry, <-chan error) {
	out := make(chan *index.Entry)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		err := index.Walk(c.Dir, func(e *index.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case out <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errc <- err
		}
	}()
	return out, errc
}
