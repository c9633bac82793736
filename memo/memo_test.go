package memo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t7a/pitcache/index"
)

func TestPutGet(t *testing.T) {
	m := New()
	entry := &index.Entry{Key: "my-key", Integrity: "sha512-deadbeef"}
	m.Put("/cache", entry, []byte("foobarbaz"))

	item, ok := m.Get("/cache", "my-key")
	require.True(t, ok)
	assert.Equal(t, entry, item.Entry)
	assert.Equal(t, []byte("foobarbaz"), item.Data)

	data, ok := m.GetByDigest("/cache", "sha512-deadbeef")
	require.True(t, ok)
	assert.Equal(t, []byte("foobarbaz"), data)

	// roots are separate namespaces
	_, ok = m.Get("/other", "my-key")
	assert.False(t, ok)
	_, ok = m.GetByDigest("/other", "sha512-deadbeef")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestPutDigest(t *testing.T) {
	m := New()
	m.PutDigest("/cache", "sha512-deadbeef", []byte("x"))
	_, ok := m.Get("/cache", "sha512-deadbeef")
	assert.False(t, ok)
	data, ok := m.GetByDigest("/cache", "sha512-deadbeef")
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), data)
}

func TestClear(t *testing.T) {
	m := New()
	m.Put("/a", &index.Entry{Key: "k", Integrity: "sha1-x"}, []byte("a"))
	m.Put("/b", &index.Entry{Key: "k", Integrity: "sha1-y"}, []byte("b"))
	assert.Equal(t, 4, m.Len())
	m.Clear()
	assert.Equal(t, 0, m.Len())
	_, ok := m.Get("/a", "k")
	assert.False(t, ok)
}

func TestConcurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key%d", i)
			m.Put("/cache", &index.Entry{Key: key, Integrity: key}, []byte(key))
			m.Get("/cache", key)
			if i%4 == 0 {
				m.Clear()
			}
		}(i)
	}
	wg.Wait()
	m.Put("/cache", &index.Entry{Key: "last", Integrity: "last"}, nil)
	_, ok := m.Get("/cache", "last")
	assert.True(t, ok)
}
