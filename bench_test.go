package pitcache

import (
	"fmt"
	"testing"
)

func benchCache(b *testing.B) *Cache {
	c, err := Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	return c
}

func BenchmarkPut(b *testing.B) {
	c := benchCache(b)
	for n := 0; n < b.N; n++ {
		val := []byte(fmt.Sprint(n))
		_, err := c.Put(fmt.Sprint(n), val, PutOpts{})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPutSame(b *testing.B) {
	c := benchCache(b)
	val := []byte("foo")
	for n := 0; n < b.N; n++ {
		_, err := c.Put("foo", val, PutOpts{})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPutGet(b *testing.B) {
	c := benchCache(b)
	for n := 0; n < b.N; n++ {
		key := fmt.Sprint(n)
		_, err := c.Put(key, []byte(key), PutOpts{})
		if err != nil {
			b.Fatal(err)
		}
		_, err = c.Get(key, GetOpts{})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetMemoized(b *testing.B) {
	c := benchCache(b)
	_, err := c.Put("k", []byte("value"), PutOpts{Memoize: true})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, err = c.Get("k", GetOpts{Memoize: true})
		if err != nil {
			b.Fatal(err)
		}
	}
}
