package integrity

import "hash"

// Hasher is an io.Writer that accumulates a digest and a byte count
// as data passes through it.
type Hasher struct {
	algo string
	hash hash.Hash
	n    int64
}

func NewHasher(algo string) (h *Hasher, err error) {
	if algo == "" {
		algo = DefaultAlgo
	}
	engine, err := NewHash(algo)
	if err != nil {
		return
	}
	return &Hasher{algo: algo, hash: engine}, nil
}

func (h *Hasher) Write(p []byte) (n int, err error) {
	n, err = h.hash.Write(p)
	h.n += int64(n)
	return
}

// Size is the number of bytes written so far.
func (h *Hasher) Size() int64 {
	return h.n
}

func (h *Hasher) Algo() string {
	return h.algo
}

// Sum returns the Integrity of everything written so far.
func (h *Hasher) Sum() Integrity {
	return Integrity{Algo: h.algo, Digest: h.hash.Sum(nil)}
}
