package core

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/mileswatson/blockkey/hash"
)

// ValueCache is a bounded off-heap cache of proposed values keyed by their
// content hash, so a replica that has already seen a value (e.g. as a
// proposal at an earlier round) does not need to re-receive its full
// encoding to re-propose or re-validate it. Mirrors the teacher's
// msgCache.values fastcache use.
type ValueCache[B hash.Hashable[B]] struct {
	cache  *fastcache.Cache
	decode func([]byte) (B, error)
	encode func(B) []byte
}

// NewValueCache creates a cache with the given max size in bytes.
func NewValueCache[B hash.Hashable[B]](maxBytes int, encode func(B) []byte, decode func([]byte) (B, error)) *ValueCache[B] {
	return &ValueCache[B]{
		cache:  fastcache.New(maxBytes),
		encode: encode,
		decode: decode,
	}
}

func (c *ValueCache[B]) Put(v B) {
	h := v.Hash().Digest()
	c.cache.Set(h[:], c.encode(v))
}

func (c *ValueCache[B]) Get(h hash.Hash[B]) (B, bool) {
	d := h.Digest()
	raw, ok := c.cache.HasGet(nil, d[:])
	if !ok {
		var zero B
		return zero, false
	}
	v, err := c.decode(raw)
	if err != nil {
		var zero B
		return zero, false
	}
	return v, true
}

func (c *ValueCache[B]) Reset() {
	c.cache.Reset()
}
