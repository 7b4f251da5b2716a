package transport

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mileswatson/blockkey/hash"
)

// Dedup suppresses re-delivery of a message this peer has already seen,
// keyed by its content hash. Mirrors go-ethereum's per-peer "known
// message" set, backed by a bounded LRU rather than an unbounded map so
// a long-running peer can't grow memory without limit.
type Dedup[T any] struct {
	seen *lru.Cache[hash.Digest, struct{}]
}

func NewDedup[T any](size int) *Dedup[T] {
	cache, err := lru.New[hash.Digest, struct{}](size)
	if err != nil {
		// Only returns an error for size <= 0, which is a caller bug.
		panic(err)
	}
	return &Dedup[T]{seen: cache}
}

// Seen reports whether digest has already been observed, recording it
// as seen if not. The first call for a given digest returns false.
func (d *Dedup[T]) Seen(digest hash.Digest) bool {
	if d.seen.Contains(digest) {
		return true
	}
	d.seen.Add(digest, struct{}{})
	return false
}
