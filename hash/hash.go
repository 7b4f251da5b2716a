// Package hash provides a generic, content-addressed digest type used
// throughout the consensus engine to identify proposals, contracts and
// validator keys by their SHA-256 digest.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Digest is the fixed-size output of the hash function used across the
// engine. The standard library is kept here deliberately: the wire format
// mandates SHA-256 specifically, and no third-party package in the
// available stack offers anything beyond what crypto/sha256 already does.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) Bytes() []byte {
	out := make([]byte, len(d))
	copy(out, d[:])
	return out
}

// Hash is a typed digest: Hash[T] identifies a value of type T without
// retaining the value itself. Two values hash equal iff Hashable.Hash()
// produces the same Digest for both.
type Hash[T any] struct {
	digest Digest
}

func Of[T any](d Digest) Hash[T] { return Hash[T]{digest: d} }

func (h Hash[T]) Digest() Digest  { return h.digest }
func (h Hash[T]) String() string  { return h.digest.String() }
func (h Hash[T]) IsZero() bool    { return h.digest == Digest{} }

// MarshalBinary and UnmarshalBinary let a Hash[T] travel inside a
// gob-encoded value (e.g. contract.Contract, core.Broadcast) despite its
// digest field being unexported.
func (h Hash[T]) MarshalBinary() ([]byte, error) {
	return h.digest.Bytes(), nil
}

func (h *Hash[T]) UnmarshalBinary(data []byte) error {
	if len(data) != len(h.digest) {
		return fmt.Errorf("hash: unmarshal binary: want %d bytes, got %d", len(h.digest), len(data))
	}
	copy(h.digest[:], data)
	return nil
}

// Hashable is implemented by any value that can be content-addressed.
type Hashable[T any] interface {
	Hash() Hash[T]
}

// Sum hashes a flat byte slice directly.
func Sum[T any](b []byte) Hash[T] {
	return Of[T](sha256.Sum256(b))
}

// Composite hashes a value that is built from several already-hashable
// fields. Each field is folded in as the digest of its own encoding rather
// than its raw bytes, and length-prefixed, so that no ambiguity can arise
// from concatenating fields of variable length (e.g. "ab"+"c" vs "a"+"bc"
// would otherwise collide). This resolves the nesting rule left open by
// the original specification: hash the digest of each field, not its raw
// bytes, before folding it into the parent's hasher.
func Composite[T any](fields ...[]byte) Hash[T] {
	h := sha256.New()
	for _, f := range fields {
		fieldDigest := sha256.Sum256(f)
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(fieldDigest)))
		h.Write(lenBuf[:])
		h.Write(fieldDigest[:])
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return Of[T](d)
}

// DigestOf returns the raw digest bytes of an already-computed nested
// Hash[U] as a field for Composite, so a parent's hash can depend on the hash of a
// child value rather than on the child's full encoding.
func DigestOf[U any](h Hash[U]) []byte {
	return h.digest.Bytes()
}
