// Package contract implements the signed envelope every consensus message
// travels in: a piece of content bound to its signer and signing time.
package contract

import (
	"encoding/binary"
	"time"

	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

// Content is anything that can be wrapped in a Contract: it must be
// content-addressable so the contract's own hash can cover it.
type Content[T any] interface {
	hash.Hashable[T]
}

// Contract binds content to the identity that produced it and the instant
// it was produced. Verification recomputes hash(content) || be(timestamp)
// and checks the signature against signee; tampering with any field
// invalidates the signature.
type Contract[T Content[T]] struct {
	Signee    crypto.PublicKey
	Signature crypto.Signature
	Timestamp uint64 // wall-clock milliseconds
	Content   T
}

// Sign produces a Contract over content, signed by priv, stamped with the
// current wall-clock time in milliseconds.
func Sign[T Content[T]](priv crypto.PrivateKey, content T) Contract[T] {
	return signAt(priv, content, uint64(time.Now().UnixMilli()))
}

func signAt[T Content[T]](priv crypto.PrivateKey, content T, timestampMs uint64) Contract[T] {
	digest := signingDigest(content, timestampMs)
	return Contract[T]{
		Signee:    priv.PublicKey(),
		Signature: crypto.Sign(priv, digest),
		Timestamp: timestampMs,
		Content:   content,
	}
}

// Verify recomputes the signed digest from the contract's own fields and
// checks it against Signee. The core consumes only contracts for which
// this returns true; a transport is expected to reject invalid contracts
// before they ever reach the engine's incoming channel.
func (c Contract[T]) Verify() bool {
	digest := signingDigest(c.Content, c.Timestamp)
	return crypto.Verify(c.Signee, digest, c.Signature)
}

func signingDigest[T Content[T]](content T, timestampMs uint64) hash.Digest {
	contentHash := content.Hash()
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], timestampMs)
	payload := append(hash.DigestOf(contentHash), tsBytes[:]...)
	return crypto.Digest(payload)
}

// Hash content-addresses the contract itself, covering signee, signature,
// timestamp and content, per the nesting rule in package hash.
func (c Contract[T]) Hash() hash.Hash[Contract[T]] {
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], c.Timestamp)
	return hash.Composite[Contract[T]](
		c.Signee.Bytes(),
		c.Signature.Bytes(),
		tsBytes[:],
		hash.DigestOf(c.Content.Hash()),
	)
}
