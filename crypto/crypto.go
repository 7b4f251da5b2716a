// Package crypto wraps secp256k1 signing so the consensus engine can
// identify validators by public key and authenticate every message they
// broadcast.
package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec"

	"github.com/mileswatson/blockkey/hash"
)

// PublicKey identifies a validator. UserId is its content address and is
// what the rest of the engine uses as a validator identity.
type PublicKey struct {
	key *btcec.PublicKey
}

type UserId = hash.Hash[PublicKey]

func (p PublicKey) Hash() UserId {
	return hash.Sum[PublicKey](p.key.SerializeCompressed())
}

func (p PublicKey) Bytes() []byte { return p.key.SerializeCompressed() }

func (p PublicKey) Equal(other PublicKey) bool {
	return p.key.IsEqual(other.key)
}

// MarshalBinary and UnmarshalBinary let a PublicKey travel inside a
// gob-encoded value (e.g. contract.Contract, core.Broadcast) despite its
// key field being unexported.
func (p PublicKey) MarshalBinary() ([]byte, error) {
	return p.key.SerializeCompressed(), nil
}

func (p *PublicKey) UnmarshalBinary(data []byte) error {
	key, err := btcec.ParsePubKey(data, btcec.S256())
	if err != nil {
		return err
	}
	p.key = key
	return nil
}

// PrivateKey signs on behalf of a single validator.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// GenerateKey creates a fresh validator identity.
func GenerateKey() (PrivateKey, error) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes reconstructs a key from its raw scalar, e.g. loaded
// from a config file.
func PrivateKeyFromBytes(b []byte) PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), b)
	return PrivateKey{key: key}
}

func (p PrivateKey) PublicKey() PublicKey {
	return PublicKey{key: p.key.PubKey()}
}

// Signature is a detached ECDSA signature over a Digest.
type Signature struct {
	bytes []byte
}

func (s Signature) Bytes() []byte { return s.bytes }

// MarshalBinary and UnmarshalBinary let a Signature travel inside a
// gob-encoded value (e.g. contract.Contract, core.Broadcast); the DER
// encoding already carried in bytes round-trips as-is.
func (s Signature) MarshalBinary() ([]byte, error) {
	return s.bytes, nil
}

func (s *Signature) UnmarshalBinary(data []byte) error {
	s.bytes = append([]byte(nil), data...)
	return nil
}

// Sign signs digest as given, without hashing it again; callers hash
// their message first (e.g. with Digest) and pass the resulting
// hash.Digest.
func Sign(priv PrivateKey, digest hash.Digest) Signature {
	sig, err := priv.key.Sign(digest[:])
	if err != nil {
		// btcec.Sign only fails on a malformed key, which GenerateKey and
		// PrivateKeyFromBytes never produce.
		panic(err)
	}
	return Signature{bytes: sig.Serialize()}
}

// Verify checks that sig is a valid signature by pub over digest.
func Verify(pub PublicKey, digest hash.Digest, sig Signature) bool {
	parsed, err := btcec.ParseDERSignature(sig.bytes, btcec.S256())
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], pub.key)
}

// Digest is a convenience for hashing an arbitrary byte payload with the
// same function the rest of the engine uses for content addressing.
func Digest(b []byte) hash.Digest {
	return sha256.Sum256(b)
}
