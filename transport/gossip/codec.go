package gossip

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/mileswatson/blockkey/core"
	"github.com/mileswatson/blockkey/hash"
)

// Codec turns a core.Broadcast[B] into bytes a Manager can Publish, and
// back. Every field that would otherwise be opaque to encoding/gob
// (hash.Hash, crypto.PublicKey, crypto.Signature) implements
// MarshalBinary/UnmarshalBinary for exactly this purpose, so gob's usual
// struct-reflection encoding covers a Broadcast without any bespoke wire
// format.
type Codec[B hash.Hashable[B]] struct{}

func (Codec[B]) Encode(b core.Broadcast[B]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("gossip: encode broadcast: %w", err)
	}
	return buf.Bytes(), nil
}

func (Codec[B]) Decode(data []byte) (core.Broadcast[B], error) {
	var b core.Broadcast[B]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return core.Broadcast[B]{}, fmt.Errorf("gossip: decode broadcast: %w", err)
	}
	return b, nil
}
