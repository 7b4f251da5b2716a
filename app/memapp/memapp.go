// Package memapp provides a reference in-memory implementation of
// core.App used by tests and the demo harness: blocks are opaque byte
// payloads, validators are a fixed weighted set, and commits are recorded
// in a slice rather than delivered anywhere durable.
package memapp

import (
	"sync"

	"github.com/mileswatson/blockkey/core"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
	"github.com/mileswatson/blockkey/internal/xlog"
)

// Block is the value type this reference App proposes: an opaque,
// content-addressed byte payload.
type Block []byte

func (b Block) Hash() hash.Hash[Block] { return hash.Sum[Block](b) }

// Validator is one entry of a fixed committee.
type Validator struct {
	Key    crypto.PrivateKey
	Weight uint64
}

// App is the reference implementation of core.App[Block]. The committee
// given to New stays in place until SetValidators replaces it.
type App struct {
	self       crypto.PrivateKey
	validators map[crypto.UserId]uint64
	order      []crypto.UserId // deterministic proposer rotation order
	log        xlog.Logger

	mu       sync.Mutex
	commits  []Block
	nextSeq  uint64
	watchers *ValidatorSetWatcher
	values   *core.ValueCache[Block]
}

// New constructs a reference App for self, given the full committee
// (which must include self).
func New(self crypto.PrivateKey, committee []Validator, log xlog.Logger) *App {
	validators := make(map[crypto.UserId]uint64, len(committee))
	order := make([]crypto.UserId, 0, len(committee))
	for _, v := range committee {
		id := v.Key.PublicKey().Hash()
		validators[id] = v.Weight
		order = append(order, id)
	}
	return &App{
		self:       self,
		validators: validators,
		order:      order,
		log:        log,
		watchers:   newValidatorSetWatcher(),
		values: core.NewValueCache[Block](
			4*1024*1024,
			func(b Block) []byte { return []byte(b) },
			func(raw []byte) (Block, error) { return Block(raw), nil },
		),
	}
}

func (a *App) Id() crypto.UserId { return a.self.PublicKey().Hash() }

func (a *App) Validators() map[crypto.UserId]uint64 {
	out := make(map[crypto.UserId]uint64, len(a.validators))
	for k, v := range a.validators {
		out[k] = v
	}
	return out
}

func (a *App) TotalVotes() uint64 {
	var total uint64
	for _, w := range a.validators {
		total += w
	}
	return total
}

// Proposer rotates through the committee in construction order, offset by
// round so that byzantine or crashed proposers are skipped over as
// consensus advances rounds.
func (a *App) Proposer(height, round uint64) crypto.UserId {
	if len(a.order) == 0 {
		return crypto.UserId{}
	}
	idx := (height + round) % uint64(len(a.order))
	return a.order[idx]
}

func (a *App) CreateBlock() Block {
	a.mu.Lock()
	a.nextSeq++
	block := Block([]byte{byte(a.nextSeq)})
	a.mu.Unlock()
	a.values.Put(block)
	return block
}

func (a *App) ValidateBlock(v Block) bool {
	if len(v) == 0 {
		return false
	}
	a.values.Put(v)
	return true
}

// GetBlock looks up a previously created or validated block by its
// content hash, e.g. to resolve a vote's Id back to the value it refers
// to.
func (a *App) GetBlock(h hash.Hash[Block]) (Block, bool) {
	return a.values.Get(h)
}

func (a *App) Commit(height uint64, v Block) {
	a.mu.Lock()
	a.commits = append(a.commits, v)
	a.mu.Unlock()
	if a.log != nil {
		a.log.Info("committed block", "height", height, "value", v.Hash().String())
	}
	a.watchers.notifyCommit(height)
}

func (a *App) PrivateKey() crypto.PrivateKey { return a.self }

// Commits returns every value committed so far, in height order.
func (a *App) Commits() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Block, len(a.commits))
	copy(out, a.commits)
	return out
}

// SetValidators replaces the committee, e.g. between heights. It also
// notifies any ValidatorSetWatcher registered via Watch.
func (a *App) SetValidators(committee []Validator) {
	validators := make(map[crypto.UserId]uint64, len(committee))
	order := make([]crypto.UserId, 0, len(committee))
	for _, v := range committee {
		id := v.Key.PublicKey().Hash()
		validators[id] = v.Weight
		order = append(order, id)
	}
	a.mu.Lock()
	a.validators = validators
	a.order = order
	a.mu.Unlock()
	a.watchers.notifyChange(validators)
}

// Watch returns a channel receiving the new validator set every time
// SetValidators is called.
func (a *App) Watch() <-chan map[crypto.UserId]uint64 {
	return a.watchers.subscribe()
}
