package core

// Status is a point-in-time, read-only snapshot of a replica's
// position: height, round, step and its locked/valid records. It backs
// the rpc package's introspection surface so a caller never touches
// the replica's own state directly or blocks its single driver
// goroutine.
type Status[B any] struct {
	Height uint64
	Round  uint64
	Step   Step
	Locked *Record[B]
	Valid  *Record[B]
}

// Status returns the most recently published snapshot. Safe to call
// from any goroutine; never blocks the driver loop.
func (t *Tendermint[B]) Status() Status[B] {
	if s := t.status.Load(); s != nil {
		return *s
	}
	return Status[B]{}
}

// publishStatus refreshes the snapshot Status reads. Called from the
// single driver goroutine after any state mutation.
func (t *Tendermint[B]) publishStatus() {
	t.status.Store(&Status[B]{
		Height: t.height,
		Round:  t.current.Round,
		Step:   t.current.Step,
		Locked: t.locked,
		Valid:  t.valid,
	})
}
