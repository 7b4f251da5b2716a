package core

import (
	"github.com/pkg/errors"

	"github.com/mileswatson/blockkey/contract"
)

// Run drives the replica: it seeds round 0, then alternates between
// servicing the next timeout to fire and the next incoming broadcast,
// re-evaluating the rule battery to a fixpoint after every append. Run
// is the only goroutine that touches the replica's state; there is no
// concurrency within a single replica.
func (t *Tendermint[B]) Run() error {
	defer t.timeouts.Stop()

	if err := t.startRound(0); err != nil {
		return errors.Wrap(err, "starting round 0")
	}

	for {
		select {
		case tag := <-t.timeouts.Next():
			if err := t.handleTimeout(tag); err != nil {
				return errors.Wrap(err, "handling timeout")
			}

		case b, ok := <-t.incoming:
			if !ok {
				return errors.Wrap(ErrIncomingClosed, "driver loop")
			}
			t.log.Add(b)
			t.recordEvidence(b)
			if err := t.runRules(); err != nil {
				return errors.Wrap(err, "evaluating rule battery")
			}
		}
	}
}

func (t *Tendermint[B]) recordEvidence(b Broadcast[B]) {
	if b.Proposal == nil {
		return
	}
	p := b.Proposal.Content
	t.evidence.ObserveProposal(p.Height, p.Round, b.Proposal.Signee.Hash(), p.Value.Hash())
}

func (t *Tendermint[B]) handleTimeout(tag TimeoutTag) error {
	switch tag.Kind {
	case TimeoutPropose:
		return t.handleProposeTimeout(tag.Height, tag.Round)
	case TimeoutPrevote:
		return t.handlePrevoteTimeout(tag.Height, tag.Round)
	case TimeoutPrecommit:
		return t.handlePrecommitTimeout(tag.Height, tag.Round)
	default:
		return nil
	}
}

func (t *Tendermint[B]) handleProposeTimeout(height, round uint64) error {
	if t.height != height || t.current.Round != round || t.current.Step != StepPropose {
		return nil
	}
	vote := NewVote[B](height, round, nil)
	signed := contract.Sign(t.app.PrivateKey(), vote)
	if err := t.broadcast(BroadcastPrevote(signed)); err != nil {
		return err
	}
	t.current.Step = StepPrevote
	return t.runRules()
}

func (t *Tendermint[B]) handlePrevoteTimeout(height, round uint64) error {
	if t.height != height || t.current.Round != round || t.current.Step != StepPrevote {
		return nil
	}
	vote := NewVote[B](height, round, nil)
	signed := contract.Sign(t.app.PrivateKey(), vote)
	if err := t.broadcast(BroadcastPrecommit(signed)); err != nil {
		return err
	}
	t.current.Step = StepPrecommit
	return t.runRules()
}

func (t *Tendermint[B]) handlePrecommitTimeout(height, round uint64) error {
	if t.height != height || t.current.Round != round {
		return nil
	}
	if err := t.startRound(round + 1); err != nil {
		return err
	}
	return t.runRules()
}
