package core

import "errors"

// Sentinel failures of the engine. Run returns only ErrIncomingClosed and
// ErrOutgoingClosed; the other three name conditions under which a
// message is dropped or contributes no weight, and Run does not return
// them. Callers compare with errors.Is; pkg/errors.Wrap is used at the
// call site so a sentinel keeps the stack frame of where it actually
// occurred without the sentinel itself needing to carry one.
var (
	// ErrIncomingClosed is returned when the incoming broadcast channel is
	// closed while the replica is still running.
	ErrIncomingClosed = errors.New("core: incoming channel closed")

	// ErrOutgoingClosed is returned when a broadcast could not be
	// delivered because the outgoing channel is closed.
	ErrOutgoingClosed = errors.New("core: outgoing channel closed")

	// ErrOutOfWindow marks a message whose height fell outside the
	// message log's current sliding window.
	ErrOutOfWindow = errors.New("core: message height out of window")

	// ErrInvalidContract marks a contract whose signature failed to
	// verify against its own content.
	ErrInvalidContract = errors.New("core: invalid contract signature")

	// ErrUnknownValidator marks a signer that is not a member of the
	// current validator set.
	ErrUnknownValidator = errors.New("core: unknown validator")
)
