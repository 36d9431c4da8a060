package negotiation

import "errors"

// Sentinel errors for negotiation operations.
var (
	// ErrRoundNotFound indicates the round ID does not exist.
	ErrRoundNotFound = errors.New("round not found")

	// ErrRoundExists indicates a round ID collision on create.
	ErrRoundExists = errors.New("round already exists")

	// ErrRoundClosed indicates an operation against a round that no
	// longer accepts selections.
	ErrRoundClosed = errors.New("round is closed")

	// ErrRoundAlreadyOpen indicates the case already has an open round.
	ErrRoundAlreadyOpen = errors.New("case already has an open round")

	// ErrNoOptions indicates an attempt to open a round without any
	// selectable options.
	ErrNoOptions = errors.New("round has no options")

	// ErrUnknownOption indicates the option ID is not part of the round.
	// Option IDs from earlier rounds of the same case fail with this too.
	ErrUnknownOption = errors.New("unknown option for round")

	// ErrRevisionConflict indicates a lost compare-and-swap race on a
	// round write.
	ErrRevisionConflict = errors.New("round revision conflict")
)
