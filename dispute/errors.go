package dispute

import "errors"

// Sentinel errors for case operations. API handlers map these to HTTP
// status codes, so they must be stable and matchable with errors.Is.
var (
	// ErrCaseNotFound is returned when a case ID resolves to nothing.
	ErrCaseNotFound = errors.New("case not found")

	// ErrCaseExists is returned when creating a case with a taken ID.
	ErrCaseExists = errors.New("case already exists")

	// ErrInvalidTransition is returned when the target stage is not an
	// allowed successor of the current stage. The case is left unchanged.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrCaseClosed is returned for operations on a case in a terminal
	// stage (settled, rejected, or forwarded to court).
	ErrCaseClosed = errors.New("case is closed")

	// ErrRevisionConflict is returned by the store when a compare-and-swap
	// write lost a race. Callers re-read and retry.
	ErrRevisionConflict = errors.New("case revision conflict")

	// ErrUnknownParty is returned when a party ID is not on the case roster.
	ErrUnknownParty = errors.New("unknown party")

	// ErrStatementsClosed is returned when submitting a statement outside
	// the statement-collection stage.
	ErrStatementsClosed = errors.New("statement collection is closed")
)
