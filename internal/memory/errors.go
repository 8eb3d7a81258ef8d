package memory

import "errors"

// Sentinel errors for memory operations.
var (
	// ErrFactNotFound indicates the requested fact does not exist for the user.
	ErrFactNotFound = errors.New("memory: fact not found")

	// ErrStoreUnavailable wraps any backend failure surfaced on explicit CRUD.
	ErrStoreUnavailable = errors.New("memory: store unavailable")

	// ErrMalformedOutput indicates extractor output could not be parsed.
	ErrMalformedOutput = errors.New("memory: malformed extractor output")

	// ErrInvalidFact indicates a fact is missing required fields.
	ErrInvalidFact = errors.New("memory: invalid fact")
)
