package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a lookup by exact identifier or name found nothing
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates a lookup expected to be unique matched several rows
	ErrAmbiguous = errors.New("ambiguous result")

	// ErrConstraintRace indicates a uniqueness violation on insert despite a prior existence check
	ErrConstraintRace = errors.New("already exists (constraint race)")

	// ErrFolderResolution indicates a log could not be attached to an owning folder
	ErrFolderResolution = errors.New("folder resolution failed")

	// ErrTransport indicates the remote could not be reached or answered with a non-200 status
	ErrTransport = errors.New("transport failure")

	// ErrMalformedResponse indicates the remote answered 200 with an undecodable body
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnsupported indicates an entry type that cannot be archived (e.g. remote audio)
	ErrUnsupported = errors.New("unsupported")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
