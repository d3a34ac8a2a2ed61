package core

import "errors"

// Caller errors. They are deterministic functions of the input and are never
// retried.
var (
	// ErrInvalidFormat: non-digit characters or a length outside 19-22.
	ErrInvalidFormat = errors.New("invalid iccid format")

	// ErrLengthMismatch: start and end of a range differ in digit count.
	ErrLengthMismatch = errors.New("iccid length mismatch")

	// ErrEmptyOrInvertedRange: the end body precedes the start body.
	ErrEmptyOrInvertedRange = errors.New("empty or inverted range")

	// ErrBatchTooLarge: the range holds more ids than the configured ceiling.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrInvalidRequest: a required request field is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound: unknown batch id.
	ErrNotFound = errors.New("batch not found")
)

// Infrastructure errors.
var (
	// ErrDuplicateBatch: a batch with the same id is already stored. Stores
	// return it for primary key conflicts and it is never retried.
	ErrDuplicateBatch = errors.New("batch already exists")

	// ErrStorageUnavailable is returned once store retries are exhausted.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTooManyGenerations is returned when every generation slot stays
	// busy for longer than the configured wait. Clients should retry later.
	ErrTooManyGenerations = errors.New("too many concurrent generations, please try again later")
)

// IsCallerError reports whether err stems from bad input rather than from
// the system.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrEmptyOrInvertedRange) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNotFound)
}
