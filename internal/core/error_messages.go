package core

// # Error Codes Reference
//
// Codes are quoted by users to support staff. Sentinel errors are matched
// first with errors.Is; anything else falls through to case-insensitive
// substring patterns over the error text (driver messages mostly).
//
// # Generation (GEN001-GEN099)
//
//	GEN001 - Invalid format: not 19-22 digits
//	GEN002 - Length mismatch: start and end differ in length
//	GEN003 - Inverted range: end precedes start
//	GEN004 - Batch too large: range exceeds the configured ceiling
//	GEN005 - Generation timed out
//
// # Batches (BAT001-BAT099)
//
//	BAT001 - Batch not found
//	BAT002 - System busy: every generation slot is taken
//	BAT003 - Batch id already stored
//
// # Storage (STO001-STO099)
//
//	STO001 - Storage unavailable after retries
//	STO002 - Connection refused or reset
//	STO003 - Storage timeout
//
// # Requests (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Invalid request body or parameters
//
//	RATE001 - Rate limited
//	ERR000  - Anything else. Check the logs for the technical error.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is checked in order with errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrInvalidFormat, UserMessage{
		Message: "ICCID must be 19 to 22 digits",
		Action:  "Check the identifier for typos or missing digits",
		Code:    "GEN001",
	}},
	{ErrLengthMismatch, UserMessage{
		Message: "Start and end ICCID have different lengths",
		Action:  "Use two identifiers with the same number of digits",
		Code:    "GEN002",
	}},
	{ErrEmptyOrInvertedRange, UserMessage{
		Message: "End ICCID comes before start ICCID",
		Action:  "Swap the start and end identifiers",
		Code:    "GEN003",
	}},
	{ErrBatchTooLarge, UserMessage{
		Message: "Range is larger than the maximum batch size",
		Action:  "Split the range into several smaller batches",
		Code:    "GEN004",
	}},
	{ErrNotFound, UserMessage{
		Message: "Batch not found",
		Action:  "The batch may have been deleted. Refresh the batch list",
		Code:    "BAT001",
	}},
	{ErrTooManyGenerations, UserMessage{
		Message: "System is busy generating other batches",
		Action:  "Please wait a moment and try again",
		Code:    "BAT002",
	}},
	{ErrDuplicateBatch, UserMessage{
		Message: "A batch with this id already exists",
		Action:  "Refresh the batch list before trying again",
		Code:    "BAT003",
	}},
	{ErrStorageUnavailable, UserMessage{
		Message: "Storage is temporarily unavailable",
		Action:  "Please try again in a few moments",
		Code:    "STO001",
	}},
	{ErrInvalidRequest, UserMessage{
		Message: "Request is missing required fields or is malformed",
		Action:  "Check the request body and try again",
		Code:    "REQ002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is matched with strings.Contains; the first hit wins, so
// specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "generation timed out",
		msg: UserMessage{
			Message: "Batch generation took too long",
			Action:  "Try a smaller range",
			Code:    "GEN005",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to storage",
			Action:  "Please try again in a few moments",
			Code:    "STO002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Storage connection was interrupted",
			Action:  "Please try again",
			Code:    "STO002",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "STO003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "STO003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Sentinels
// win over text patterns; unmatched errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
