package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "invalid format", err: fmt.Errorf("%w: iccid_start: bad", ErrInvalidFormat), wantCode: "GEN001"},
		{name: "length mismatch", err: ErrLengthMismatch, wantCode: "GEN002"},
		{name: "inverted range", err: ErrEmptyOrInvertedRange, wantCode: "GEN003"},
		{name: "batch too large", err: fmt.Errorf("%w: 10000000 ids", ErrBatchTooLarge), wantCode: "GEN004"},
		{name: "generation timeout", err: fmt.Errorf("generation timed out: %w", context.DeadlineExceeded), wantCode: "GEN005"},
		{name: "not found", err: fmt.Errorf("get batch: %w", ErrNotFound), wantCode: "BAT001"},
		{name: "busy", err: ErrTooManyGenerations, wantCode: "BAT002"},
		{name: "duplicate batch", err: fmt.Errorf("%w: b1", ErrDuplicateBatch), wantCode: "BAT003"},
		{name: "sentinel beats pattern", err: fmt.Errorf("%w: save: dial tcp: connection refused", ErrStorageUnavailable), wantCode: "STO001"},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connection refused"), wantCode: "STO002"},
		{name: "bare deadline", err: context.DeadlineExceeded, wantCode: "STO003"},
		{name: "cancelled", err: context.Canceled, wantCode: "REQ001"},
		{name: "invalid request", err: ErrInvalidRequest, wantCode: "REQ002"},
		{name: "rate limit", err: errors.New("rate limit exceeded"), wantCode: "RATE001"},
		{name: "case insensitive", err: errors.New("CONNECTION RESET by peer"), wantCode: "STO002"},
		{name: "unknown", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := fmt.Errorf("%w: 22 vs 20 digits", ErrLengthMismatch)
	userErr := NewUserError(techErr)

	if userErr.Error() != "Start and end ICCID have different lengths" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, ErrLengthMismatch) {
		t.Error("Unwrap() should expose the sentinel")
	}
}
