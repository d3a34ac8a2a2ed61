// Package iccid validates, decodes and completes Integrated Circuit Card
// Identifiers (the numeric ids printed on SIM cards).
//
// An ICCID is a 19-22 digit string whose last digit is a Luhn check digit
// over the preceding digits (the body). Everything in this package is a pure
// function of its input.
package iccid

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Length bounds for a full identifier (body + check digit).
const (
	MinLength = 19
	MaxLength = 22

	MinBodyLength = MinLength - 1
	MaxBodyLength = MaxLength - 1
)

var (
	// ErrInvalidLength is returned when an identifier is outside 19-22 digits.
	ErrInvalidLength = errors.New("invalid length")

	// ErrNonDigit is returned when an identifier contains a non-decimal character.
	ErrNonDigit = errors.New("non-digit character")
)

// ICCID is a digit string whose shape (length and charset) has been checked.
// The zero value is not a valid identifier. Construct one with Validate or Complete.
type ICCID string

// Body returns every digit except the trailing check digit.
func (id ICCID) Body() string {
	if len(id) == 0 {
		return ""
	}
	return string(id[:len(id)-1])
}

// CheckDigit returns the trailing digit as an int.
func (id ICCID) CheckDigit() int {
	if len(id) == 0 {
		return 0
	}
	return int(id[len(id)-1] - '0')
}

// String implements fmt.Stringer.
func (id ICCID) String() string {
	return string(id)
}

// Validated is the result of Validate. LuhnValid reports whether the trailing
// digit matches the Luhn digit of Body; a mismatch is not an error.
type Validated struct {
	ICCID      ICCID
	Body       string
	CheckDigit int
	LuhnValid  bool
}

// Validate checks the structural shape of s and splits it into body and
// check digit. Length is checked before the charset.
func Validate(s string) (Validated, error) {
	if len(s) < MinLength || len(s) > MaxLength {
		return Validated{}, fmt.Errorf("%w: got %d digits, want %d-%d", ErrInvalidLength, len(s), MinLength, MaxLength)
	}
	if i := firstNonDigit(s); i >= 0 {
		return Validated{}, fmt.Errorf("%w: %q at position %d", ErrNonDigit, s[i], i+1)
	}

	id := ICCID(s)
	body := id.Body()
	return Validated{
		ICCID:      id,
		Body:       body,
		CheckDigit: id.CheckDigit(),
		LuhnValid:  luhnDigit(body) == id.CheckDigit(),
	}, nil
}

// Complete appends the Luhn check digit to body. The body must be 18-21 digits.
func Complete(body string) (ICCID, error) {
	if len(body) < MinBodyLength || len(body) > MaxBodyLength {
		return "", fmt.Errorf("%w: body has %d digits, want %d-%d", ErrInvalidLength, len(body), MinBodyLength, MaxBodyLength)
	}
	cd, err := ComputeCheckDigit(body)
	if err != nil {
		return "", err
	}
	return ICCID(body + string(rune('0'+cd))), nil
}

// Normalize removes the separators people type or scanners emit (spaces,
// dashes, dots) and reports whether anything was removed.
func Normalize(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '\t':
			return -1
		}
		return r
	}, trimmed)
	return cleaned, cleaned != s
}

// Head returns the first n bytes of s, shortened so a multi-byte character is
// never split. For digit strings it is s[:n].
func Head(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	return s != "" && firstNonDigit(s) < 0
}

func firstNonDigit(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return i
		}
	}
	return -1
}
