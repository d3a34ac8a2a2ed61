package iccid

import "fmt"

// ComputeCheckDigit returns the Luhn check digit for body.
//
// Digits are walked right to left; the rightmost body digit and every second
// digit after it are doubled, and doubled values above 9 have 9 subtracted.
// The result is (10 - sum mod 10) mod 10.
func ComputeCheckDigit(body string) (int, error) {
	if i := firstNonDigit(body); i >= 0 {
		return 0, fmt.Errorf("%w: %q at position %d", ErrNonDigit, body[i], i+1)
	}
	return luhnDigit(body), nil
}

// AppendCheckDigit writes body followed by its check digit into dst.
// body must already be known to contain only digits.
func AppendCheckDigit(dst []byte, body []byte) []byte {
	dst = append(dst, body...)
	return append(dst, byte('0'+luhnDigit(body)))
}

// luhnDigit assumes body holds only ASCII digits.
func luhnDigit[T ~string | ~[]byte](body T) int {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
