// Package otp generates and checks the one-time code that gates ride
// completion.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a numeric code of exactly `digits` digits, uniform over
// [10^(digits-1), 10^digits), drawn from a cryptographically strong source.
func Generate(digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", fmt.Errorf("otp: digits out of range: %d", digits)
	}
	low := pow10(digits - 1)
	if digits == 1 {
		low = 0
	}
	span := pow10(digits) - low
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()+low), nil
}

// Match reports whether submitted equals stored, byte for byte. No hashing,
// no expiry.
func Match(stored, submitted string) bool {
	return stored != "" && stored == submitted
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
