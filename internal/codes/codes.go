// Package codes issues the 4-digit access codes students read to the examiner.
package codes

import (
	"errors"
	"strconv"
)

const (
	MinCode = 1000
	MaxCode = 9999

	// MaxAttempts bounds how many draws Generate makes before giving up.
	// The code space holds 9000 values; hitting the bound means it is close
	// to saturated relative to this budget, not that it is full.
	MaxAttempts = 100
)

// ErrGenerationExhausted is returned when every draw collided with an existing code.
var ErrGenerationExhausted = errors.New("could not generate a unique session code")

// Rand is the randomness Generate draws from. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// Generate draws a uniformly random code in [MinCode, MaxCode] that is not in
// existing. It has no side effects beyond consuming r.
func Generate(r Rand, existing map[string]struct{}) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		code := strconv.Itoa(MinCode + r.IntN(MaxCode-MinCode+1))
		if _, taken := existing[code]; !taken {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

// IsValid reports whether s looks like an issued code.
func IsValid(s string) bool {
	if len(s) != 4 || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
