package exam

import "crypto/subtle"

// CheckSecret reports whether provided is exactly expected. Comparison is
// case-sensitive and runs in constant time for equal-length inputs. An empty
// expected secret never matches.
func CheckSecret(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
