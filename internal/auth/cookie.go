// Package auth generates the per-iteration authorization cookie shared by the
// display server and the session controller.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// CookieSize is the length of an MIT-MAGIC-COOKIE-1 value in bytes.
const CookieSize = 16

// Cookie is an opaque, unguessable display authorization secret.
type Cookie []byte

// Generate returns a fresh cookie read from the system CSPRNG.
func Generate() (Cookie, error) {
	c := make(Cookie, CookieSize)
	if _, err := rand.Read(c); err != nil {
		return nil, fmt.Errorf("failed to read random cookie: %w", err)
	}
	return c, nil
}

// Equal compares two cookies in constant time.
func (c Cookie) Equal(other Cookie) bool {
	return len(c) == len(other) && subtle.ConstantTimeCompare(c, other) == 1
}

// String redacts the value so cookies never end up in logs.
func (c Cookie) String() string {
	if len(c) == 0 {
		return "<empty>"
	}
	return "<redacted>"
}
