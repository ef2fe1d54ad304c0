package account

import (
	"errors"
	"fmt"
)

// ErrInvalidPrincipal is returned for account identifiers that are not well formed.
var ErrInvalidPrincipal = errors.New("custody: invalid account identifier")

const (
	minPrincipalLen = 2
	maxPrincipalLen = 64
)

// Principal is an opaque account identifier, for example "alice.custody".
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// Validate reports whether p is a well-formed account identifier.
//
// A valid identifier is 2 to 64 characters of lowercase letters and digits
// grouped into parts joined by a single '-', '_' or '.'.
func (p Principal) Validate() error {
	s := string(p)
	if len(s) < minPrincipalLen || len(s) > maxPrincipalLen {
		return fmt.Errorf("%w: %q: length must be between %d and %d", ErrInvalidPrincipal, s, minPrincipalLen, maxPrincipalLen)
	}

	prevSep := true // a leading separator is as bad as a doubled one
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '-' || c == '_' || c == '.':
			if prevSep {
				return fmt.Errorf("%w: %q: unexpected %q at %d", ErrInvalidPrincipal, s, c, i)
			}
			prevSep = true
		default:
			return fmt.Errorf("%w: %q: invalid character %q at %d", ErrInvalidPrincipal, s, c, i)
		}
	}
	if prevSep {
		return fmt.Errorf("%w: %q: trailing separator", ErrInvalidPrincipal, s)
	}

	return nil
}

// IsValid is Validate without the error detail.
func (p Principal) IsValid() bool { return p.Validate() == nil }
