package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// UUID is the canonical (lowercase, dashed) string form of a 128-bit identifier.
type UUID string

// MustParseUUID parses s or panics.
func MustParseUUID(s string) UUID {
	id, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewUUID creates a random UUID.
func NewUUID() UUID {
	return UUID(uuid.New().String())
}

// ParseUUID parses s and returns it in canonical form.
// Both dashed and 32-char hex representations are accepted.
func ParseUUID(s string) (UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return UUID(parsed.String()), nil
}

// String returns the dashed representation.
func (u UUID) String() string {
	return string(u)
}

// Hex returns the identifier as 32 lowercase hex characters without separators.
// Stream names are built from this form.
func (u UUID) Hex() string {
	return strings.ToLower(strings.ReplaceAll(string(u), "-", ""))
}

// IsZero reports whether the UUID is unset.
func (u UUID) IsZero() bool {
	return u == ""
}

// FromGoogleUUID converts a google/uuid value.
func FromGoogleUUID(id uuid.UUID) UUID {
	return UUID(id.String())
}

// ToGoogleUUID converts to a google/uuid value.
func (u UUID) ToGoogleUUID() (uuid.UUID, error) {
	return uuid.Parse(string(u))
}
