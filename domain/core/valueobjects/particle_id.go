package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// ParticleID is a value object representing a unique particle identifier.
// IDs order lexically; the ordering is what makes pair enumeration and
// merge tie-breaks deterministic.
type ParticleID struct {
	value string
}

// NewParticleID creates a new random ParticleID
func NewParticleID() ParticleID {
	return ParticleID{value: uuid.New().String()}
}

// NewParticleIDFromString creates a ParticleID from an existing string
func NewParticleIDFromString(id string) (ParticleID, error) {
	if id == "" {
		return ParticleID{}, errors.New("particle ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ParticleID{}, errors.New("particle ID must be a valid UUID")
	}
	return ParticleID{value: id}, nil
}

// MustParticleID is NewParticleIDFromString for ids known to be valid.
func MustParticleID(id string) ParticleID {
	pid, err := NewParticleIDFromString(id)
	if err != nil {
		panic(err)
	}
	return pid
}

// String returns the string representation of the ParticleID
func (id ParticleID) String() string {
	return id.value
}

// Equals checks if two ParticleIDs are equal
func (id ParticleID) Equals(other ParticleID) bool {
	return id.value == other.value
}

// Less reports whether id sorts before other.
func (id ParticleID) Less(other ParticleID) bool {
	return id.value < other.value
}

// IsZero checks if the ParticleID is the zero value
func (id ParticleID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ParticleID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ParticleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("ParticleID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}
