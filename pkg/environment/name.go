package environment

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength is the maximum number of characters in an environment name.
const MaxNameLength = 64

// namePattern restricts names to a letter followed by letters, digits,
// hyphens and underscores. Names never start with a digit so they are safe
// as file names, Terraform workspace names, and Ansible inventory hosts.
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Name is a validated environment identifier. The zero value is invalid;
// construct one with NewName.
type Name struct {
	value string
}

// NewName validates raw and returns it as a Name. Validation failures are
// returned as *InvalidNameError.
func NewName(raw string) (Name, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Name{}, &InvalidNameError{Raw: raw, Reason: "name is empty"}
	}
	if len(trimmed) > MaxNameLength {
		return Name{}, &InvalidNameError{
			Raw:    raw,
			Reason: fmt.Sprintf("name exceeds %d characters", MaxNameLength),
		}
	}
	if !namePattern.MatchString(trimmed) {
		return Name{}, &InvalidNameError{
			Raw:    raw,
			Reason: "name must start with a letter and contain only letters, digits, '-' and '_'",
		}
	}
	return Name{value: strings.ToLower(trimmed)}, nil
}

// MustName is like NewName but panics on invalid input. Intended for tests
// and compiled-in defaults.
func MustName(raw string) Name {
	n, err := NewName(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the normalized (lower-cased) name.
func (n Name) String() string {
	return n.value
}

// IsZero reports whether the name was never constructed through NewName.
func (n Name) IsZero() bool {
	return n.value == ""
}

// Equal reports whether two names identify the same environment.
// Normalization happens in NewName, so comparison is a plain string match.
func (n Name) Equal(other Name) bool {
	return n.value == other.value
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, re-validating the
// stored representation so corrupt records are rejected on load.
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := NewName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// InvalidNameError reports a rejected environment name.
type InvalidNameError struct {
	// Raw is the input as supplied by the caller.
	Raw string

	// Reason is a human-readable description of the violation.
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid environment name %q: %s", e.Raw, e.Reason)
}
