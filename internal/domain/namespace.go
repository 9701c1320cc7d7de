package domain

import "fmt"

// MaxNamespaceLength bounds namespace identifiers.
const MaxNamespaceLength = 128

// Namespace is a caller-scoped partition of the index and record store.
// The zero value is invalid; obtain one through NewNamespace.
type Namespace struct {
	name string
}

// NewNamespace validates a namespace identifier.
// Allowed characters: [a-zA-Z0-9_.@-]. ':' is reserved as the key separator
// and glob metacharacters would leak across partitions in SCAN patterns.
func NewNamespace(name string) (Namespace, error) {
	if name == "" {
		return Namespace{}, ErrNamespaceRequired
	}
	if len(name) > MaxNamespaceLength {
		return Namespace{}, fmt.Errorf("namespace longer than %d characters: %w", MaxNamespaceLength, ErrNamespaceRequired)
	}
	for _, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == '-' || r == '.' || r == '@'
		if !isAlpha && !isDigit && !isSpecial {
			return Namespace{}, fmt.Errorf("namespace %q contains invalid character %q: %w", name, r, ErrNamespaceRequired)
		}
	}
	return Namespace{name: name}, nil
}

// MustNamespace is NewNamespace that panics on error. Intended for tests and constants.
func MustNamespace(name string) Namespace {
	ns, err := NewNamespace(name)
	if err != nil {
		panic(err)
	}
	return ns
}

// String returns the namespace identifier.
func (n Namespace) String() string { return n.name }

// IsZero reports whether the namespace was never validated.
func (n Namespace) IsZero() bool { return n.name == "" }
