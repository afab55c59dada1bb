package constants

// Scope selects which state directory a command reads from or writes to.
type Scope string

const (
	// ScopeLocal uses <project root>/.fieldspace
	ScopeLocal Scope = "local"

	// ScopeGlobal uses ~/.fieldspace
	ScopeGlobal Scope = "global"
)

// Valid returns true if the scope is a recognized value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}
