package config

// Error describes one invalid configuration value.
// Validate joins several of them with errors.Join.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Reason
	}
	return e.Field + ": " + e.Reason
}
