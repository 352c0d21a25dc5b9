package planner

import "fmt"

// ConfigError reports machine limits the planner cannot work with. It is
// fatal: the caller has to fix the profile, the planner never guesses a
// replacement value.
type ConfigError struct {
	Field string
	Value float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid machine limit %s=%g (must be > 0)", e.Field, e.Value)
}

func configErrorf(field string, value float64) error {
	return &ConfigError{Field: field, Value: value}
}
