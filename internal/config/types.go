package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a UTC calendar day written as YYYY-MM-DD.
type Date struct {
	time.Time
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Date.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", value.Line)
	}
	if value.Value == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value.Value, time.UTC)
	if err != nil {
		return fmt.Errorf("line %d: date %q is not YYYY-MM-DD", value.Line, value.Value)
	}
	d.Time = t
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Date.
func (d Date) MarshalYAML() (any, error) {
	if d.IsZero() {
		return "", nil
	}
	return d.UTC().Format(time.DateOnly), nil
}
