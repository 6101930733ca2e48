package domain

import "errors"

// ErrInvalidConfig is returned when a strategy configuration cannot start a run.
var ErrInvalidConfig = errors.New("invalid config")
