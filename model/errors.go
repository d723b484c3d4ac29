package model

import "errors"

// ErrInvalidConfiguration is returned when an injection parameter, body or
// environment value is out of range. Such values never reach the propagation
// core.
var ErrInvalidConfiguration = errors.New("invalid configuration")
