package fleet

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/decay-simulator/model"
)

var (
	// ErrSatelliteNotFound indicates the ID is not (or no longer) in the registry.
	ErrSatelliteNotFound = errors.New("satellite not found")
	// ErrInvalidTimeScale indicates a time scale outside AllowedTimeScales.
	// It wraps model.ErrInvalidConfiguration.
	ErrInvalidTimeScale = fmt.Errorf("%w: invalid time scale", model.ErrInvalidConfiguration)
)
