//go:build !linux

package indicator

import (
	"errors"

	"github.com/orbtap/orb-gateway/internal/proximity"
)

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string, pinNear, pinClaim int) (*RealDriver, error) {
	return nil, errors.New("indicator: not supported on this platform (requires Linux)")
}

// SetZone is not implemented on non-Linux platforms.
func (d *RealDriver) SetZone(zone proximity.Zone) error {
	return errors.New("indicator: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
