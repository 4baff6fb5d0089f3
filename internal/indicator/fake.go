package indicator

import "github.com/orbtap/orb-gateway/internal/proximity"

// FakeDriver is a test double that records zone changes.
type FakeDriver struct {
	// Zones contains every zone passed to SetZone, in order.
	Zones []proximity.Zone

	// SetError, if set, will be returned by SetZone.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver for testing.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// SetZone records the zone.
func (f *FakeDriver) SetZone(zone proximity.Zone) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Zones = append(f.Zones, zone)
	return nil
}

// Current returns the most recently set zone, or IDLE if none was set.
func (f *FakeDriver) Current() proximity.Zone {
	if len(f.Zones) == 0 {
		return proximity.ZoneIdle
	}
	return f.Zones[len(f.Zones)-1]
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded zones.
func (f *FakeDriver) Reset() {
	f.Zones = nil
	f.SetError = nil
	f.Closed = false
}
