// Package indicator drives the gateway's zone indicator lines with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package indicator

import "github.com/orbtap/orb-gateway/internal/proximity"

// Driver reflects the current zone on the indicator lines.
type Driver interface {
	// SetZone drives the lines for the given zone. The near line is high
	// in NEAR and CLAIM, the claim line only in CLAIM.
	SetZone(zone proximity.Zone) error

	// Close drives both lines low and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinNear  = 26
	PinClaim = 27
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// lineLevels maps a zone to (near, claim) line levels.
func lineLevels(zone proximity.Zone) (int, int) {
	switch zone {
	case proximity.ZoneClaim:
		return 1, 1
	case proximity.ZoneNear:
		return 1, 0
	default:
		return 0, 0
	}
}
