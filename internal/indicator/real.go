//go:build linux

package indicator

import (
	"fmt"

	"github.com/orbtap/orb-gateway/internal/proximity"
	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives actual GPIO lines using the Linux GPIO character device.
type RealDriver struct {
	chip      *gpiocdev.Chip
	nearLine  *gpiocdev.Line
	claimLine *gpiocdev.Line
}

// NewRealDriver claims the indicator lines as outputs, both low.
func NewRealDriver(chipName string, pinNear, pinClaim int) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	nearLine, err := chip.RequestLine(pinNear, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request near pin %d: %w", pinNear, err)
	}

	claimLine, err := chip.RequestLine(pinClaim, gpiocdev.AsOutput(0))
	if err != nil {
		nearLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request claim pin %d: %w", pinClaim, err)
	}

	return &RealDriver{
		chip:      chip,
		nearLine:  nearLine,
		claimLine: claimLine,
	}, nil
}

// SetZone drives the indicator lines for the given zone.
func (d *RealDriver) SetZone(zone proximity.Zone) error {
	near, claim := lineLevels(zone)

	if err := d.nearLine.SetValue(near); err != nil {
		return fmt.Errorf("set near pin: %w", err)
	}
	if err := d.claimLine.SetValue(claim); err != nil {
		return fmt.Errorf("set claim pin: %w", err)
	}
	return nil
}

// Close drives both lines low, reconfigures them to inputs matching the Pi
// boot defaults, and releases GPIO resources.
func (d *RealDriver) Close() error {
	var errs []error

	for name, line := range map[string]*gpiocdev.Line{
		"near":  d.nearLine,
		"claim": d.claimLine,
	} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s pin: %w", name, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
