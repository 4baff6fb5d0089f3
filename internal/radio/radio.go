// Package radio receives orb signal strength readings over MQTT with
// abstraction for testing. The real implementation subscribes to the orb
// sample topic; the fake implementation delivers scripted readings.
package radio

import (
	"github.com/orbtap/orb-gateway/internal/proximity"
)

// Sampler delivers signal strength samples from orbs.
type Sampler interface {
	// Samples returns the channel readings arrive on. The channel is
	// closed when the sampler shuts down.
	Samples() <-chan proximity.Sample

	// Close tears down the subscription and closes the sample channel.
	Close() error
}
