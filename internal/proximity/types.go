// Package proximity contains pure classification logic for orb signal zones.
// This package has NO external dependencies (no radio, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package proximity

import (
	"errors"
	"time"
)

// Zone represents a discretized proximity bucket for a tracked peer.
type Zone string

const (
	ZoneIdle  Zone = "IDLE"
	ZoneNear  Zone = "NEAR"
	ZoneClaim Zone = "CLAIM"
)

// Sample is one raw signal-strength reading delivered by the radio layer.
type Sample struct {
	PeerID   string
	Strength int // dBm-like, higher = closer
	Time     time.Time
}

// Event represents a zone transition to be published.
type Event struct {
	Timestamp time.Time
	PeerID    string
	Zone      Zone
	Strength  int
}

// TrackedPeer holds notification state for one peer currently being
// monitored. Peers exist only for the monitoring session and are never
// persisted.
type TrackedPeer struct {
	PeerID   string
	LastZone Zone
	// Last time a NEAR event was emitted for this peer (zero = never)
	LastNearAt time.Time
	// Last time a CLAIM event was emitted for this peer (zero = never)
	LastClaimAt time.Time
	// Last time any sample arrived for this peer
	LastActivity time.Time
	// Creation order, breaks eviction ties
	seq uint64
}

// EventCounts tracks the number of emitted events per zone since startup.
type EventCounts struct {
	Near  int
	Claim int
}

// Config holds the classifier thresholds and bounds. Different beacon
// hardware has different radio characteristics, so none of these are
// hardcoded.
type Config struct {
	// Strength at or above this is CLAIM. Must be above NearThreshold.
	ClaimThreshold int
	// Strength at or above this (and below ClaimThreshold) is NEAR.
	NearThreshold int
	// Minimum gap between two CLAIM emissions for one peer.
	ClaimCooldown time.Duration
	// Minimum gap between two NEAR emissions for one peer.
	NearCooldown time.Duration
	// Bound on concurrently tracked peers.
	MaxPeers int
	// Plausible sensor range; readings outside are clamped, not rejected.
	MinStrength int
	MaxStrength int
}

// Validate reports whether the configuration is internally consistent.
func (c Config) Validate() error {
	if c.ClaimThreshold <= c.NearThreshold {
		return errors.New("proximity: claim threshold must be above near threshold")
	}
	if c.ClaimCooldown <= 0 {
		return errors.New("proximity: claim cooldown must be positive")
	}
	if c.NearCooldown <= 0 {
		return errors.New("proximity: near cooldown must be positive")
	}
	if c.MaxPeers <= 0 {
		return errors.New("proximity: max peers must be positive")
	}
	if c.MinStrength >= c.MaxStrength {
		return errors.New("proximity: min strength must be below max strength")
	}
	return nil
}
