// Package status provides a thread-safe status tracker for the gateway
// daemon. It is read by HTTP handlers and feeds heartbeat events.
package status

import (
	"sync"
	"time"

	"github.com/orbtap/orb-gateway/internal/ledger"
	"github.com/orbtap/orb-gateway/internal/proximity"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ClaimThreshold  int
	NearThreshold   int
	ClaimCooldownMs int64
	NearCooldownMs  int64
	HeartbeatMs     int64
	Broker          string
	HTTPAddr        string
	DBPath          string
}

// SettleCounts tallies settlement outcomes since startup.
type SettleCounts struct {
	Earns    int
	Spends   int
	Rejected int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Zone          proximity.Zone // zone of the most recent classified sample
	LastOrb       string
	TrackedOrbs   int
	Samples       int64
	LastSampleAt  time.Time
	Counts        proximity.EventCounts
	Settles       SettleCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordSample updates the sample counters and classifier view.
// Called from runLoop on every classified sample.
func (t *Tracker) RecordSample(orb string, zone proximity.Zone, at time.Time, tracked int, counts proximity.EventCounts) {
	t.mu.Lock()
	t.snap.Zone = zone
	t.snap.LastOrb = orb
	t.snap.Samples++
	t.snap.LastSampleAt = at
	t.snap.TrackedOrbs = tracked
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordSettle tallies one settlement outcome.
func (t *Tracker) RecordSettle(direction ledger.Direction, rejected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rejected {
		t.snap.Settles.Rejected++
		return
	}
	switch direction {
	case ledger.DirectionEarn:
		t.snap.Settles.Earns++
	case ledger.DirectionSpend:
		t.snap.Settles.Spends++
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
