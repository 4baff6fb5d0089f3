package proximity

import (
	"sync"
	"time"
)

// Classifier maps raw signal strength to zones and decides when a
// transition event may be emitted. Safe for concurrent use; calls for the
// same peer serialize on a single lock, which is fine at radio cadence.
type Classifier struct {
	cfg Config

	mu      sync.Mutex
	peers   map[string]*TrackedPeer
	nextSeq uint64
	counts  EventCounts
}

// NewClassifier creates a classifier with the given thresholds and bounds.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:   cfg,
		peers: make(map[string]*TrackedPeer, cfg.MaxPeers),
	}, nil
}

// Classify processes one sample and returns the target zone plus an event
// when that zone's cooldown allows one. A nil event means no notification.
// Out-of-range strength is clamped, never rejected: signal data is noisy
// and dropping it would stall zone detection.
func (c *Classifier) Classify(peerID string, strength int, now time.Time) (Zone, *Event) {
	strength = c.clamp(strength)

	c.mu.Lock()
	defer c.mu.Unlock()

	peer := c.lookup(peerID, now)
	peer.LastActivity = now

	zone := c.zoneFor(strength)
	var ev *Event

	switch zone {
	case ZoneClaim:
		if cooldownElapsed(peer.LastClaimAt, c.cfg.ClaimCooldown, now) {
			peer.LastClaimAt = now
			// Claiming implies near is also satisfied; refresh it so the
			// peer does not fire a duplicate NEAR right after.
			peer.LastNearAt = now
			c.counts.Claim++
			ev = &Event{Timestamp: now, PeerID: peerID, Zone: ZoneClaim, Strength: strength}
		}
	case ZoneNear:
		if cooldownElapsed(peer.LastNearAt, c.cfg.NearCooldown, now) {
			peer.LastNearAt = now
			c.counts.Near++
			ev = &Event{Timestamp: now, PeerID: peerID, Zone: ZoneNear, Strength: strength}
		}
	}

	peer.LastZone = zone
	return zone, ev
}

// lookup returns the tracked peer for peerID, creating it on first
// sighting. Creation beyond capacity evicts the least-recently-active
// peer first, so tracking stays bounded under uncontrolled radio noise.
func (c *Classifier) lookup(peerID string, now time.Time) *TrackedPeer {
	if p, ok := c.peers[peerID]; ok {
		return p
	}

	if len(c.peers) >= c.cfg.MaxPeers {
		c.evictOldest()
	}

	c.nextSeq++
	p := &TrackedPeer{
		PeerID:       peerID,
		LastZone:     ZoneIdle,
		LastActivity: now,
		seq:          c.nextSeq,
	}
	c.peers[peerID] = p
	return p
}

// evictOldest removes the peer with the lowest last-activity timestamp,
// breaking ties toward the earliest created.
func (c *Classifier) evictOldest() {
	var victim *TrackedPeer
	for _, p := range c.peers {
		if victim == nil ||
			p.LastActivity.Before(victim.LastActivity) ||
			(p.LastActivity.Equal(victim.LastActivity) && p.seq < victim.seq) {
			victim = p
		}
	}
	if victim != nil {
		delete(c.peers, victim.PeerID)
	}
}

// zoneFor applies the ordered threshold comparison; the highest satisfied
// threshold wins.
func (c *Classifier) zoneFor(strength int) Zone {
	switch {
	case strength >= c.cfg.ClaimThreshold:
		return ZoneClaim
	case strength >= c.cfg.NearThreshold:
		return ZoneNear
	default:
		return ZoneIdle
	}
}

func (c *Classifier) clamp(strength int) int {
	if strength < c.cfg.MinStrength {
		return c.cfg.MinStrength
	}
	if strength > c.cfg.MaxStrength {
		return c.cfg.MaxStrength
	}
	return strength
}

// cooldownElapsed reports whether an emission is allowed. A zero last
// timestamp means the peer has never been notified for that zone, so the
// first crossing always fires.
func cooldownElapsed(last time.Time, cooldown time.Duration, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= cooldown
}

// TrackedPeers returns the number of peers currently tracked.
func (c *Classifier) TrackedPeers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

// Counts returns the emitted event counts since startup.
func (c *Classifier) Counts() EventCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}
