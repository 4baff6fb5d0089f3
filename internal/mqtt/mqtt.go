// Package mqtt provides MQTT publishing and settle-request intake with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/orbtap/orb-gateway/internal/proximity"
)

// TopicSamples is the wildcard topic orbs publish raw signal readings to.
// The orb identifier is the third segment.
const TopicSamples = "loyalty/orbs/+/rssi"

// TopicEvents is the MQTT topic for zone transition events.
const TopicEvents = "loyalty/gateway/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "loyalty/gateway/system"

// TopicSettleRequests is the MQTT topic the gateway consumes ledger
// settlement requests from.
const TopicSettleRequests = "loyalty/gateway/settle/requests"

// TopicSettleResults is the MQTT topic settlement outcomes are published to.
const TopicSettleResults = "loyalty/gateway/settle/results"

// Publisher publishes gateway traffic to MQTT.
type Publisher interface {
	// Publish sends a zone transition event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event proximity.Event) error

	// PublishSettleResult sends a settlement outcome to the broker.
	PublishSettleResult(result SettleResult) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event
// (e.g., startup, shutdown, heartbeat, offline).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason    string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config    *SystemConfig
	Heartbeat *HeartbeatInfo
	Network   *NetworkInfo
	Retained  bool // Whether the message should be retained by the broker
}

// SystemConfig carries the active gateway configuration, published with
// startup events.
type SystemConfig struct {
	ClaimThreshold  int    `json:"claim_threshold"`
	NearThreshold   int    `json:"near_threshold"`
	ClaimCooldownMs int64  `json:"claim_cooldown_ms"`
	NearCooldownMs  int64  `json:"near_cooldown_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
}

// HeartbeatInfo carries liveness counters, published with heartbeat events.
type HeartbeatInfo struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	EventCounts   HeartbeatCounts `json:"event_counts"`
	Settles       SettleCounts    `json:"settles"`
	TrackedOrbs   int             `json:"tracked_orbs"`
}

// HeartbeatCounts tallies zone events emitted since startup.
type HeartbeatCounts struct {
	Near  int `json:"near"`
	Claim int `json:"claim"`
}

// SettleCounts tallies settlement outcomes since startup.
type SettleCounts struct {
	Earns    int `json:"earns"`
	Spends   int `json:"spends"`
	Rejected int `json:"rejected"`
}

// NetworkInfo describes the gateway's network attachment.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status,omitempty"`
	SSID       string `json:"ssid,omitempty"`
}

// Payload represents the MQTT message payload structure for zone events.
type Payload struct {
	Gateway GatewayPayload `json:"gateway"`
}

// GatewayPayload contains the zone event details.
type GatewayPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Orb       string `json:"orb"`
	Strength  int    `json:"strength"`
}

// FormatPayload creates the JSON payload for a zone transition event.
func FormatPayload(event proximity.Event) ([]byte, error) {
	payload := Payload{
		Gateway: GatewayPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Zone),
			Orb:       event.PeerID,
			Strength:  event.Strength,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Config    *SystemConfig  `json:"config,omitempty"`
	Heartbeat *HeartbeatInfo `json:"heartbeat,omitempty"`
	Network   *NetworkInfo   `json:"network,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
			Heartbeat: event.Heartbeat,
			Network:   event.Network,
		},
	}
	return json.Marshal(payload)
}
