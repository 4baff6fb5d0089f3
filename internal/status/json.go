package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Zone          string       `json:"zone"`
	LastOrb       string       `json:"last_orb,omitempty"`
	TrackedOrbs   int          `json:"tracked_orbs"`
	Samples       int64        `json:"samples"`
	LastSampleAt  string       `json:"last_sample_at,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Settles       SettlesJSON  `json:"settles"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of zone event counts.
type CountsJSON struct {
	Near  int `json:"near"`
	Claim int `json:"claim"`
}

// SettlesJSON is the JSON representation of settlement counts.
type SettlesJSON struct {
	Earns    int `json:"earns"`
	Spends   int `json:"spends"`
	Rejected int `json:"rejected"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ClaimThreshold  int    `json:"claim_threshold"`
	NearThreshold   int    `json:"near_threshold"`
	ClaimCooldownMs int64  `json:"claim_cooldown_ms"`
	NearCooldownMs  int64  `json:"near_cooldown_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	DBPath          string `json:"db_path"`
}

func buildInner(snap Snapshot) StatusInner {
	zone := string(snap.Zone)
	if zone == "" {
		zone = "UNKNOWN"
	}

	inner := StatusInner{
		Zone:          zone,
		LastOrb:       snap.LastOrb,
		TrackedOrbs:   snap.TrackedOrbs,
		Samples:       snap.Samples,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Near:  snap.Counts.Near,
			Claim: snap.Counts.Claim,
		},
		Settles: SettlesJSON{
			Earns:    snap.Settles.Earns,
			Spends:   snap.Settles.Spends,
			Rejected: snap.Settles.Rejected,
		},
		Config: ConfigJSON{
			ClaimThreshold:  snap.Config.ClaimThreshold,
			NearThreshold:   snap.Config.NearThreshold,
			ClaimCooldownMs: snap.Config.ClaimCooldownMs,
			NearCooldownMs:  snap.Config.NearCooldownMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			DBPath:          snap.Config.DBPath,
		},
	}
	if !snap.LastSampleAt.IsZero() {
		inner.LastSampleAt = snap.LastSampleAt.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
