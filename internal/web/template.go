package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/orbtap/orb-gateway/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"zoneOrUnknown": func(z string) string {
		if z == "" {
			return "UNKNOWN"
		}
		return z
	},
	"zoneClass": func(z string) string {
		switch z {
		case "CLAIM":
			return "claim"
		case "NEAR":
			return "near"
		case "IDLE":
			return "idle"
		default:
			return "unknown"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Orb Gateway</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.claim { color: green; font-weight: bold; }
.near { color: #c60; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Orb Gateway</h1>

<h2>Proximity</h2>
<table>
<tr><th>Zone</th><td id="zone" class="{{zoneClass (printf "%s" .Zone)}}">{{zoneOrUnknown (printf "%s" .Zone)}}</td></tr>
<tr><th>Last Orb</th><td>{{if .LastOrb}}{{.LastOrb}}{{else}}none{{end}}</td></tr>
<tr><th>Tracked Orbs</th><td>{{.TrackedOrbs}}</td></tr>
<tr><th>Samples</th><td>{{.Samples}}</td></tr>
<tr><th>Last Sample</th><td>{{if .LastSampleAt.IsZero}}never{{else}}{{.LastSampleAt.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>NEAR</th><td>{{.Counts.Near}}</td></tr>
<tr><th>CLAIM</th><td>{{.Counts.Claim}}</td></tr>
</table>

<h2>Settlements</h2>
<table>
<tr><th>Earns</th><td>{{.Settles.Earns}}</td></tr>
<tr><th>Spends</th><td>{{.Settles.Spends}}</td></tr>
<tr><th>Rejected</th><td>{{.Settles.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Claim Threshold</th><td>{{.Config.ClaimThreshold}} dBm</td></tr>
<tr><th>Near Threshold</th><td>{{.Config.NearThreshold}} dBm</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>DB</th><td>{{.Config.DBPath}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
