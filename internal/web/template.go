package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/magnet-door/internal/status"
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
	"door": status.DoorString,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Magnet Door</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.allowed { color: green; font-weight: bold; }
.denied { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.pending { color: orange; }
</style>
</head>
<body>
<h1>Magnet Door</h1>

<h2>Room</h2>
<table>
<tr><th>Door</th><td id="door">{{door .DoorOpen}}</td></tr>
<tr><th>Persons</th><td id="persons" class="{{if .Occupancy.Full}}denied{{else}}allowed{{end}}">{{.Occupancy.PersonCount}} / {{.Occupancy.Capacity}}</td></tr>
<tr><th>Entrance</th><td id="entrance">{{if and .DoorOpen (not .Occupancy.Full)}}allowed{{else}}denied{{end}}</td></tr>
<tr><th>Passage</th><td>{{.PassState}}</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td>{{.LastEvent.Type}} at {{.LastEvent.Time.UTC.Format "15:04:05"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Link</th><td class="{{if eq (printf "%s" .Link) "ONLINE"}}connected{{else if eq (printf "%s" .Link) "RECONNECTING"}}pending{{else}}disconnected{{end}}">{{.Link}}</td></tr>
{{if .SSID}}<tr><th>WiFi</th><td>{{.SSID}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Telemetry</th><td>{{.Telemetry.URL}}{{if .Telemetry.Breaker}} ({{.Telemetry.Breaker}}){{end}}</td></tr>
{{if .Telemetry.LastErr}}<tr><th>Last error</th><td>{{.Telemetry.LastErr}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Entered</th><td>{{.Counts.Entered}}</td></tr>
<tr><th>Left</th><td>{{.Counts.Left}}</td></tr>
<tr><th>Rejected</th><td>{{.Counts.Rejected}}</td></tr>
<tr><th>Underflow</th><td>{{.Counts.Underflow}}</td></tr>
<tr><th>Anomalies</th><td>{{.Counts.Anomalies}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Door debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Post interval</th><td>{{.Config.PostIntervalMs}}ms</td></tr>
<tr><th>Connection timeout</th><td>{{.Config.ConnTimeoutMs}}ms</td></tr>
<tr><th>Settings store</th><td>{{.Config.StoreDriver}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var persons = document.getElementById("persons");
  var door = document.getElementById("door");
  var entrance = document.getElementById("entrance");
  setInterval(function() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      var room = j.status.room;
      persons.textContent = room.person_count + " / " + room.capacity;
      persons.className = room.full ? "denied" : "allowed";
      door.textContent = j.status.door;
      entrance.textContent = (j.status.door === "OPEN" && !room.full) ? "allowed" : "denied";
    }).catch(function() {});
  }, 2000);
})();
</script>
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
