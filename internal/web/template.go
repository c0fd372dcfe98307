package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/waggle-node/internal/frame"
	"github.com/sweeney/waggle-node/internal/status"
)

var flagNames = []struct {
	flag frame.Flags
	name string
}{
	{frame.FlagFirstBoot, "first-boot"},
	{frame.FlagClamped, "clamped"},
	{frame.FlagCounterStuck, "stuck"},
	{frame.FlagLowBattery, "low-battery"},
	{frame.FlagPrimarySensorError, "weight-error"},
	{frame.FlagSecondarySensorError, "env-error"},
}

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
	"flags": func(f frame.Flags) string {
		out := ""
		for _, fn := range flagNames {
			if f.Has(fn.flag) {
				if out != "" {
					out += " "
				}
				out += fn.name
			}
		}
		if out == "" {
			return "none"
		}
		return out
	},
	"laneClass": func(state string) string {
		switch state {
		case "IDLE":
			return "idle"
		case "COOLDOWN":
			return "cooldown"
		default:
			return "broken"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hive {{.Config.HiveID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.idle { color: #888; }
.broken { color: orange; font-weight: bold; }
.cooldown { color: green; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Hive {{.Config.HiveID}}</h1>

<h2>Lanes</h2>
<table>
{{range .Lanes}}<tr><th>Lane {{.Lane}}</th><td class="{{laneClass .State}}">{{.State}}</td></tr>
{{else}}<tr><th>Lanes</th><td>none enabled</td></tr>
{{end}}</table>

<h2>Traffic</h2>
<table>
<tr><th>In (total)</th><td>{{.TotalIn}}</td></tr>
<tr><th>Out (total)</th><td>{{.TotalOut}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}}</td></tr>
</table>

<h2>Last Cycle</h2>
<table>
{{with .LastCycle}}<tr><th>At</th><td>{{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sequence</th><td>{{.Sequence}}</td></tr>
<tr><th>In / Out</th><td>{{.BeesIn}} / {{.BeesOut}}</td></tr>
<tr><th>Period</th><td>{{.PeriodMs}}ms</td></tr>
<tr><th>Flags</th><td>{{flags .Flags}}</td></tr>
{{if .WriteErr}}<tr><th>Write</th><td class="error">{{.WriteErr}}</td></tr>{{end}}
{{else}}<tr><th>Status</th><td>waiting for first cycle</td></tr>
{{end}}</table>

<h2>Link</h2>
<table>
<tr><th>Serial</th><td class="{{if .LinkOpen}}connected{{else}}disconnected{{end}}">{{if .LinkOpen}}open{{else}}closed{{end}}</td></tr>
<tr><th>Port</th><td>{{.Config.SerialPort}}</td></tr>
<tr><th>Write errors</th><td>{{.WriteErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Collect</th><td>{{.Config.CollectIntervalMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.Timing.DebounceMs}}ms</td></tr>
<tr><th>Transit</th><td>{{.Config.Timing.MinTransitMs}}-{{.Config.Timing.MaxTransitMs}}ms</td></tr>
<tr><th>Payload</th><td>{{if .Config.Extended}}extended{{else}}basic{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs fields, not methods with arguments.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Lanes  []status.LaneJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Lanes:    status.ActiveLanes(snap),
	}
	indexTmpl.Execute(w, data)
}
