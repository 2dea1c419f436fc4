package api

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>StockWatch Monitor</title>
{{- if gt .RefreshSeconds 0}}
<meta http-equiv="refresh" content="{{.RefreshSeconds}}">
{{- end}}
<style>
body { font-family: sans-serif; max-width: 720px; margin: 40px auto; padding: 0 16px; background: #f5f6f8; }
.card { background: #fff; border-radius: 8px; padding: 20px 24px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
.running { color: #1a7f37; font-weight: bold; }
.enabled { color: #1a7f37; }
.disabled { color: #cf222e; }
dt { font-weight: bold; margin-top: 12px; }
code { background: #eef; padding: 2px 6px; border-radius: 4px; }
</style>
</head>
<body>
<div class="card">
<h1>StockWatch Monitor</h1>
<p class="running">&#9679; Running</p>
<dl>
<dt>Updates tracked</dt><dd>{{.UpdatesTracked}}</dd>
<dt>Telegram</dt><dd>{{if .TelegramEnabled}}<span class="enabled">ENABLED</span>{{else}}<span class="disabled">DISABLED</span>{{end}}</dd>
<dt>Check interval</dt><dd>{{.IntervalMinutes}} minutes</dd>
<dt>Target</dt><dd><a href="{{.SourceURL}}">{{.SourceURL}}</a></dd>
<dt>Last check</dt><dd>{{.LastCheck}}</dd>
{{- if gt .RefreshSeconds 0}}
<dt>Auto refresh</dt><dd>every {{.RefreshSeconds}} seconds</dd>
{{- end}}
</dl>
<h2>Uptime monitoring</h2>
<p>Point an uptime monitor at <code>{{.HealthURL}}</code> to keep the monitor awake.</p>
</div>
</body>
</html>
`))

type dashboardView struct {
	UpdatesTracked  int
	TelegramEnabled bool
	IntervalMinutes string
	SourceURL       string
	LastCheck       string
	RefreshSeconds  int
	HealthURL       string
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{
		UpdatesTracked:  s.count(r.Context()),
		TelegramEnabled: s.opts.TelegramEnabled,
		IntervalMinutes: formatMinutes(s.opts.Interval.Minutes()),
		SourceURL:       s.opts.SourceURL,
		LastCheck:       s.clock.Now().Format(lastCheckLayout),
		RefreshSeconds:  s.opts.RefreshSeconds,
		HealthURL:       s.opts.PublicURL + "/health",
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		s.logger.Error("render dashboard", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write dashboard", zap.Error(err))
	}
}

// formatMinutes drops the fraction for whole minutes so the default five
// minute interval reads "5" rather than "5.0".
func formatMinutes(m float64) string {
	if m == float64(int64(m)) {
		return strconv.FormatInt(int64(m), 10)
	}
	return strconv.FormatFloat(m, 'f', 1, 64)
}
