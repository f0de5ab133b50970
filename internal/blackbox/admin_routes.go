package blackbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// logf is the package diagnostic logger, swappable for tests.
var logf func(format string, v ...interface{}) = log.Printf

// AttachAdminRoutes mounts blackbox debugging endpoints on the given mux
// under /debug/. These routes are for localhost/Tailscale access only.
func (r *Recorder) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("faults", "Recent safety fault events", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limit := 100
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		events, err := r.RecentFaults(limit)
		if err != nil {
			http.Error(w, "Failed to query fault events", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}))

	debug.Handle("effort-chart", "Measured vs commanded effort chart", http.HandlerFunc(r.handleEffortChart))

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://blackbox.db", r.db, &tailsql.DBOptions{
		Label: "Blackbox DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
}

// handleEffortChart renders a line chart (HTML) of recorded measured vs
// commanded effort for one joint.
// Query params:
//   - joint (required)
//   - start, end (optional; unix seconds, defaults to the last hour)
func (r *Recorder) handleEffortChart(w http.ResponseWriter, req *http.Request) {
	joint := req.URL.Query().Get("joint")
	if joint == "" {
		http.Error(w, "Missing joint parameter", http.StatusBadRequest)
		return
	}

	var startNanos, endNanos int64
	if s := req.URL.Query().Get("start"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			startNanos = parsed * 1e9
		}
	}
	if e := req.URL.Query().Get("end"); e != "" {
		if parsed, err := strconv.ParseInt(e, 10, 64); err == nil {
			endNanos = parsed * 1e9
		}
	}
	if endNanos == 0 {
		endNanos = time.Now().UnixNano()
	}
	if startNanos == 0 {
		startNanos = endNanos - int64(time.Hour)
	}

	samples, err := r.EffortSamples(joint, startNanos, endNanos)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query effort samples: %v", err), http.StatusInternalServerError)
		return
	}
	if len(samples) == 0 {
		http.Error(w, "no effort samples in range", http.StatusNotFound)
		return
	}

	x := make([]string, len(samples))
	measured := make([]opts.LineData, len(samples))
	commanded := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = time.Unix(0, s.TSUnixNanos).Format("15:04:05.000")
		measured[i] = opts.LineData{Value: s.Measured}
		commanded[i] = opts.LineData{Value: s.Commanded}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Joint Effort History", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Effort: %s", joint),
			Subtitle: fmt.Sprintf("samples=%d", len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "effort (Nm)", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(x).
		AddSeries("measured", measured).
		AddSeries("commanded", commanded)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
