package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts cycle timing endpoints on the given mux under
// /debug/. These routes are for localhost/Tailscale access only.
func (s *CycleStats) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("cycle-stats", "Control cycle timing summary", http.HandlerFunc(s.handleSummary))
	debug.Handle("cycle-chart", "Control cycle timing chart", http.HandlerFunc(s.handleChart))
}

func (s *CycleStats) handleSummary(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Summarize())
}

// handleChart renders a line chart (HTML) of recent cycle durations.
// Query params:
//   - limit (optional; default 1000) number of recent cycles to plot
func (s *CycleStats) handleChart(w http.ResponseWriter, req *http.Request) {
	limit := 1000
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50000 {
			limit = n
		}
	}

	micros := s.RecentMicros(limit)
	summary := s.Summarize()

	x := make([]string, len(micros))
	y := make([]opts.LineData, len(micros))
	for i, v := range micros {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Control Cycle Timing", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Control Cycle Duration",
			Subtitle: fmt.Sprintf("cycles=%d overruns=%d p50=%.1fµs p99=%.1fµs", summary.Count, summary.Overruns, summary.P50, summary.P99),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (µs)", NameLocation: "middle", NameGap: 45}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(x).AddSeries("cycle µs", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
