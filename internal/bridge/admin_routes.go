package bridge

import (
	"encoding/json"
	"net/http"

	"tailscale.com/tsweb"
)

// bridgeStatus is the JSON shape of the /debug/bridge endpoint.
type bridgeStatus struct {
	ActivationID   string `json:"activation_id"`
	State          string `json:"state"`
	EffortJoints   int    `json:"effort_joints"`
	PositionJoints int    `json:"position_joints"`
	IMUs           int    `json:"imus"`
	ForceTorques   int    `json:"force_torques"`
	ApplyCommands  bool   `json:"apply_commands"`

	CommandsReceived   uint64 `json:"commands_received"`
	CommandsDropped    uint64 `json:"commands_dropped"`
	CommandDecodeErrs  uint64 `json:"command_decode_errs"`
	BlackboxQueueDrops uint64 `json:"blackbox_queue_drops"`
}

// AttachAdminRoutes mounts bridge debugging endpoints on the given mux under
// /debug/. These routes are for localhost/Tailscale access only.
func (b *Bridge) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("bridge", "Bridge activation status", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		status := bridgeStatus{
			ActivationID:   b.ActivationID,
			State:          b.state.String(),
			EffortJoints:   b.summary.EffortJoints,
			PositionJoints: b.summary.PositionJoints,
			IMUs:           b.summary.IMUs,
			ForceTorques:   b.summary.ForceTorques,
			ApplyCommands:  b.apply,
		}
		b.mu.Unlock()
		if b.opts.Receiver != nil {
			status.CommandsReceived, status.CommandsDropped, status.CommandDecodeErrs = b.opts.Receiver.Stats()
		}
		if b.opts.Recorder != nil {
			status.BlackboxQueueDrops = b.opts.Recorder.Dropped()
		}
		writeJSON(w, status)
	}))

	debug.Handle("commands", "Latched joint commands", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		store := b.Store()
		if store == nil {
			http.Error(w, "bridge not initialized", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, store.Snapshot())
	}))

	debug.Handle("telemetry", "Most recent cycle snapshots", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		snaps := b.lastSnapshots
		b.mu.Unlock()
		writeJSON(w, snaps)
	}))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
