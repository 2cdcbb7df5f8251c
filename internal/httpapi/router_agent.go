package httpapi

import "net/http"

func (r *router) handleAgentStart(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Listener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "listener control is unavailable"})
		return
	}
	started := r.deps.Listener.Start()
	if started {
		r.deps.Logger.Info("listener started via api")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_running": r.deps.Listener.Running(),
		"started":    started,
	})
}

func (r *router) handleAgentStop(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Listener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "listener control is unavailable"})
		return
	}
	stopped := r.deps.Listener.Stop()
	if stopped {
		r.deps.Logger.Info("listener stopped via api")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_running": r.deps.Listener.Running(),
		"stopped":    stopped,
	})
}

func (r *router) handleAgentStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	isRunning := false
	if r.deps.Listener != nil {
		isRunning = r.deps.Listener.Running()
	}
	clientConnected := false
	if r.deps.Connection != nil {
		clientConnected = r.deps.Connection.Connected()
	}

	payload := map[string]any{
		"is_running":       isRunning,
		"client_connected": clientConnected,
	}
	if r.deps.Metrics != nil {
		payload["metrics"] = r.deps.Metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, payload)
}
