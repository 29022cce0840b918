// Package httpapi exposes the connection registry and runtime
// manager over HTTP, mirroring backend/app/api/routers/*.py and
// backend/app/api/deps.py's singleton wiring.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/runtime"
	"github.com/Tomochka91/ULogger/internal/settings"
)

// Deps wires the façade to the two long-lived collaborators every
// router in the original depends on via get_settings_manager and
// get_runtime_manager.
type Deps struct {
	Store   *settings.Store
	Runtime *runtime.Manager
	Logger  common.LoggerInterface
}

// NewMux registers every route under the /logger prefix and returns a
// ready-to-serve handler, matching the path list in spec.md §6.
func NewMux(d *Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /logger/health", d.getHealth)

	mux.HandleFunc("GET /logger/connections", d.listConnections)
	mux.HandleFunc("POST /logger/connections", d.createConnection)
	mux.HandleFunc("GET /logger/connections/{id}", d.getConnection)
	mux.HandleFunc("PUT /logger/connections/{id}", d.updateConnection)
	mux.HandleFunc("DELETE /logger/connections/{id}", d.deleteConnection)

	mux.HandleFunc("GET /logger/connections/runtime/{id}/status", d.getConnectionStatus)
	mux.HandleFunc("POST /logger/connections/runtime/{id}/start", d.startConnection)
	mux.HandleFunc("POST /logger/connections/runtime/{id}/stop", d.stopConnection)
	mux.HandleFunc("POST /logger/connections/runtime/{id}/restart", d.restartConnection)

	mux.HandleFunc("GET /logger/connections/runtime/{id}/logs", d.getConnectionLogs)
	mux.HandleFunc("GET /logger/connections/runtime/{id}/metrics", d.getConnectionMetrics)

	mux.HandleFunc("GET /logger/db/settings", d.readDbSettings)
	mux.HandleFunc("POST /logger/db/settings", d.dbSettingsAction)

	mux.HandleFunc("GET /logger/serial-ports/available", d.listSerialPorts)
	mux.HandleFunc("POST /logger/serial-ports/test", d.testSerialPort)

	mux.HandleFunc("POST /logger/easy-serial/parser/test", d.testEasySerialParser)

	mux.HandleFunc("POST /logger/mbox/{id}/start-command", d.sendMboxStartCommand)
	mux.HandleFunc("GET /logger/mbox/available-counters", d.getAvailableMboxCounters)

	return mux
}

// getHealth reports liveness; mirrors the original's bare health check
// with no dependency on the settings store or runtime manager.
func (d *Deps) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// envelope is the uniform {success, data, error} response body used
// by every original router, whether it returns a pydantic model or a
// bare dict.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
