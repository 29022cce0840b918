package httpapi

import (
	"net/http"
	"time"
)

// connectionRuntimeStatus mirrors ConnectionRuntimeStatus.
type connectionRuntimeStatus struct {
	ConnID     int    `json:"conn_id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Registered bool   `json:"registered"`
	State      string `json:"state"`
	LastError  string `json:"last_error,omitempty"`
}

// restartJoinTimeout mirrors restart_connection's 2.0-second join.
const restartJoinTimeout = 2 * time.Second

func (d *Deps) buildStatus(id int) (connectionRuntimeStatus, bool, error) {
	conn, found, err := d.Store.GetConnection(id)
	if err != nil {
		return connectionRuntimeStatus{}, false, err
	}
	if !found {
		return connectionRuntimeStatus{}, false, nil
	}

	status := connectionRuntimeStatus{
		ConnID:  id,
		Name:    conn.Name,
		Enabled: conn.Enabled,
		State:   "stopped",
	}

	if worker, ok := d.Runtime.GetWorker(id); ok {
		status.Registered = true
		status.State = string(worker.State())
		status.LastError = worker.LastError()
	}

	return status, true, nil
}

func (d *Deps) getConnectionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	status, found, err := d.buildStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	writeData(w, http.StatusOK, status)
}

func (d *Deps) startConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	conn, found, err := d.Store.GetConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	if _, err := d.registerWorker(r.Context(), conn); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := d.Runtime.StartConnection(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	status, _, err := d.buildStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, status)
}

func (d *Deps) stopConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	conn, found, err := d.Store.GetConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	// StopConnection is a no-op when nothing is registered, matching
	// the original's tolerant stop_connection.
	if err := d.Runtime.StopConnection(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, _, err := d.buildStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, status)
}

func (d *Deps) restartConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	conn, found, err := d.Store.GetConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	if _, err := d.registerWorker(r.Context(), conn); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	_ = d.Runtime.StopConnection(r.Context(), id)
	d.Runtime.JoinConnection(id, restartJoinTimeout)
	if err := d.Runtime.StartConnection(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	status, _, err := d.buildStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, status)
}
