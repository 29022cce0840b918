package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Tomochka91/ULogger/internal/settings"
	"github.com/Tomochka91/ULogger/internal/workerbase"
)

// unregisterJoinTimeout mirrors the 5.0-second join() the original
// waits out before swapping or discarding a worker.
const unregisterJoinTimeout = 5 * time.Second

func (d *Deps) listConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := d.Store.GetConnections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, connections)
}

func (d *Deps) getConnection(w http.ResponseWriter, r *http.Request) {
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
	writeData(w, http.StatusOK, conn)
}

func (d *Deps) createConnection(w http.ResponseWriter, r *http.Request) {
	var payload settings.ConnectionConfig
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = nil

	created, err := d.Store.UpsertConnection(payload)
	if err != nil {
		var nameErr *settings.ErrConnectionNameExists
		if errors.As(err, &nameErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	worker, err := d.registerWorker(r.Context(), created)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if created.Autostart {
		if err := worker.Start(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeData(w, http.StatusOK, created)
}

func (d *Deps) updateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	if _, found, err := d.Store.GetConnection(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	var payload settings.ConnectionConfig
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload.ID = &id

	prevState := workerbase.StateStopped
	prevRunning := false
	if existing, found := d.Runtime.GetWorker(id); found {
		prevState = existing.State()
		prevRunning = prevState == workerbase.StateRunning
		_ = existing.Stop(r.Context())
		existing.Join(unregisterJoinTimeout)
		existing.Close()
		d.Runtime.UnregisterConnection(id)
	}

	updated, err := d.Store.UpsertConnection(payload)
	if err != nil {
		var nameErr *settings.ErrConnectionNameExists
		if errors.As(err, &nameErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	worker, err := d.registerWorker(r.Context(), updated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if prevRunning || updated.Autostart {
		if err := worker.Start(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeData(w, http.StatusOK, updated)
}

func (d *Deps) deleteConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}

	if worker, found := d.Runtime.GetWorker(id); found {
		_ = worker.Stop(r.Context())
		worker.Join(unregisterJoinTimeout)
		worker.Close()
		d.Runtime.UnregisterConnection(id)
	}

	deleted, err := d.Store.DeleteConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	writeData(w, http.StatusOK, nil)
}
