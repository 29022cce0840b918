package httpapi

import (
	"net/http"
	"strconv"
)

const (
	defaultMessagesLimit = 100
	defaultErrorsLimit   = 50
)

type connectionLogsResponse struct {
	ConnID     int      `json:"conn_id"`
	Registered bool     `json:"registered"`
	Messages   []string `json:"messages"`
	Errors     []string `json:"errors"`
}

type connectionMetricsResponse struct {
	ConnID     int            `json:"conn_id"`
	Registered bool           `json:"registered"`
	Metrics    map[string]any `json:"metrics"`
	Extra      map[string]any `json:"extra"`
}

func queryIntDefault(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// tail returns the last n elements of lines, or all of them if n
// exceeds the length, mirroring Python's lst[-n:] slicing.
func tail(lines []string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	if n >= len(lines) {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
	out := make([]string, n)
	copy(out, lines[len(lines)-n:])
	return out
}

func (d *Deps) getConnectionLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	_, found, err := d.Store.GetConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	messagesLimit := queryIntDefault(r, "messages_limit", defaultMessagesLimit)
	errorsLimit := queryIntDefault(r, "errors_limit", defaultErrorsLimit)

	worker, registered := d.Runtime.GetWorker(id)
	if !registered {
		writeData(w, http.StatusOK, connectionLogsResponse{
			ConnID:     id,
			Registered: false,
			Messages:   []string{},
			Errors:     []string{},
		})
		return
	}

	writeData(w, http.StatusOK, connectionLogsResponse{
		ConnID:     id,
		Registered: true,
		Messages:   tail(worker.RecentMessages(), messagesLimit),
		Errors:     tail(worker.RecentErrors(), errorsLimit),
	})
}

func (d *Deps) getConnectionMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	_, found, err := d.Store.GetConnection(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	worker, registered := d.Runtime.GetWorker(id)
	if !registered {
		writeData(w, http.StatusOK, connectionMetricsResponse{
			ConnID:     id,
			Registered: false,
			Metrics:    map[string]any{},
			Extra:      map[string]any{},
		})
		return
	}

	metrics, extra := worker.GetMetrics()
	writeData(w, http.StatusOK, connectionMetricsResponse{
		ConnID:     id,
		Registered: true,
		Metrics:    metrics,
		Extra:      extra,
	})
}
