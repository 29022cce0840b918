package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Tomochka91/ULogger/internal/runtime"
	"github.com/Tomochka91/ULogger/internal/settings"
)

// pathID extracts and parses the {id} path value, matching every
// router's conn_id: int path parameter.
func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, false
	}
	return id, true
}

// registerWorker registers (if not already registered) the worker for
// conn with the runtime manager, using a logger tagged with the
// connection's id, name and type. Looking conn up (and answering 404
// when it is missing) is left to the caller.
func (d *Deps) registerWorker(ctx context.Context, conn settings.ConnectionConfig) (runtime.ConnectionWorker, error) {
	logger := d.Logger.WithFields(map[string]interface{}{
		"connection_id":   idOrZero(conn.ID),
		"connection_name": conn.Name,
		"connection_type": string(conn.Type),
	})
	return d.Runtime.RegisterConnection(ctx, conn, logger)
}

func idOrZero(id *int) int {
	if id == nil {
		return 0
	}
	return *id
}

// contextWithConnectTestTimeout bounds a database/port connectivity
// test to settings.ConnectTestTimeout, so a misconfigured host can't
// hang the request indefinitely.
func contextWithConnectTestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, settings.ConnectTestTimeout)
}
