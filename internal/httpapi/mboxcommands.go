package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Tomochka91/ULogger/internal/settings"
)

// mboxStartCommandRequest mirrors MboxStartCommandRequest.
type mboxStartCommandRequest struct {
	Send bool `json:"send"`
}

// mboxStartCommandSender is satisfied by *mbox.Worker, mirroring the
// original's getattr(worker, "send_start_command", None) duck typing.
type mboxStartCommandSender interface {
	SendStartCommand() error
}

// counterTotalGetter is satisfied by *mboxcounter.Worker.
type counterTotalGetter interface {
	GetTotal(deviceID int) (uint32, bool)
}

type availableCounterItem struct {
	CounterConnectionID   int    `json:"counter_connection_id"`
	CounterConnectionName string `json:"counter_connection_name"`
	DeviceID              int    `json:"device_id"`
	DeviceName            string `json:"device_name"`
	Serial                uint16 `json:"serial"`
	RuntimeState          string `json:"runtime_state,omitempty"`
	TotalCount            *int   `json:"total_count,omitempty"`
}

func (d *Deps) sendMboxStartCommand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
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
	if conn.Type != settings.ConnectionMbox {
		writeError(w, http.StatusBadRequest, "connection is not mbox")
		return
	}

	var payload mboxStartCommandRequest
	payload.Send = true
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !payload.Send {
		writeData(w, http.StatusOK, nil)
		return
	}

	worker, ok := d.Runtime.GetWorker(id)
	if !ok {
		writeError(w, http.StatusConflict, "worker is not running/registered")
		return
	}
	sender, ok := worker.(mboxStartCommandSender)
	if !ok {
		writeError(w, http.StatusInternalServerError, "worker does not support start command")
		return
	}
	if err := sender.SendStartCommand(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeData(w, http.StatusOK, nil)
}

// getAvailableMboxCounters lists enabled mbox_counter devices that no
// mbox connection has already bound via ext_counter, mirroring
// get_available_mbox_counters.
func (d *Deps) getAvailableMboxCounters(w http.ResponseWriter, r *http.Request) {
	connections, err := d.Store.GetConnections()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type boundKey struct {
		counterConnID int
		deviceID      int
	}
	bound := make(map[boundKey]bool)
	for _, c := range connections {
		if c.ID == nil || c.Type != settings.ConnectionMbox || c.Mbox == nil {
			continue
		}
		if !c.Mbox.ExtCounter {
			continue
		}
		if c.Mbox.CounterConnectionID == nil || c.Mbox.CounterDeviceID == nil {
			continue
		}
		bound[boundKey{*c.Mbox.CounterConnectionID, *c.Mbox.CounterDeviceID}] = true
	}

	out := []availableCounterItem{}
	for _, c := range connections {
		if c.ID == nil || c.Type != settings.ConnectionMboxCounter || c.MboxCounter == nil {
			continue
		}

		worker, registered := d.Runtime.GetWorker(*c.ID)
		var runtimeState string
		if registered {
			runtimeState = string(worker.State())
		}

		for _, dev := range c.MboxCounter.Devices {
			if !dev.Enabled {
				continue
			}
			if bound[boundKey{*c.ID, dev.DeviceID}] {
				continue
			}

			item := availableCounterItem{
				CounterConnectionID:   *c.ID,
				CounterConnectionName: c.Name,
				DeviceID:              dev.DeviceID,
				DeviceName:            dev.Name,
				Serial:                dev.Serial,
				RuntimeState:          runtimeState,
			}
			if registered {
				if getter, ok := worker.(counterTotalGetter); ok {
					if total, found := getter.GetTotal(dev.DeviceID); found {
						v := int(total)
						item.TotalCount = &v
					}
				}
			}
			out = append(out, item)
		}
	}

	writeData(w, http.StatusOK, out)
}
