package httpapi

import (
	"net/http"

	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/settings"
)

// dbSettingsActionRequest mirrors DbSettingsActionRequest.
type dbSettingsActionRequest struct {
	Action   string             `json:"action"`
	Settings settings.DbSettings `json:"settings"`
}

// dbSettingsAction mirrors DbSettingsAction, echoed back as the
// action response's data field.
type dbSettingsAction struct {
	Action   string             `json:"action"`
	Settings settings.DbSettings `json:"settings"`
}

func (d *Deps) readDbSettings(w http.ResponseWriter, r *http.Request) {
	db, err := d.Store.GetDbSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, db)
}

func (d *Deps) dbSettingsAction(w http.ResponseWriter, r *http.Request) {
	var payload dbSettingsActionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	echo := dbSettingsAction{Action: payload.Action, Settings: payload.Settings}

	switch payload.Action {
	case "save":
		if err := d.Store.SaveDbSettings(payload.Settings); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeData(w, http.StatusOK, echo)

	case "test":
		dbSettings := dbwriter.Settings{
			Host:     payload.Settings.Host,
			Port:     payload.Settings.Port,
			Database: payload.Settings.Database,
			User:     payload.Settings.User,
			Password: payload.Settings.Password,
			SSLMode:  payload.Settings.SSLMode,
		}
		ctx, cancel := contextWithConnectTestTimeout(r.Context())
		defer cancel()
		result := dbwriter.TestConnection(ctx, dbSettings)
		writeJSON(w, http.StatusOK, envelope{Success: result.Success, Data: echo, Error: result.Error})

	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+payload.Action)
	}
}
