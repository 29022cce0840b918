package settings

import (
	"strings"
	"time"

	"github.com/Tomochka91/ULogger/internal/easyserial"
	"github.com/Tomochka91/ULogger/internal/mbox"
	"github.com/Tomochka91/ULogger/internal/mboxcounter"
	"github.com/Tomochka91/ULogger/internal/modbusrtu"
	"github.com/Tomochka91/ULogger/internal/modbustcp"
)

// ConnectionType identifies which protocol a ConnectionConfig carries,
// mirroring ConnectionType from loggers/models.py.
type ConnectionType string

const (
	ConnectionEasySerial  ConnectionType = "easy_serial"
	ConnectionMbox        ConnectionType = "mbox"
	ConnectionMboxCounter ConnectionType = "mbox_counter"
	ConnectionModbusRTU   ConnectionType = "modbus_rtu"
	ConnectionModbusTCP   ConnectionType = "modbus_tcp"
)

// ConnectionConfig is one configured logger connection, mirroring
// LoggerConnectionConfig. Exactly one of the protocol-specific fields
// is populated, matching the original's mutually-exclusive-by-type
// optional sub-configs.
type ConnectionConfig struct {
	ID        *int           `json:"id"`
	Name      string         `json:"name"`
	Type      ConnectionType `json:"type"`
	Enabled   bool           `json:"enabled"`
	Autostart bool           `json:"autostart"`

	DBUser        *string `json:"db_user,omitempty"`
	DBPassword    *string `json:"db_password,omitempty"`
	TableName     *string `json:"table_name,omitempty"`
	QueryTemplate *string `json:"query_template,omitempty"`

	EasySerial  *easyserial.Config  `json:"easy_serial,omitempty"`
	Mbox        *mbox.Config        `json:"mbox,omitempty"`
	MboxCounter *mboxcounter.Config `json:"mbox_counter,omitempty"`
	ModbusRTU   *modbusrtu.Config   `json:"modbus_rtu,omitempty"`
	ModbusTCP   *modbustcp.Config   `json:"modbus_tcp,omitempty"`
}

// normalize converts blank optional strings to nil, mirroring the
// original's _strip_empty field validator.
func (c *ConnectionConfig) normalize() {
	c.DBUser = stripEmpty(c.DBUser)
	c.DBPassword = stripEmpty(c.DBPassword)
	c.TableName = stripEmpty(c.TableName)
	c.QueryTemplate = stripEmpty(c.QueryTemplate)
}

func stripEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DbSettings are global database connection parameters, mirroring
// schemas/db_settings.py's DbSettings.
type DbSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`
}

// DefaultDbSettings mirrors DbSettings' Pydantic field defaults.
func DefaultDbSettings() DbSettings {
	return DbSettings{
		Host:    "127.0.0.1",
		Port:    5432,
		SSLMode: "prefer",
	}
}

// AppSettings is the whole-file persisted configuration document,
// mirroring schemas/app_settings.py's AppSettings.
type AppSettings struct {
	DB          DbSettings         `json:"db"`
	Connections []ConnectionConfig `json:"connections"`
}

// DefaultAppSettings mirrors AppSettings() with no connections.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		DB:          DefaultDbSettings(),
		Connections: []ConnectionConfig{},
	}
}

// ConnectTestTimeout bounds a "test" DbSettingsAction's connection
// attempt, grounded on the DbActionType "test" path in
// schemas/db_settings.py (the Pydantic schema itself is silent on the
// timeout value; it is owned by the caller, here internal/httpapi).
const ConnectTestTimeout = 5 * time.Second
