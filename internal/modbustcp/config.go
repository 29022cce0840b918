package modbustcp

import (
	"time"

	"github.com/Tomochka91/ULogger/internal/modbusdecode"
)

// HostSettings is the TCP endpoint configuration for a Modbus TCP
// connection, mirroring ModbusTcpHostSettings.
type HostSettings struct {
	Address     string
	Port        int
	AutoConnect bool
	Timeout     time.Duration
}

// VariableConfig defines a single variable read from holding
// registers, mirroring ModbusTcpVariableConfig.
type VariableConfig struct {
	Name     string
	Address  uint16
	Encoding modbusdecode.Encoding
	K        float64
	B        float64
	Default  any
}

// SlaveConfig is a single TCP slave (unit ID) and its variables,
// mirroring ModbusTcpSlaveConfig.
type SlaveConfig struct {
	SlaveID   byte
	SlaveName string
	Variables []VariableConfig
}

// Config is the complete configuration for a Modbus TCP connection,
// mirroring ModbusTcpConfig.
type Config struct {
	Host          HostSettings
	PollInterval  time.Duration
	Slaves        []SlaveConfig
	QueryTemplate string
	Enabled       bool
}
