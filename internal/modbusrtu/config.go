package modbusrtu

import (
	"time"

	"github.com/Tomochka91/ULogger/internal/modbusdecode"
)

// PortSettings is the serial port configuration for a Modbus RTU
// connection, mirroring ModbusRtuPortSettings.
type PortSettings struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    float64
	FlowControl string
	AutoConnect bool
	Timeout     time.Duration
}

// VariableConfig defines a single variable read from holding
// registers, mirroring ModbusVariableConfig.
type VariableConfig struct {
	Name     string
	Address  uint16
	Encoding modbusdecode.Encoding
	K        float64
	B        float64
	Default  any
}

// SlaveConfig is a single RTU slave device and its variables,
// mirroring ModbusSlaveConfig.
type SlaveConfig struct {
	SlaveID   byte
	SlaveName string
	Variables []VariableConfig
}

// Config is the complete configuration for a Modbus RTU connection,
// mirroring ModbusRtuConfig.
type Config struct {
	Port          PortSettings
	PollInterval  time.Duration
	Slaves        []SlaveConfig
	QueryTemplate string
	Enabled       bool
}
