package easyserial

import "time"

// PortSettings is the COM port configuration for an easy-serial
// connection, mirroring EasySerialPortSettings.
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

// FieldConfig describes one field extracted from a split payload line,
// mirroring EasySerialParsedFieldConfig.
type FieldConfig struct {
	Index  int
	Name   string
	Type   string
	Format string
}

// ParserSettings controls framing and field extraction, mirroring
// EasySerialParserSettings.
type ParserSettings struct {
	Preamble   string
	HasPreamble bool
	Terminator string
	Separator  string
	Encoding   string
	Fields     []FieldConfig
}

// Config is the full configuration for an easy-serial connection,
// mirroring EasySerialConfig.
type Config struct {
	Port         PortSettings
	Parser       ParserSettings
	QueryTemplate string
	Enabled      bool
}
