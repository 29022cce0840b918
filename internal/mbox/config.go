package mbox

import "time"

// PortSettings mirrors MboxPortSettings.
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

// Config mirrors MboxConfig from loggers/mbox/config.py.
type Config struct {
	Port PortSettings

	MboxID int
	Tare   float64
	Lot    string

	TreatZeroAsError      bool
	TreatDuplicateAsError bool
	ErrorLabelZero        string
	ErrorLabelDuplicate   string

	Encoding string

	ExtCounter          bool
	CounterConnectionID *int
	CounterDeviceID     *int
	CounterCleanTimeout time.Duration
	CounterMissTimeout  time.Duration

	MissStrategy     string // "last" | "default"
	MissDefault      map[string]any
	MissInsertLimit  int
	MissErrorLabel   string

	QueryTemplate string
}
