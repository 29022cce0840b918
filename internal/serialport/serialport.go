// Package serialport wraps a real serial port library behind a small
// interface so every serial-attached worker (easy_serial, mbox,
// mbox_counter, modbus_rtu) depends on one seam instead of importing
// a concrete driver directly.
package serialport

import (
	"fmt"
	"time"

	goserial "github.com/hootrhino/goserial"
)

// Settings mirrors the *PortSettings shape repeated across every
// protocol package in the original service (EasySerialPortSettings,
// MboxPortSettings, MboxCounterPortSettings, ModbusRtuPortSettings).
type Settings struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string // "None", "Even", "Odd"
	StopBits    float64
	FlowControl string // "None", "Hardware", "Software"
	Timeout     time.Duration
}

// Port is the minimal surface every worker needs from a serial
// connection: read, write, and close.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(d time.Duration) error
}

// Open opens a serial port with the given settings.
func Open(settings Settings) (Port, error) {
	cfg := goserial.Config{
		Address:  settings.Port,
		BaudRate: settings.BaudRate,
		DataBits: settings.DataBits,
		Parity:   parityFromString(settings.Parity),
		StopBits: stopBitsFromFloat(settings.StopBits),
		Timeout:  settings.Timeout,
	}

	port, err := goserial.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", settings.Port, err)
	}
	return &goserialPort{port: port}, nil
}

type goserialPort struct {
	port goserial.Port
}

func (p *goserialPort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *goserialPort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *goserialPort) Close() error                { return p.port.Close() }

func (p *goserialPort) SetReadTimeout(d time.Duration) error {
	return p.port.SetReadTimeout(d)
}

func parityFromString(s string) goserial.ParityMode {
	switch s {
	case "Even":
		return goserial.ParityEven
	case "Odd":
		return goserial.ParityOdd
	default:
		return goserial.ParityNone
	}
}

func stopBitsFromFloat(sb float64) goserial.StopBits {
	switch {
	case sb >= 2.0:
		return goserial.TwoStopBits
	case sb >= 1.5:
		return goserial.OneAndHalfStopBits
	default:
		return goserial.OneStopBit
	}
}
