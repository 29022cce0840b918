package httpapi

import (
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/Tomochka91/ULogger/internal/serialport"
)

// serialPortInfo mirrors SerialPortInfo. No available library
// enumerates OS-level serial ports with hardware metadata, so
// Description and Hwid are always empty here — only Name is ever
// populated, via the device-path glob in candidateSerialPorts.
type serialPortInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Hwid        string `json:"hwid,omitempty"`
}

type serialPortTestRequest struct {
	Port     string  `json:"port"`
	BaudRate int     `json:"baudrate"`
	Timeout  float64 `json:"timeout"`
}

type serialPortTestResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// candidateSerialPorts globs the conventional serial device paths for
// the host's kernel family, standing in for a true port-enumeration
// API (no available library exposes one; this is a deliberate stdlib
// fallback, not an oversight).
func candidateSerialPorts() []string {
	patterns := []string{
		"/dev/ttyUSB*",
		"/dev/ttyACM*",
		"/dev/ttyS*",
		"/dev/cu.*",
		"/dev/tty.*",
	}

	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)
	return matches
}

// isPortFree mirrors _is_port_free: open with a short timeout and
// close immediately: any error means the port is busy or unusable.
func isPortFree(name string) bool {
	port, err := serialport.Open(serialport.Settings{
		Port:     name,
		BaudRate: 9600,
		DataBits: 8,
		Parity:   "None",
		StopBits: 1,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return false
	}
	_ = port.Close()
	return true
}

func (d *Deps) listSerialPorts(w http.ResponseWriter, r *http.Request) {
	var available []serialPortInfo
	for _, name := range candidateSerialPorts() {
		if isPortFree(name) {
			available = append(available, serialPortInfo{Name: name})
		}
	}
	if available == nil {
		available = []serialPortInfo{}
	}
	writeData(w, http.StatusOK, available)
}

func (d *Deps) testSerialPort(w http.ResponseWriter, r *http.Request) {
	var payload serialPortTestRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.BaudRate == 0 {
		payload.BaudRate = 9600
	}
	if payload.Timeout == 0 {
		payload.Timeout = 1.0
	}

	port, err := serialport.Open(serialport.Settings{
		Port:     payload.Port,
		BaudRate: payload.BaudRate,
		DataBits: 8,
		Parity:   "None",
		StopBits: 1,
		Timeout:  time.Duration(payload.Timeout * float64(time.Second)),
	})
	if err != nil {
		writeData(w, http.StatusOK, serialPortTestResponse{Success: false, Error: err.Error()})
		return
	}
	_ = port.Close()
	writeData(w, http.StatusOK, serialPortTestResponse{Success: true})
}
