package modbusrtu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Tomochka91/ULogger/common"
	"github.com/Tomochka91/ULogger/internal/serialport"
)

// Transport implements common.Transport over a serial (RS-485/RS-232)
// port using RTU framing (UnitID + PDU + CRC16, no MBAP header).
// Ref: Modbus_Application_Protocol_V1_1b3.pdf (application layer,
// shared with TCP) plus the RTU serial line specification's framing.
type Transport struct {
	mu       sync.Mutex
	settings serialport.Settings
	port     serialport.Port
	logger   common.LoggerInterface
}

// NewTransport creates an RTU transport bound to the given serial
// port settings. The port is opened lazily on Connect.
func NewTransport(settings serialport.Settings) *Transport {
	return &Transport{settings: settings}
}

// Connect opens the underlying serial port.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return nil
	}
	p, err := serialport.Open(t.settings)
	if err != nil {
		return fmt.Errorf("modbus rtu: open serial port: %w", err)
	}
	t.port = p
	return nil
}

// Disconnect closes the underlying serial port.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// IsConnected reports whether the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// WithLogger returns a copy of the transport using the given logger.
func (t *Transport) WithLogger(logger common.LoggerInterface) common.Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Transport{settings: t.settings, port: t.port, logger: logger}
}

// Send writes an RTU-framed request and reads back a matching
// RTU-framed response, validating its CRC16.
func (t *Transport) Send(ctx context.Context, request common.Request) (common.Response, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	if port == nil {
		return nil, common.ErrNotConnected
	}

	adu, err := encodeADU(request)
	if err != nil {
		return nil, err
	}

	if _, err := port.Write(adu); err != nil {
		return nil, fmt.Errorf("modbus rtu: write: %w", err)
	}

	frame, err := readFrame(ctx, port, request.GetPDU().FunctionCode)
	if err != nil {
		return nil, err
	}

	if CRC16(frame[:len(frame)-2]) != binary.LittleEndian.Uint16(frame[len(frame)-2:]) {
		return nil, fmt.Errorf("modbus rtu: crc mismatch")
	}

	return decodeResponse(frame)
}

func encodeADU(request common.Request) ([]byte, error) {
	unitID := request.GetUnitID()
	pdu := request.GetPDU()

	body := make([]byte, 0, 2+len(pdu.Data))
	body = append(body, byte(unitID), byte(pdu.FunctionCode))
	body = append(body, pdu.Data...)

	crc := CRC16(body)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)

	return append(body, crcBytes...), nil
}

// readFrame reads a complete RTU response frame for the function code
// that was requested. Frame length is determined from the function
// code's known response shape (byte-count-prefixed, fixed 4-byte echo,
// or exception), since RTU carries no explicit length field.
func readFrame(ctx context.Context, port serialport.Port, requestFunc common.FunctionCode) ([]byte, error) {
	header, err := readExactly(ctx, port, 2)
	if err != nil {
		return nil, err
	}

	funcCode := header[1]
	var rest []byte

	switch {
	case common.IsException(funcCode):
		rest, err = readExactly(ctx, port, 3) // exception code + CRC16
	case isByteCountPrefixed(common.FunctionCode(funcCode & 0x7F)):
		countByte, ferr := readExactly(ctx, port, 1)
		if ferr != nil {
			return nil, ferr
		}
		count := int(countByte[0])
		var body []byte
		body, err = readExactly(ctx, port, count+2) // data + CRC16
		rest = append(countByte, body...)
	default:
		// fixed response shape: address(2)+value-or-quantity(2)+CRC16(2)
		rest, err = readExactly(ctx, port, 6)
	}

	if err != nil {
		return nil, err
	}

	return append(header, rest...), nil
}

func isByteCountPrefixed(fc common.FunctionCode) bool {
	switch fc {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs,
		common.FuncReadHoldingRegisters, common.FuncReadInputRegisters,
		common.FuncReadWriteMultipleRegisters:
		return true
	default:
		return false
	}
}

func readExactly(ctx context.Context, port serialport.Port, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunk := make([]byte, n-len(buf))
		read, err := port.Read(chunk)
		if read > 0 {
			buf = append(buf, chunk[:read]...)
		}
		if err != nil && read == 0 {
			return nil, fmt.Errorf("modbus rtu: read: %w", err)
		}
		if read == 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}
	return buf, nil
}
