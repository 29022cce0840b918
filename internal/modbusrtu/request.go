package modbusrtu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Tomochka91/ULogger/common"
)

// Request is an RTU application data unit: unit ID, PDU, and a
// trailing CRC16, with no MBAP header. Implements common.Request so
// it can flow through client.BaseClient unmodified.
type Request struct {
	UnitID common.UnitID
	PDU    *common.PDU
	Create time.Time
}

// NewRequest creates an RTU Request.
func NewRequest(unitID common.UnitID, functionCode common.FunctionCode, data []byte) *Request {
	return &Request{
		UnitID: unitID,
		PDU: &common.PDU{
			FunctionCode: functionCode,
			Data:         data,
		},
		Create: time.Now(),
	}
}

// GetTransactionID returns 0: RTU has no transaction identifier.
func (r *Request) GetTransactionID() common.TransactionID { return 0 }

// SetTransactionID is a no-op for RTU.
func (r *Request) SetTransactionID(id common.TransactionID) {}

// GetUnitID returns the unit (slave) address.
func (r *Request) GetUnitID() common.UnitID { return r.UnitID }

// GetPDU returns the PDU.
func (r *Request) GetPDU() *common.PDU { return r.PDU }

// Encode serializes the request as UnitID + FunctionCode + Data + CRC16(LE).
func (r *Request) Encode() ([]byte, error) {
	body := make([]byte, 0, 2+len(r.PDU.Data))
	body = append(body, byte(r.UnitID), byte(r.PDU.FunctionCode))
	body = append(body, r.PDU.Data...)

	crc := CRC16(body)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)

	return append(body, crcBytes...), nil
}

// Response is a parsed RTU response frame.
type Response struct {
	UnitID common.UnitID
	PDU    *common.PDU
}

// GetTransactionID returns 0: RTU has no transaction identifier.
func (r *Response) GetTransactionID() common.TransactionID { return 0 }

// GetUnitID returns the unit (slave) address.
func (r *Response) GetUnitID() common.UnitID { return r.UnitID }

// GetPDU returns the PDU.
func (r *Response) GetPDU() *common.PDU { return r.PDU }

// IsException reports whether the function code carries the
// exception bit.
func (r *Response) IsException() bool {
	return common.IsException(byte(r.PDU.FunctionCode))
}

// GetException returns the exception code (first data byte) if this
// is an exception response.
func (r *Response) GetException() common.ExceptionCode {
	if !r.IsException() || len(r.PDU.Data) == 0 {
		return 0
	}
	return common.ExceptionCode(r.PDU.Data[0])
}

// ToError converts an exception response into an error.
func (r *Response) ToError() error {
	if !r.IsException() {
		return nil
	}
	original := common.GetOriginalFunctionCode(byte(r.PDU.FunctionCode))
	return fmt.Errorf("modbus exception: function=%s, code=%s",
		common.FunctionCode(original), r.GetException())
}

// Encode serializes the response as UnitID + FunctionCode + Data + CRC16(LE).
func (r *Response) Encode() ([]byte, error) {
	body := make([]byte, 0, 2+len(r.PDU.Data))
	body = append(body, byte(r.UnitID), byte(r.PDU.FunctionCode))
	body = append(body, r.PDU.Data...)

	crc := CRC16(body)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc)

	return append(body, crcBytes...), nil
}

// decodeResponse parses a complete RTU response ADU (already CRC
// validated) into UnitID/PDU.
func decodeResponse(frame []byte) (*Response, error) {
	if len(frame) < 4 {
		return nil, fmt.Errorf("rtu response too short: %d bytes", len(frame))
	}
	unitID := common.UnitID(frame[0])
	funcCode := common.FunctionCode(frame[1])
	data := make([]byte, len(frame)-4)
	copy(data, frame[2:len(frame)-2])

	return &Response{
		UnitID: unitID,
		PDU: &common.PDU{
			FunctionCode: funcCode,
			Data:         data,
		},
	}, nil
}
