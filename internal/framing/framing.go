// Copyright (C) 2018 Rob Caelers <rob.caelers@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package framing encodes DFU requests and decodes DFU responses on the
// wire format of the Nordic Secure DFU Control Point.
package framing

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ObjectKind selects which object an operation addresses.
type ObjectKind byte

const (
	ObjectCommand ObjectKind = 0x01
	ObjectData    ObjectKind = 0x02
)

type opcode byte

const (
	opProtocolVersion  opcode = 0x00
	opObjectCreate     opcode = 0x01
	opReceiptNotifSet  opcode = 0x02
	opCrcGet           opcode = 0x03
	opObjectExecute    opcode = 0x04
	opObjectSelect     opcode = 0x06
	opMtuGet           opcode = 0x07
	opObjectWrite      opcode = 0x08
	opPing             opcode = 0x09
	opHardwareVersion  opcode = 0x0A
	opFirmwareVersion  opcode = 0x0B
	opAbort            opcode = 0x0C
	responseHeaderByte opcode = 0x60
)

// ResultCode is the one-byte result the device echoes back for every
// Control Point request.
type ResultCode byte

const (
	ResultInvalid               ResultCode = 0x00
	ResultSuccess               ResultCode = 0x01
	ResultOpCodeNotSupported    ResultCode = 0x02
	ResultInvalidParameter      ResultCode = 0x03
	ResultInsufficientResources ResultCode = 0x04
	ResultInvalidObject         ResultCode = 0x05
	ResultUnsupportedType       ResultCode = 0x07
	ResultOperationNotPermitted ResultCode = 0x08
	ResultOperationFailed       ResultCode = 0x0A
	ResultExtError              ResultCode = 0x0B
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultOpCodeNotSupported:
		return "OpCodeNotSupported"
	case ResultInvalidParameter:
		return "InvalidParameter"
	case ResultInsufficientResources:
		return "InsufficientResources"
	case ResultInvalidObject:
		return "InvalidObject"
	case ResultUnsupportedType:
		return "UnsupportedType"
	case ResultOperationNotPermitted:
		return "OperationNotPermitted"
	case ResultOperationFailed:
		return "OperationFailed"
	case ResultExtError:
		return "ExtError"
	default:
		return "Invalid"
	}
}

// Request is one encodable Control Point request.
type Request struct {
	op      opcode
	kind    ObjectKind
	length  uint32
	prn     uint32
	hasKind bool
}

// CreateObject builds Create(kind, length), opcode 0x01.
func CreateObject(kind ObjectKind, length uint32) Request {
	return Request{op: opObjectCreate, kind: kind, length: length, hasKind: true}
}

// SetPRN builds SetPRN(value), opcode 0x02.
func SetPRN(value uint32) Request {
	return Request{op: opReceiptNotifSet, prn: value}
}

// GetCRC builds GetCRC, opcode 0x03.
func GetCRC() Request {
	return Request{op: opCrcGet}
}

// Execute builds Execute, opcode 0x04.
func Execute() Request {
	return Request{op: opObjectExecute}
}

// Select builds Select(kind), opcode 0x06.
func Select(kind ObjectKind) Request {
	return Request{op: opObjectSelect, kind: kind, hasKind: true}
}

// Name returns a short human-readable label for the request, used in
// diagnostics (e.g. "device unresponsive: no answer to GetCRC after 3
// attempts").
func (r Request) Name() string {
	switch r.op {
	case opObjectCreate:
		return "Create"
	case opReceiptNotifSet:
		return "SetPRN"
	case opCrcGet:
		return "GetCRC"
	case opObjectExecute:
		return "Execute"
	case opObjectSelect:
		return "Select"
	default:
		return "Unknown"
	}
}

// Encode serializes the request into its wire representation.
func (r Request) Encode() []byte {
	switch r.op {
	case opObjectCreate:
		buf := make([]byte, 6)
		buf[0] = byte(r.op)
		buf[1] = byte(r.kind)
		binary.LittleEndian.PutUint32(buf[2:], r.length)
		return buf
	case opReceiptNotifSet:
		buf := make([]byte, 5)
		buf[0] = byte(r.op)
		binary.LittleEndian.PutUint32(buf[1:], r.prn)
		return buf
	case opObjectSelect:
		return []byte{byte(r.op), byte(r.kind)}
	default:
		return []byte{byte(r.op)}
	}
}

// Response is a decoded Control Point notification payload.
type Response struct {
	Opcode byte
	Result ResultCode

	// Populated only when Opcode is GetCRC or Select and Result ==
	// Success.
	Offset   uint32
	Checksum uint32

	// Populated only when Opcode == Select and Result == Success;
	// MaxSize is then the device's max_chunk_size for the kind asked.
	MaxSize uint32
}

// MalformedResponseError reports a wire-format violation: a bad header
// byte, an unrecognized opcode/result byte, or a payload too short for
// its declared shape.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed DFU response: " + e.Reason
}

func malformed(reason string) error {
	return &MalformedResponseError{Reason: reason}
}

// DecodeResponse parses a raw Control Point notification.
func DecodeResponse(raw []byte) (Response, error) {
	var resp Response

	if len(raw) < 3 {
		return resp, malformed("too short for header")
	}
	if opcode(raw[0]) != responseHeaderByte {
		return resp, malformed("missing 0x60 header byte")
	}

	resp.Opcode = raw[1]
	resp.Result = ResultCode(raw[2])

	switch opcode(resp.Opcode) {
	case opProtocolVersion, opObjectCreate, opReceiptNotifSet, opCrcGet,
		opObjectExecute, opObjectSelect, opMtuGet, opObjectWrite, opPing,
		opHardwareVersion, opFirmwareVersion, opAbort:
	default:
		return resp, malformed("unrecognized opcode")
	}

	if !validResultCode(resp.Result) {
		return resp, malformed("unrecognized result code")
	}

	if resp.Result != ResultSuccess {
		return resp, nil
	}

	payload := raw[3:]
	switch opcode(resp.Opcode) {
	case opCrcGet:
		if len(payload) < 8 {
			return resp, malformed("GetCRC payload too short")
		}
		resp.Offset = binary.LittleEndian.Uint32(payload[0:4])
		resp.Checksum = binary.LittleEndian.Uint32(payload[4:8])
	case opObjectSelect:
		if len(payload) < 12 {
			return resp, malformed("Select payload too short")
		}
		resp.MaxSize = binary.LittleEndian.Uint32(payload[0:4])
		resp.Offset = binary.LittleEndian.Uint32(payload[4:8])
		resp.Checksum = binary.LittleEndian.Uint32(payload[8:12])
	}

	return resp, nil
}

func validResultCode(r ResultCode) bool {
	switch r {
	case ResultInvalid, ResultSuccess, ResultOpCodeNotSupported, ResultInvalidParameter,
		ResultInsufficientResources, ResultInvalidObject, ResultUnsupportedType,
		ResultOperationNotPermitted, ResultOperationFailed, ResultExtError:
		return true
	default:
		return false
	}
}

// ErrWrongOpcode is returned by CheckEcho when a response echoes a
// different opcode than the one just sent, meaning a desynchronized session.
var ErrWrongOpcode = errors.New("response echoes a different opcode than requested")

// CheckEcho verifies the response in resp answers req, not some other
// stale notification.
func CheckEcho(req Request, resp Response) error {
	if resp.Opcode != byte(req.op) {
		return ErrWrongOpcode
	}
	return nil
}
