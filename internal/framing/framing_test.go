package framing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCreateObject(t *testing.T) {
	got := CreateObject(ObjectCommand, 3).Encode()
	assert.Equal(t, []byte{0x01, 0x01, 0x03, 0x00, 0x00, 0x00}, got)

	got = CreateObject(ObjectData, 0x0102).Encode()
	assert.Equal(t, []byte{0x01, 0x02, 0x02, 0x01, 0x00, 0x00}, got)
}

func TestEncodeSetPRN(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 0x00}, SetPRN(0).Encode())
}

func TestEncodeNoPayloadRequests(t *testing.T) {
	assert.Equal(t, []byte{0x03}, GetCRC().Encode())
	assert.Equal(t, []byte{0x04}, Execute().Encode())
}

func TestEncodeSelect(t *testing.T) {
	assert.Equal(t, []byte{0x06, 0x01}, Select(ObjectCommand).Encode())
	assert.Equal(t, []byte{0x06, 0x02}, Select(ObjectData).Encode())
}

func TestDecodeResponseEmpty(t *testing.T) {
	resp, err := DecodeResponse([]byte{0x60, 0x04, 0x01})
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), resp.Opcode)
	assert.Equal(t, ResultSuccess, resp.Result)
}

func TestDecodeResponseCRC(t *testing.T) {
	raw := []byte{0x60, 0x03, 0x01, 0x0A, 0x00, 0x00, 0x00, 0xEF, 0xBE, 0xAD, 0xDE}
	resp, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), resp.Offset)
	assert.Equal(t, uint32(0xDEADBEEF), resp.Checksum)
}

func TestDecodeResponseSelect(t *testing.T) {
	raw := []byte{
		0x60, 0x06, 0x01,
		0x08, 0x00, 0x00, 0x00, // max_size = 8
		0x00, 0x00, 0x00, 0x00, // offset = 0
		0x00, 0x00, 0x00, 0x00, // checksum = 0
	}
	resp, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), resp.MaxSize)
	assert.Equal(t, uint32(0), resp.Offset)
	assert.Equal(t, uint32(0), resp.Checksum)
}

func TestDecodeResponseNonSuccessCarriesNoPayload(t *testing.T) {
	resp, err := DecodeResponse([]byte{0x60, 0x01, 0x08})
	require.NoError(t, err)
	assert.Equal(t, ResultOperationNotPermitted, resp.Result)
	assert.Equal(t, uint32(0), resp.Offset)
}

func TestDecodeResponseMalformed(t *testing.T) {
	cases := map[string][]byte{
		"too short":       {0x60, 0x01},
		"bad header":      {0x61, 0x01, 0x01},
		"bad result code": {0x60, 0x01, 0x09},
		"short CRC body":  {0x60, 0x03, 0x01, 0x01, 0x02},
		"short select":    {0x60, 0x06, 0x01, 0x01, 0x02},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeResponse(raw)
			require.Error(t, err)
			var malformedErr *MalformedResponseError
			assert.ErrorAs(t, err, &malformedErr)
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	requests := []Request{
		CreateObject(ObjectCommand, 3),
		CreateObject(ObjectData, 1024),
		SetPRN(0),
		GetCRC(),
		Execute(),
		Select(ObjectCommand),
		Select(ObjectData),
	}
	for _, req := range requests {
		encoded := req.Encode()
		assert.NotEmpty(t, encoded)

		got := Request{op: opcode(encoded[0])}
		switch got.op {
		case opObjectCreate:
			got.kind = ObjectKind(encoded[1])
			got.length = binary.LittleEndian.Uint32(encoded[2:6])
			got.hasKind = true
		case opReceiptNotifSet:
			got.prn = binary.LittleEndian.Uint32(encoded[1:5])
		case opObjectSelect:
			got.kind = ObjectKind(encoded[1])
			got.hasKind = true
		}
		assert.Equal(t, req, got)
	}
}

func TestCheckEcho(t *testing.T) {
	req := GetCRC()
	resp := Response{Opcode: byte(opCrcGet), Result: ResultSuccess}
	assert.NoError(t, CheckEcho(req, resp))

	resp.Opcode = byte(opObjectExecute)
	assert.ErrorIs(t, CheckEcho(req, resp), ErrWrongOpcode)
}
