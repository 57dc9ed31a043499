package dfu

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrfdfu/nrf-dfu-go/internal/framing"
	"github.com/nrfdfu/nrf-dfu-go/internal/integrity"
)

// fakeTimeout satisfies transport.IsTimeout without importing the ble
// package's real timeout type.
type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "control point notification timed out" }
func (fakeTimeout) Timeout() bool { return true }

// decodedRequest is the test-side mirror of framing.Request, rebuilt
// from raw wire bytes so the mock device can branch on what was asked
// without framing exposing a decoder of its own (requests only ever
// flow host -> device).
type decodedRequest struct {
	name   string
	kind   framing.ObjectKind
	length uint32
}

func decodeRequest(t *testing.T, raw []byte) decodedRequest {
	t.Helper()
	require.NotEmpty(t, raw)
	switch raw[0] {
	case 0x01:
		require.Len(t, raw, 6)
		return decodedRequest{name: "Create", kind: framing.ObjectKind(raw[1]), length: binary.LittleEndian.Uint32(raw[2:6])}
	case 0x02:
		return decodedRequest{name: "SetPRN"}
	case 0x03:
		return decodedRequest{name: "GetCRC"}
	case 0x04:
		return decodedRequest{name: "Execute"}
	case 0x06:
		require.Len(t, raw, 2)
		return decodedRequest{name: "Select", kind: framing.ObjectKind(raw[1])}
	default:
		t.Fatalf("unknown opcode %#x", raw[0])
		return decodedRequest{}
	}
}

// deviceSim emulates a correctly behaving nRF DFU target closely
// enough to drive Client.Run end to end, with a handful of fault
// injection knobs matching the scenarios of spec §8.
type deviceSim struct {
	t            *testing.T
	mtu          int
	maxChunkSize uint32

	kind   framing.ObjectKind
	cmdBuf []byte

	dataOffset uint32
	dataCRC    uint32

	resumeOffset   uint32
	resumeChecksum uint32

	failFirstCreateCommand bool
	createCommandSeen      bool

	neverRespond bool

	timeoutGetCRCAttempts int

	corruptChecksumOnGetCRCCall int
	getCRCSuccessCalls          int

	log []string
}

func (d *deviceSim) MTU() int { return d.mtu }

func (d *deviceSim) WriteData(data []byte) error {
	d.log = append(d.log, "write")
	cp := append([]byte{}, data...)
	if d.kind == framing.ObjectCommand {
		d.cmdBuf = append(d.cmdBuf, cp...)
		return nil
	}
	d.dataCRC = integrity.Checksum(cp, d.dataCRC)
	d.dataOffset += uint32(len(cp))
	return nil
}

func successResponse(opcode byte, extra ...byte) []byte {
	return append([]byte{0x60, opcode, byte(framing.ResultSuccess)}, extra...)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func (d *deviceSim) RequestCtrl(raw []byte) ([]byte, error) {
	if d.neverRespond {
		return nil, fakeTimeout{}
	}

	req := decodeRequest(d.t, raw)
	d.log = append(d.log, req.name)

	switch req.name {
	case "SetPRN":
		return successResponse(0x02), nil

	case "Create":
		if req.kind == framing.ObjectCommand {
			if d.failFirstCreateCommand && !d.createCommandSeen {
				d.createCommandSeen = true
				return []byte{0x60, 0x01, byte(framing.ResultOperationNotPermitted)}, nil
			}
			d.createCommandSeen = true
		}
		d.kind = req.kind
		if req.kind == framing.ObjectCommand {
			d.cmdBuf = nil
		}
		return successResponse(0x01), nil

	case "GetCRC":
		if d.timeoutGetCRCAttempts > 0 {
			d.timeoutGetCRCAttempts--
			return nil, fakeTimeout{}
		}
		d.getCRCSuccessCalls++

		var offset, checksum uint32
		if d.kind == framing.ObjectCommand {
			offset = uint32(len(d.cmdBuf))
			checksum = integrity.Checksum(d.cmdBuf, 0)
		} else {
			offset = d.dataOffset
			checksum = d.dataCRC
		}

		if d.corruptChecksumOnGetCRCCall == d.getCRCSuccessCalls {
			checksum ^= 0x1
		}

		payload := append(le32(offset), le32(checksum)...)
		return successResponse(0x03, payload...), nil

	case "Execute":
		return successResponse(0x04), nil

	case "Select":
		if req.kind == framing.ObjectData {
			d.dataOffset = d.resumeOffset
			d.dataCRC = d.resumeChecksum
		}
		payload := append(le32(d.maxChunkSize), le32(d.dataOffset)...)
		payload = append(payload, le32(d.dataCRC)...)
		return successResponse(0x06, payload...), nil

	default:
		d.t.Fatalf("unexpected request %s", req.name)
		return nil, nil
	}
}

func newDeviceSim(t *testing.T, mtu int, maxChunkSize uint32) *deviceSim {
	return &deviceSim{t: t, mtu: mtu, maxChunkSize: maxChunkSize}
}

func TestRunHappyPath(t *testing.T) {
	init := []byte{0xAA, 0xBB, 0xCC}
	firmware := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}

	dev := newDeviceSim(t, 4, 8)

	var progressCalls [][2]int64
	client := New(func(uploaded, total int64) {
		progressCalls = append(progressCalls, [2]int64{uploaded, total})
	})

	err := client.Run(context.Background(), dev, init, firmware)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SetPRN",
		"Create", "write", "GetCRC", "Execute",
		"Select",
		"Create", "write", "GetCRC", "write", "GetCRC", "Execute",
		"Create", "write", "GetCRC", "Execute",
	}, dev.log)

	require.Len(t, progressCalls, 3)
	assert.Equal(t, int64(4), progressCalls[0][0])
	assert.Equal(t, int64(8), progressCalls[1][0])
	assert.Equal(t, int64(10), progressCalls[2][0])
	assert.Equal(t, int64(10), progressCalls[2][1])
}

func TestRunProtocolError(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	dev.failFirstCreateCommand = true

	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01, 0x02}, []byte{0xFF})

	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, framing.ResultOperationNotPermitted, protoErr.Code)

	assert.Equal(t, []string{"SetPRN", "Create"}, dev.log)
}

func TestRunRetriesTimeoutThenSucceeds(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	dev.timeoutGetCRCAttempts = 2

	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, []byte{0x00, 0x01, 0x02, 0x03})

	require.NoError(t, err)
}

func TestRunUnresponsive(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	dev.neverRespond = true

	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, []byte{0x00})

	require.Error(t, err)
	var unresp *UnresponsiveError
	require.ErrorAs(t, err, &unresp)
}

func TestRunResumeRefusal(t *testing.T) {
	dev := newDeviceSim(t, 4, 64)
	dev.resumeOffset = 16
	dev.resumeChecksum = 0xDEADBEEF

	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, make([]byte, 32))

	require.Error(t, err)
	var resumeErr *ResumeNotSupportedError
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, uint32(16), resumeErr.Offset)
	assert.Equal(t, uint32(0xDEADBEEF), resumeErr.Checksum)

	// the init packet's own Create(Command) ran, but no Data object was
	// ever created after the rejected Select(Data).
	assert.Equal(t, []string{"SetPRN", "Create", "write", "GetCRC", "Execute", "Select"}, dev.log)
}

func TestRunIntegrityViolation(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	// GetCRC call 1 verifies the init packet; call 2 verifies firmware
	// shard 1; call 3 verifies firmware shard 2, the one this test corrupts.
	dev.corruptChecksumOnGetCRCCall = 3

	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})

	require.Error(t, err)
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
}

func TestRunBoundaryEmptyFirmware(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, nil)
	require.NoError(t, err)
}

func TestRunBoundaryMTUOne(t *testing.T) {
	dev := newDeviceSim(t, 1, 1)
	client := New(nil)
	err := client.Run(context.Background(), dev, []byte{0x01}, []byte{0x00, 0x01, 0x02})
	require.NoError(t, err)
}

func TestRunContextCancelled(t *testing.T) {
	dev := newDeviceSim(t, 4, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(nil)
	err := client.Run(ctx, dev, []byte{0x01}, []byte{0x02})
	require.Error(t, err)
	assert.Empty(t, dev.log)
}
