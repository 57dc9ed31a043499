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

// Package dfu drives the Nordic Secure DFU protocol state machine: a
// single init-packet transaction followed by a chunked, shard-verified
// firmware stream, over whatever transport.Transport it is given.
package dfu

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nrfdfu/nrf-dfu-go/internal/framing"
	"github.com/nrfdfu/nrf-dfu-go/internal/integrity"
	"github.com/nrfdfu/nrf-dfu-go/internal/transport"
)

// Progress reports bytes uploaded so far against the total firmware
// size. It is invoked after every shard of the firmware stream is
// written and verified; it is never invoked during the init-packet
// transaction.
type Progress func(uploaded, total int64)

// maxRequestAttempts is the total number of times a single Control
// Point request is tried before the session gives up with
// UnresponsiveError. Only timeouts are retried.
const maxRequestAttempts = 3

// Client orchestrates one DFU session: session setup, the init-packet
// transaction, the firmware chunking loop, and commit.
type Client struct {
	progress Progress
}

// New returns a Client that reports upload progress to progress, which
// may be nil.
func New(progress Progress) *Client {
	return &Client{progress: progress}
}

// Run drives transport through a complete DFU session: it disables
// packet receipt notifications, transfers initPacket as the Command
// object, transfers firmware as a sequence of Data objects, and
// verifies every write against the device's own reported offset and
// CRC-32. It returns ResumeNotSupportedError if the device reports an
// in-progress transfer, since resuming one is out of scope.
func (c *Client) Run(ctx context.Context, t transport.Transport, initPacket, firmware []byte) error {
	s := &session{transport: t, progress: c.progress}

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.request(ctx, framing.SetPRN(0)); err != nil {
		return errors.Wrap(err, "session setup")
	}

	if err := s.writeInitPacket(ctx, initPacket); err != nil {
		return errors.Wrap(err, "init")
	}

	sel, err := s.request(ctx, framing.Select(framing.ObjectData))
	if err != nil {
		return errors.Wrap(err, "streaming")
	}
	if sel.Offset != 0 || sel.Checksum != 0 {
		return &ResumeNotSupportedError{Offset: sel.Offset, Checksum: sel.Checksum}
	}
	if sel.MaxSize == 0 {
		return errors.Wrap(&TransportError{Err: errors.New("device reported max_chunk_size=0")}, "streaming")
	}

	if err := s.writeFirmware(ctx, firmware, sel.MaxSize); err != nil {
		return errors.Wrap(err, "streaming")
	}

	return nil
}

// session holds the state of one in-progress DFU run: it is discarded
// at the end of Client.Run and never reused.
type session struct {
	transport transport.Transport
	progress  Progress
}

func (s *session) mtu() int {
	if m := s.transport.MTU(); m > 0 {
		return m
	}
	return transport.DefaultMTU
}

// request issues one Control Point request and returns its decoded
// response. Timeouts are retried up to maxRequestAttempts times; any
// other transport failure propagates immediately; a non-Success result
// code fails immediately as a ProtocolError without being retried.
func (s *session) request(ctx context.Context, req framing.Request) (framing.Response, error) {
	if err := ctx.Err(); err != nil {
		return framing.Response{}, err
	}

	for attempt := 1; attempt <= maxRequestAttempts; attempt++ {
		raw, err := s.transport.RequestCtrl(req.Encode())
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			return framing.Response{}, &TransportError{Err: err}
		}

		resp, err := framing.DecodeResponse(raw)
		if err != nil {
			return framing.Response{}, err
		}
		if err := framing.CheckEcho(req, resp); err != nil {
			return framing.Response{}, &TransportError{Err: err}
		}
		if resp.Result != framing.ResultSuccess {
			return framing.Response{}, &ProtocolError{Code: resp.Result}
		}
		return resp, nil
	}

	return framing.Response{}, &UnresponsiveError{Request: req.Name()}
}

// writeShard performs one unacknowledged Data characteristic write. A
// transport failure here, including a timeout, is fatal to the
// session: a dropped data write would desynchronize the host's and
// device's view of the stream, so it is never retried.
func (s *session) writeShard(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.transport.WriteData(data); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// writeInitPacket transfers initPacket as a single Command object: it
// is written in MTU-sized writes with no per-write verification, then
// checked as a whole with one GetCRC round-trip before being executed.
func (s *session) writeInitPacket(ctx context.Context, initPacket []byte) error {
	if _, err := s.request(ctx, framing.CreateObject(framing.ObjectCommand, uint32(len(initPacket)))); err != nil {
		return err
	}

	mtu := s.mtu()
	for i := 0; i < len(initPacket); i += mtu {
		end := i + mtu
		if end > len(initPacket) {
			end = len(initPacket)
		}
		if err := s.writeShard(ctx, initPacket[i:end]); err != nil {
			return err
		}
	}

	resp, err := s.request(ctx, framing.GetCRC())
	if err != nil {
		return err
	}

	wantChecksum := integrity.Checksum(initPacket, 0)
	if resp.Offset != uint32(len(initPacket)) || resp.Checksum != wantChecksum {
		return &IntegrityError{
			WantOffset:   uint32(len(initPacket)),
			GotOffset:    resp.Offset,
			WantChecksum: wantChecksum,
			GotChecksum:  resp.Checksum,
		}
	}

	_, err = s.request(ctx, framing.Execute())
	return err
}

// writeFirmware transfers firmware as a sequence of Data objects, each
// at most maxChunkSize bytes. Within a chunk, bytes are written in
// MTU-sized shards, each immediately verified against the device's
// cumulative offset and CRC-32 before the next shard is sent.
func (s *session) writeFirmware(ctx context.Context, firmware []byte, maxChunkSize uint32) error {
	total := int64(len(firmware))
	var cumOffset uint32
	var cumChecksum uint32

	for start := 0; start < len(firmware); {
		end := start + int(maxChunkSize)
		if end > len(firmware) {
			end = len(firmware)
		}
		chunk := firmware[start:end]

		if _, err := s.request(ctx, framing.CreateObject(framing.ObjectData, uint32(len(chunk)))); err != nil {
			return err
		}

		mtu := s.mtu()
		for i := 0; i < len(chunk); i += mtu {
			shardEnd := i + mtu
			if shardEnd > len(chunk) {
				shardEnd = len(chunk)
			}
			shard := chunk[i:shardEnd]

			if err := s.writeShard(ctx, shard); err != nil {
				return err
			}

			cumChecksum = integrity.Checksum(shard, cumChecksum)
			cumOffset += uint32(len(shard))

			resp, err := s.request(ctx, framing.GetCRC())
			if err != nil {
				return err
			}
			if resp.Offset != cumOffset || resp.Checksum != cumChecksum {
				return &IntegrityError{
					WantOffset:   cumOffset,
					GotOffset:    resp.Offset,
					WantChecksum: cumChecksum,
					GotChecksum:  resp.Checksum,
				}
			}

			if s.progress != nil {
				s.progress(int64(cumOffset), total)
			}
		}

		if _, err := s.request(ctx, framing.Execute()); err != nil {
			return err
		}
		start = end
	}

	return nil
}
