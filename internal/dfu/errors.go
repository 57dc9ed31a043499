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

package dfu

import (
	"fmt"

	"github.com/nrfdfu/nrf-dfu-go/internal/framing"
)

// TransportError wraps a failure reported by the underlying transport:
// a lost connection, a missing characteristic, or any other BLE-stack
// error that isn't a per-operation timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is returned when the device answers a request with a
// non-Success result code. Protocol errors are never retried: they
// mean the device deliberately rejected the request.
type ProtocolError struct {
	Code framing.ResultCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device rejected request: %s", e.Code)
}

// IntegrityError is returned when the host's running offset or
// cumulative CRC disagrees with what the device reports after a shard
// write.
type IntegrityError struct {
	WantOffset, GotOffset     uint32
	WantChecksum, GotChecksum uint32
}

func (e *IntegrityError) Error() string {
	if e.WantOffset != e.GotOffset {
		return fmt.Sprintf("integrity check failed: offset %d != %d", e.GotOffset, e.WantOffset)
	}
	return fmt.Sprintf("integrity check failed: checksum %#08x != %#08x", e.GotChecksum, e.WantChecksum)
}

// ResumeNotSupportedError is returned when Select(Data) reports a
// nonzero offset or checksum at the start of a session: the device
// already holds a partial transfer, and resuming it is not supported.
type ResumeNotSupportedError struct {
	Offset, Checksum uint32
}

func (e *ResumeNotSupportedError) Error() string {
	return fmt.Sprintf("device reports an in-progress transfer (offset=%d, checksum=%#08x); resuming is not supported", e.Offset, e.Checksum)
}

// UnresponsiveError is returned after three consecutive timeouts on a
// single Control Point request.
type UnresponsiveError struct {
	Request string
}

func (e *UnresponsiveError) Error() string {
	return fmt.Sprintf("device unresponsive: no answer to %s after 3 attempts", e.Request)
}
