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

// Package transport defines the abstract channel the DFU client drives:
// a reliable request/response exchange on the Control Point and an
// unacknowledged bulk write on the Data characteristic. Concrete
// implementations bind this to a BLE central (see internal/ble) or, in
// tests, to an in-memory mock device.
package transport

// DefaultMTU is used when the underlying BLE stack cannot report an
// MTU: the maximum ATT payload on a 247-byte Link Layer PDU.
const DefaultMTU = 244

// Transport is the contract the DFU client (internal/dfu) requires.
// A single Transport is owned by exactly one session at a time.
type Transport interface {
	// MTU returns the maximum payload, in bytes, of a single Data
	// characteristic write. Constant for the lifetime of a session.
	MTU() int

	// WriteData performs an unacknowledged write of up to MTU() bytes
	// to the Data characteristic. No device reply is expected.
	WriteData(data []byte) error

	// RequestCtrl writes request to the Control Point using a
	// write-with-response, then waits for exactly one notification on
	// the Control Point and returns its raw payload. Implementations
	// must subscribe to Control Point notifications before the write
	// completes so the response can never be missed. On expiry of the
	// ~500ms per-operation timeout, RequestCtrl returns an error for
	// which IsTimeout reports true.
	RequestCtrl(request []byte) ([]byte, error)
}

// timeoutError is implemented by transport errors that represent an
// expired per-operation timeout, distinguishing them from other
// failures (lost connection, characteristic not found, ...).
type timeoutError interface {
	Timeout() bool
}

// IsTimeout reports whether err represents a transport operation that
// timed out rather than failed outright.
func IsTimeout(err error) bool {
	te, ok := err.(timeoutError)
	return ok && te.Timeout()
}
