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

package ble

import (
	"fmt"
	"time"

	"github.com/nrfdfu/nrf-dfu-go/internal/transport"
)

// operationTimeout bounds every individual BLE write or notification
// wait. The device either answers quickly or it has wedged; there is no
// value in waiting longer per operation, since the session-level retry
// in internal/dfu already covers a slow device.
const operationTimeout = 500 * time.Millisecond

// timeoutError is what DFUTransport returns when an operation runs past
// operationTimeout; transport.IsTimeout recognizes it by duck typing.
type timeoutError struct {
	op string
}

func (e *timeoutError) Error() string { return fmt.Sprintf("%s timed out", e.op) }
func (e *timeoutError) Timeout() bool { return true }

// DFUTransport adapts a connected Control Point and Data characteristic
// pair into transport.Transport.
type DFUTransport struct {
	mtu     int
	control Characteristic
	data    Characteristic

	notifications chan []byte
}

// NewDFUTransport subscribes to the Control Point's notifications and
// returns a ready-to-use transport.Transport. mtu should be the ATT MTU
// negotiated for the connection minus protocol overhead; if it is <= 0,
// transport.DefaultMTU is used instead.
func NewDFUTransport(control, data Characteristic, mtu int) (*DFUTransport, error) {
	if mtu <= 0 {
		mtu = transport.DefaultMTU
	}

	t := &DFUTransport{
		mtu:           mtu,
		control:       control,
		data:          data,
		notifications: make(chan []byte, 1),
	}

	if err := control.Subscribe(false, t.onNotification); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *DFUTransport) onNotification(payload []byte) {
	cp := append([]byte{}, payload...)
	select {
	case t.notifications <- cp:
	default:
		// a stale notification nobody is waiting for; drop it rather
		// than block the BLE stack's delivery goroutine.
	}
}

// Close unsubscribes from Control Point notifications.
func (t *DFUTransport) Close() error {
	return t.control.Unsubscribe(false)
}

// MTU implements transport.Transport.
func (t *DFUTransport) MTU() int { return t.mtu }

// WriteData implements transport.Transport as an unacknowledged write to
// the Data characteristic.
func (t *DFUTransport) WriteData(data []byte) error {
	result := make(chan error, 1)
	go func() { result <- t.data.WriteCharacteristic(data, true) }()

	select {
	case err := <-result:
		return err
	case <-time.After(operationTimeout):
		return &timeoutError{op: "write_data"}
	}
}

// RequestCtrl implements transport.Transport: it writes request to the
// Control Point with response, then waits for the next Control Point
// notification. It does not check that the notification answers this
// request; internal/dfu does that with framing.CheckEcho.
func (t *DFUTransport) RequestCtrl(request []byte) ([]byte, error) {
	result := make(chan error, 1)
	go func() { result <- t.control.WriteCharacteristic(request, false) }()

	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
	case <-time.After(operationTimeout):
		return nil, &timeoutError{op: "request_ctrl write"}
	}

	select {
	case payload := <-t.notifications:
		return payload, nil
	case <-time.After(operationTimeout):
		return nil, &timeoutError{op: "request_ctrl notify"}
	}
}
