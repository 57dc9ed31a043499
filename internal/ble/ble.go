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

// Package ble is the concrete BLE central binding for the abstract
// transport.Transport contract: it discovers a peripheral, handles the
// buttonless-DFU reboot dance, and adapts the Control Point / Data
// characteristics into the request/response and fire-and-forget writes
// the DFU client needs.
package ble

import "time"

// AdvertisementHandler receives one scan result at a time.
type AdvertisementHandler func(adv Advertisement)

// Advertisement is one BLE scan result.
type Advertisement struct {
	Addr     string
	Name     string
	Services []string
}

// Client discovers and connects to BLE peripherals.
type Client interface {
	ConnectName(name string, timeout time.Duration) (Peripheral, error)
	ConnectAddress(address string, timeout time.Duration) (Peripheral, error)
	Scan(duration time.Duration, handler AdvertisementHandler) error
}

// Peripheral is a connected BLE device.
type Peripheral interface {
	Addr() string
	Disconnect() error
	FindService(uuid string) Service
	FindCharacteristic(uuid string) Characteristic
}

// Service is one GATT service of a connected peripheral.
type Service interface {
	UUID() string
	FindCharacteristic(uuid string) Characteristic
}

// Characteristic is one GATT characteristic: writable, and
// subscribable for notifications or indications.
type Characteristic interface {
	UUID() string
	WriteCharacteristic(data []byte, noResp bool) error
	Subscribe(indication bool, f func([]byte)) error
	Unsubscribe(indication bool) error
}
