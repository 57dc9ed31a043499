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
	"time"

	"github.com/pkg/errors"
)

// UUIDs of the Nordic Secure DFU GATT service and its three
// characteristics, fixed by the Nordic SDK and never configurable.
const (
	DFUServiceUUID    = "fe59"
	ControlPointUUID  = "8ec90001-f315-4f60-9fb8-838830daea50"
	DataUUID          = "8ec90002-f315-4f60-9fb8-838830daea50"
	ButtonlessUUID    = "8ec90003-f315-4f60-9fb8-838830daea50"
	buttonlessRequest = 0x01
)

// DefaultBootloaderName is the advertising name Nordic's bootloader
// uses out of the box; applications usually don't change it.
const DefaultBootloaderName = "DfuTarg"

// Target is a connected peripheral with its DFU Control Point and Data
// characteristics already resolved.
type Target struct {
	Peripheral Peripheral
	Control    Characteristic
	Data       Characteristic
}

// ConnectOptions configures Connect. Exactly one of Address or Name
// should be set to identify the initial device; BootloaderName names
// the advertised name to look for after a buttonless reboot, defaulting
// to DefaultBootloaderName when empty.
type ConnectOptions struct {
	Address        string
	Name           string
	BootloaderName string
	Timeout        time.Duration
}

// Connect resolves opts to a peripheral and its DFU characteristics. If
// the device is running application firmware with only the buttonless
// characteristic exposed, Connect triggers the reboot into bootloader
// mode and reconnects under BootloaderName before returning.
func Connect(client Client, opts ConnectOptions) (*Target, error) {
	bootloaderName := opts.BootloaderName
	if bootloaderName == "" {
		bootloaderName = DefaultBootloaderName
	}

	peripheral, err := dial(client, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	target, err := resolveTarget(peripheral)
	if err == nil {
		return target, nil
	}

	buttonless := findButtonless(peripheral)
	if buttonless == nil {
		return nil, errors.Wrap(err, "no DFU characteristics and no buttonless service")
	}

	if err := rebootToBootloader(buttonless, opts.Timeout); err != nil {
		return nil, errors.Wrap(err, "buttonless DFU")
	}
	_ = peripheral.Disconnect()

	peripheral, err = client.ConnectName(bootloaderName, opts.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "reconnect to bootloader")
	}

	target, err = resolveTarget(peripheral)
	if err != nil {
		return nil, errors.Wrap(err, "bootloader has no DFU characteristics")
	}
	return target, nil
}

func dial(client Client, opts ConnectOptions) (Peripheral, error) {
	if opts.Address != "" {
		return client.ConnectAddress(opts.Address, opts.Timeout)
	}
	return client.ConnectName(opts.Name, opts.Timeout)
}

func resolveTarget(peripheral Peripheral) (*Target, error) {
	svc := peripheral.FindService(DFUServiceUUID)
	if svc == nil {
		return nil, errors.New("DFU service not advertised")
	}
	control := svc.FindCharacteristic(ControlPointUUID)
	data := svc.FindCharacteristic(DataUUID)
	if control == nil || data == nil {
		return nil, errors.New("DFU Control Point or Data characteristic missing")
	}
	return &Target{Peripheral: peripheral, Control: control, Data: data}, nil
}

func findButtonless(peripheral Peripheral) Characteristic {
	svc := peripheral.FindService(DFUServiceUUID)
	if svc == nil {
		return nil
	}
	return svc.FindCharacteristic(ButtonlessUUID)
}

// rebootToBootloader writes the buttonless DFU trigger and waits for the
// device's [0x20, 0x01, 0x01] acknowledgement before it drops the
// connection to reboot into its bootloader.
func rebootToBootloader(buttonless Characteristic, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = operationTimeout
	}

	ack := make(chan []byte, 1)
	if err := buttonless.Subscribe(false, func(b []byte) { ack <- b }); err != nil {
		return err
	}
	defer buttonless.Unsubscribe(false)

	if err := buttonless.WriteCharacteristic([]byte{buttonlessRequest}, true); err != nil {
		return err
	}

	select {
	case resp := <-ack:
		if len(resp) != 3 || resp[0] != 0x20 || resp[1] != 0x01 || resp[2] != 0x01 {
			return errors.Errorf("unexpected buttonless acknowledgement % x", resp)
		}
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for reboot acknowledgement")
	}
}
