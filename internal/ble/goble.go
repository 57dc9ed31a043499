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
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// GoBleInitFunc constructs the platform HCI device exactly once; callers
// pass e.g. linux_hci.NewDevice-style constructors from the go-ble/ble
// platform packages.
type GoBleInitFunc func() (ble.Device, error)

var currentDevice *ble.Device

// goBleClient is the github.com/go-ble/ble-backed Client.
type goBleClient struct {
	device *ble.Device
}

// NewGoBleClient sets up the default BLE host device the first time it
// is called and returns a Client bound to it. Later calls reuse the
// same device, since go-ble only supports one HCI device at a time.
func NewGoBleClient(init GoBleInitFunc) (Client, error) {
	if currentDevice == nil {
		device, err := init()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create new BLE device")
		}
		ble.SetDefaultDevice(device)
		currentDevice = &device
	}
	return &goBleClient{device: currentDevice}, nil
}

func (c *goBleClient) ConnectName(name string, timeout time.Duration) (Peripheral, error) {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), timeout))

	client, err := ble.Connect(ctx, func(a ble.Advertisement) bool {
		return strings.EqualFold(a.LocalName(), name)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to device")
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover device profile")
	}

	return &goBlePeripheral{address: client.Addr().String(), client: client, profile: profile}, nil
}

func (c *goBleClient) ConnectAddress(address string, timeout time.Duration) (Peripheral, error) {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), timeout))

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to device")
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover device profile")
	}

	return &goBlePeripheral{address: address, client: client, profile: profile}, nil
}

func (c *goBleClient) Scan(duration time.Duration, handler AdvertisementHandler) error {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), duration))

	err := ble.Scan(ctx, false, adaptAdvHandler(handler), nil)
	switch errors.Cause(err) {
	case context.DeadlineExceeded, context.Canceled:
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to start BLE scan")
	}
	return nil
}

func adaptAdvHandler(handler AdvertisementHandler) ble.AdvHandler {
	return func(a ble.Advertisement) {
		var services []string
		for _, s := range a.Services() {
			services = append(services, s.String())
		}
		handler(Advertisement{Name: a.LocalName(), Addr: a.Addr().String(), Services: services})
	}
}

type goBlePeripheral struct {
	address string
	client  ble.Client
	profile *ble.Profile
}

func (p *goBlePeripheral) Addr() string { return p.address }

func (p *goBlePeripheral) Disconnect() error {
	return p.client.CancelConnection()
}

func (p *goBlePeripheral) FindService(uuid string) Service {
	id, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	s := p.profile.FindService(ble.NewService(id))
	if s == nil {
		return nil
	}
	return &goBleService{client: p.client, service: s}
}

func (p *goBlePeripheral) FindCharacteristic(uuid string) Characteristic {
	id, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	c := p.profile.FindCharacteristic(ble.NewCharacteristic(id))
	if c == nil {
		return nil
	}
	return &goBleCharacteristic{client: p.client, characteristic: c}
}

type goBleService struct {
	client  ble.Client
	service *ble.Service
}

func (s *goBleService) UUID() string { return s.service.UUID.String() }

func (s *goBleService) FindCharacteristic(uuid string) Characteristic {
	id, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	for _, c := range s.service.Characteristics {
		if c.UUID.Equal(id) {
			return &goBleCharacteristic{client: s.client, characteristic: c}
		}
	}
	return nil
}

type goBleCharacteristic struct {
	client         ble.Client
	characteristic *ble.Characteristic
}

func (c *goBleCharacteristic) UUID() string { return c.characteristic.UUID.String() }

func (c *goBleCharacteristic) WriteCharacteristic(data []byte, noResp bool) error {
	if err := c.client.WriteCharacteristic(c.characteristic, data, noResp); err != nil {
		return errors.Wrap(err, "failed to write to BLE characteristic")
	}
	return nil
}

func (c *goBleCharacteristic) Subscribe(indication bool, f func([]byte)) error {
	if err := c.client.Subscribe(c.characteristic, indication, f); err != nil {
		return errors.Wrap(err, "failed to subscribe to BLE characteristic value changes")
	}
	return nil
}

func (c *goBleCharacteristic) Unsubscribe(indication bool) error {
	if err := c.client.Unsubscribe(c.characteristic, indication); err != nil {
		return errors.Wrap(err, "failed to unsubscribe from BLE characteristic value changes")
	}
	return nil
}
