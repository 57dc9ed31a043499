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

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/nrfdfu/nrf-dfu-go/internal/ble"
)

type bootCommand struct {
	*baseCommand

	target targetOptions
}

func newBootCommand() *bootCommand {
	c := &bootCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "boot",
		Short: "Reboot device into DFU mode",
		Long: `This command can be used to reboot an nRF51 or nRF52
device into DFU mode using the Buttonless DFU service. Note that the
dfu command already does this automatically if needed.`,
		Example: `nrf-dfu boot --address 4b668b2e16e41429fca7af1b0dc50644
nrf-dfu boot --address 4b668b2e16e41429fca7af1b0dc50644 --timeout=20s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBoot()
		},
	})

	registerTargetFlags(c.cmd, &c.target)

	return c
}

func (c *bootCommand) runBoot() error {
	if err := c.target.validate(); err != nil {
		return err
	}

	jww.INFO.Printf("Rebooting device into DFU mode\n")

	bleClient, err := ble.NewClient()
	if err != nil {
		return errors.Wrap(err, "failed to create new BLE client")
	}

	target, err := ble.Connect(bleClient, ble.ConnectOptions{
		Address:        c.target.Address,
		Name:           c.target.Name,
		BootloaderName: c.target.BootloaderName,
		Timeout:        c.target.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to boot device into DFU mode")
	}
	defer target.Peripheral.Disconnect()

	jww.INFO.Printf("Bootloader active on %s\n", target.Peripheral.Addr())
	return nil
}
