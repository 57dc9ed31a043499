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
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gopkg.in/cheggaaa/pb.v2"

	"github.com/nrfdfu/nrf-dfu-go/internal/ble"
	"github.com/nrfdfu/nrf-dfu-go/internal/dfu"
	"github.com/nrfdfu/nrf-dfu-go/internal/pkgreader"
)

type dfuCommand struct {
	*baseCommand

	target           targetOptions
	firmwareFilename string
}

func newDfuCommand() *dfuCommand {
	c := &dfuCommand{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:   "dfu",
		Short: "Perform device firmware upgrade",
		Args:  cobra.NoArgs,
		Long: `This command can be used to perform a firmware upgrade of an nRF51 or nRF52
device. If the device supports the Buttonless DFU service, this service will
be used to first reboot the device into DFU mode.`,
		Example: `nrf-dfu dfu --address 4b668b2e16e41429fca7af1b0dc50644 --pkg FW.zip
nrf-dfu dfu --address 4b668b2e16e41429fca7af1b0dc50644 --pkg FW.zip --timeout=20s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDfu()
		},
	})

	registerTargetFlags(c.cmd, &c.target)
	c.cmd.Flags().StringVarP(&c.firmwareFilename, "pkg", "p", "", "Filename of the DFU package (.zip)")
	return c
}

func (c *dfuCommand) runDfu() error {
	if err := c.target.validate(); err != nil {
		return err
	}
	if c.firmwareFilename == "" {
		return errors.New("no package specified. Use --pkg to specify the DFU package filename")
	}

	jww.INFO.Printf("Reading package '%s'\n", c.firmwareFilename)
	initPacket, firmware, err := pkgreader.Read(c.firmwareFilename)
	if err != nil {
		return errors.Wrap(err, "failed to read DFU package")
	}

	bleClient, err := ble.NewClient()
	if err != nil {
		return errors.Wrap(err, "failed to create new BLE client")
	}

	jww.INFO.Printf("Connecting to device\n")
	target, err := ble.Connect(bleClient, ble.ConnectOptions{
		Address:        c.target.Address,
		Name:           c.target.Name,
		BootloaderName: c.target.BootloaderName,
		Timeout:        c.target.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to connect to device")
	}
	defer target.Peripheral.Disconnect()

	transport, err := ble.NewDFUTransport(target.Control, target.Data, 0)
	if err != nil {
		return errors.Wrap(err, "failed to set up DFU transport")
	}
	defer transport.Close()

	bar := pb.ProgressBarTemplate(`{{ white "DFU:" }} {{bar . | green}} {{speed . "%s byte/s" | white }}`).Start(len(firmware))

	client := dfu.New(func(uploaded, total int64) {
		bar.SetTotal(total)
		bar.SetCurrent(uploaded)
	})

	jww.INFO.Printf("Transferring firmware\n")
	err = client.Run(context.Background(), transport, initPacket, firmware)
	bar.Finish()

	if err != nil {
		return errors.Wrap(err, "failed to upgrade device firmware")
	}

	jww.INFO.Printf("Device upgraded successfully\n")
	return nil
}
