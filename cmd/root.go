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
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/nrfdfu/nrf-dfu-go/internal/ble"
)

// DefaultTimeout bounds how long boot and dfu wait to connect to a
// peripheral before giving up.
const DefaultTimeout = 30 * time.Second

type Command interface {
	init(cli *Cli)
	getCommand() *cobra.Command
}

type globalOptions struct {
	Quiet bool
	Debug bool
}

// targetOptions identifies the DFU peripheral a command operates on.
// boot and dfu both need it; each registers the same flag set on its
// own command through registerTargetFlags.
type targetOptions struct {
	Address        string
	Name           string
	BootloaderName string
	Timeout        time.Duration
}

func (t *targetOptions) validate() error {
	if t.Address == "" && t.Name == "" {
		return errors.New("no address or name specified. Use --address or --name to identify the device")
	}
	return nil
}

// registerTargetFlags wires the --address/--name/--bootloader-name/
// --timeout flags shared by boot and dfu onto cmd, backed by t. Both
// commands need the same peripheral matcher, so the flag definitions
// live here instead of being repeated in each command file.
func registerTargetFlags(cmd *cobra.Command, t *targetOptions) {
	cmd.Flags().DurationVarP(&t.Timeout, "timeout", "t", DefaultTimeout, "Timeout for connecting to device")
	cmd.Flags().StringVarP(&t.Address, "address", "a", "", "Address of device to be targeted")
	cmd.Flags().StringVarP(&t.Name, "name", "n", "", "Advertised name of device to be targeted")
	cmd.Flags().StringVar(&t.BootloaderName, "bootloader-name", ble.DefaultBootloaderName, "Advertised name to look for after a buttonless reboot")
}

type baseCommand struct {
	cmd *cobra.Command
	cli *Cli
}

func (c *baseCommand) init(cli *Cli) {
	c.cli = cli
}

func (c *baseCommand) getCommand() *cobra.Command {
	return c.cmd
}

func (c *baseCommand) AddCommand(command Command) {
	childCmd := command.getCommand()
	c.cmd.AddCommand(childCmd)
}

func newBaseCommand(cmd *cobra.Command) *baseCommand {
	return &baseCommand{cmd: cmd}
}

type Cli struct {
	*baseCommand
	globalOptions
}

func NewCli() *Cli {

	c := &Cli{}

	c.baseCommand = newBaseCommand(&cobra.Command{
		Use:     "nrf-dfu",
		Short:   "A DFU tool for nRF modules",
		Long:    `nrf-dfu is a tool to upload firmware to an nRF51 or nRF52 device.`,
		Version: "0.1",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.InitLogging()
		},
	})

	c.cmd.SilenceUsage = true
	c.cmd.SilenceErrors = true

	c.cmd.PersistentFlags().BoolVarP(&c.Quiet, "quiet", "q", false, "suppress all output")
	c.cmd.PersistentFlags().BoolVarP(&c.Debug, "debug", "D", false, "produce debug output")

	c.AddCommand(newScanCommand())
	c.AddCommand(newBootCommand())
	c.AddCommand(newDfuCommand())

	return c
}

func (c *Cli) AddCommand(command Command) {
	command.init(c)
	c.baseCommand.AddCommand(command)
}

func (c *Cli) InitLogging() {
	if c.Debug {
		jww.SetStdoutThreshold(jww.LevelDebug)
	} else if c.Quiet {
		jww.SetStdoutThreshold(jww.LevelFatal)
	} else {
		jww.SetStdoutThreshold(jww.LevelInfo)
	}
}

func (c *Cli) Execute() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
