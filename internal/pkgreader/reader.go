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

// Package pkgreader opens a Nordic DFU update archive (a zip carrying
// manifest.json) and extracts the init packet and firmware image it
// names.
package pkgreader

import (
	"archive/zip"
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"
)

// PackageError wraps any failure opening or parsing an update archive.
type PackageError struct {
	Err error
}

func (e *PackageError) Error() string { return e.Err.Error() }
func (e *PackageError) Unwrap() error { return e.Err }

func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &PackageError{Err: errors.Wrap(err, msg)}
}

type application struct {
	DatFile string `json:"dat_file"`
	BinFile string `json:"bin_file"`
}

type manifest struct {
	Manifest struct {
		Application application     `json:"application"`
		Bootloader  json.RawMessage `json:"bootloader"`
		Softdevice  json.RawMessage `json:"softdevice"`
	} `json:"manifest"`
}

// Read opens the update archive at path and returns the init packet
// and firmware payload it names. It fails if the archive cannot be
// opened, the manifest cannot be parsed, the application entry is
// missing, either named member cannot be read, or the manifest also
// names a bootloader or softdevice image (this tool only ever
// updates application images, and a manifest naming more than that is
// rejected rather than silently partially applied).
func Read(path string) (initPacket, firmware []byte, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, wrap(err, "open update archive")
	}
	defer zr.Close()

	m, err := readManifest(&zr.Reader)
	if err != nil {
		return nil, nil, err
	}

	if isPresent(m.Manifest.Bootloader) {
		return nil, nil, wrap(errors.New("manifest names a bootloader image"), "reject package")
	}
	if isPresent(m.Manifest.Softdevice) {
		return nil, nil, wrap(errors.New("manifest names a softdevice image"), "reject package")
	}

	if m.Manifest.Application.DatFile == "" || m.Manifest.Application.BinFile == "" {
		return nil, nil, wrap(errors.New("manifest.application missing dat_file/bin_file"), "parse manifest")
	}

	initPacket, err = readMember(&zr.Reader, m.Manifest.Application.DatFile)
	if err != nil {
		return nil, nil, err
	}

	firmware, err = readMember(&zr.Reader, m.Manifest.Application.BinFile)
	if err != nil {
		return nil, nil, err
	}

	return initPacket, firmware, nil
}

func readManifest(zr *zip.Reader) (manifest, error) {
	var m manifest

	f, err := zr.Open("manifest.json")
	if err != nil {
		return m, wrap(err, "open manifest.json")
	}
	defer f.Close()

	raw, err := ioutil.ReadAll(f)
	if err != nil {
		return m, wrap(err, "read manifest.json")
	}

	if err := json.Unmarshal(raw, &m); err != nil {
		return m, wrap(err, "decode manifest.json")
	}

	return m, nil
}

func readMember(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, wrap(err, "open archive member "+name)
	}
	defer f.Close()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, wrap(err, "read archive member "+name)
	}
	return data, nil
}

func isPresent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "null"
}
