// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

// Package blockdev queries block device metadata through lsblk(8).
package blockdev

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Column names understood by Lsblk.Devices.
const (
	ColumnPath       = "path"
	ColumnType       = "type"
	ColumnMountpoint = "mountpoint"
	ColumnPartUUID   = "partuuid"
	ColumnUUID       = "uuid"
	ColumnLabel      = "label"
)

// TypeLoop is the lsblk TYPE of loopback devices.
const TypeLoop = "loop"

// Device is a single record of the lsblk blockdevices array. Columns that
// were not requested, or that lsblk reported as null, are empty.
type Device struct {
	Path       string   `json:"path"`
	Type       string   `json:"type"`
	Mountpoint string   `json:"mountpoint"`
	PartUUID   string   `json:"partuuid"`
	UUID       string   `json:"uuid"`
	Label      string   `json:"label"`
	Children   []Device `json:"children"`
}

// Get returns the value of the named column.
func (d Device) Get(column string) string {
	switch column {
	case ColumnPath:
		return d.Path
	case ColumnType:
		return d.Type
	case ColumnMountpoint:
		return d.Mountpoint
	case ColumnPartUUID:
		return d.PartUUID
	case ColumnUUID:
		return d.UUID
	case ColumnLabel:
		return d.Label
	}
	return ""
}

// IsLoop reports whether the device is a loopback device.
func (d Device) IsLoop() bool {
	return d.Type == TypeLoop
}

type lsblkOutput struct {
	BlockDevices []Device `json:"blockdevices"`
}

// ToolError is returned when lsblk exits unsuccessfully.
type ToolError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("lsblk %s failed: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("lsblk %s failed: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Lsblk runs the lsblk binary at Path, or "lsblk" from $PATH if empty.
type Lsblk struct {
	Path string
}

// Devices lists all block devices with the requested columns. Nested
// children are flattened into the result; loop devices are not filtered.
func (l Lsblk) Devices(columns ...string) ([]Device, error) {
	bin := l.Path
	if bin == "" {
		bin = "lsblk"
	}
	args := []string{"--json", "--list", "--output", strings.ToUpper(strings.Join(columns, ","))}

	var stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, &ToolError{Args: args, Output: strings.TrimSpace(stderr.String()), Err: err}
	}

	return Parse(output)
}

// Parse decodes lsblk JSON output.
func Parse(data []byte) ([]Device, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse lsblk output: %w", err)
	}
	return flatten(out.BlockDevices), nil
}

func flatten(devs []Device) []Device {
	var out []Device
	for _, d := range devs {
		children := d.Children
		d.Children = nil
		out = append(out, d)
		out = append(out, flatten(children)...)
	}
	return out
}

// WithoutLoop returns devs with all loopback devices removed.
func WithoutLoop(devs []Device) []Device {
	var out []Device
	for _, d := range devs {
		if !d.IsLoop() {
			out = append(out, d)
		}
	}
	return out
}
