// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"fmt"
	"os"
	"strings"

	"github.com/draugeros/systemd-boot-manager/blockdev"
)

// DiskEnumerator lists block devices with the requested columns.
type DiskEnumerator interface {
	Devices(columns ...string) ([]blockdev.Device, error)
}

// RootSource records where a root pointer came from.
type RootSource int

const (
	// RootFromOverride is the device named in root_device.conf.
	RootFromOverride RootSource = iota + 1
	// RootFromLegacyCache is the identifier cached in uuid.conf.
	RootFromLegacyCache
	// RootInferred is the partition currently mounted at /.
	RootInferred
)

func (s RootSource) String() string {
	switch s {
	case RootFromOverride:
		return "override"
	case RootFromLegacyCache:
		return "legacy cache"
	case RootInferred:
		return "inferred"
	}
	return "unknown"
}

// RootPointer is the value of the root= kernel parameter: KEY=value or a
// device path.
type RootPointer struct {
	Value  string
	Source RootSource
}

func (p RootPointer) String() string {
	return p.Value
}

// column sets tried in turn when matching the legacy cache; older lsblk
// versions reject columns they do not know
var legacyColumnSets = [][]string{
	{blockdev.ColumnUUID, blockdev.ColumnPartUUID, blockdev.ColumnLabel},
	{blockdev.ColumnPartUUID, blockdev.ColumnLabel},
	{blockdev.ColumnPartUUID},
	{blockdev.ColumnUUID},
}

// legacy cache values are matched against these in order
var legacyMatchOrder = []KeyType{KeyUUID, KeyPartUUID, KeyLabel}

func keyColumn(key KeyType) string {
	switch key {
	case KeyUUID:
		return blockdev.ColumnUUID
	case KeyPartUUID:
		return blockdev.ColumnPartUUID
	case KeyLabel:
		return blockdev.ColumnLabel
	}
	return blockdev.ColumnPath
}

func formatRoot(key KeyType, value string) string {
	return key.prefix() + value
}

func validPointerValue(value string) bool {
	return value != "" && !strings.ContainsAny(value, " \t\n")
}

// ResolveRootPointer determines the root= value. It tries the device
// override file, then the legacy identifier cache, then the partition
// mounted at /. If none yields a value the error wraps ErrRootNotFound.
func (m *Manager) ResolveRootPointer(key KeyType) (RootPointer, error) {
	if value, ok, err := m.rootFromOverride(key); err != nil || ok {
		return RootPointer{Value: value, Source: RootFromOverride}, err
	}
	if value, ok, err := m.rootFromLegacyCache(); err != nil || ok {
		return RootPointer{Value: value, Source: RootFromLegacyCache}, err
	}
	value, err := m.inferRoot()
	return RootPointer{Value: value, Source: RootInferred}, err
}

func (m *Manager) readConfigToken(name string) (string, bool) {
	path := m.cfg.configPath(name)
	token, err := readFirstLine(m.cfg.Fs, path)
	switch {
	case os.IsNotExist(err):
		return "", false
	case err != nil:
		m.cfg.logger().Warn("cannot read file, ignoring", "path", path, "error", err)
		return "", false
	case token == "":
		m.cfg.logger().Warn("file is empty, ignoring", "path", path)
		return "", false
	}
	return token, true
}

func (m *Manager) devices(op string, columns ...string) ([]blockdev.Device, error) {
	columns = append([]string{blockdev.ColumnPath, blockdev.ColumnType}, columns...)
	devs, err := m.disks.Devices(columns...)
	if err != nil {
		return nil, newError(ExternalToolFailure, op, err)
	}
	return blockdev.WithoutLoop(devs), nil
}

func (m *Manager) rootFromOverride(key KeyType) (string, bool, error) {
	const op = "resolve root device override"
	log := m.cfg.logger()

	device, ok := m.readConfigToken(rootDeviceFile)
	if !ok {
		return "", false, nil
	}

	// a path is only used if lsblk still reports the device
	var columns []string
	column := keyColumn(key)
	if key != KeyPath {
		columns = append(columns, column)
	}
	devs, err := m.devices(op, columns...)
	if err != nil {
		return "", false, err
	}
	for _, dev := range devs {
		if dev.Path != device {
			continue
		}
		value := dev.Get(column)
		if !validPointerValue(value) {
			log.Warn("override device has no usable identifier", "device", device, "key", key)
			return "", false, nil
		}
		return formatRoot(key, value), true, nil
	}

	log.Warn("override device not found", "device", device)
	return "", false, nil
}

func (m *Manager) rootFromLegacyCache() (string, bool, error) {
	const op = "resolve legacy root identifier"
	log := m.cfg.logger()

	token, ok := m.readConfigToken(legacyUUIDFile)
	if !ok {
		return "", false, nil
	}
	for _, key := range legacyMatchOrder {
		token = strings.TrimPrefix(token, key.prefix())
	}
	if !validPointerValue(token) {
		log.Warn("cached root identifier is malformed, ignoring", "identifier", token)
		return "", false, nil
	}

	var devs []blockdev.Device
	var err error
	for _, columns := range legacyColumnSets {
		if devs, err = m.devices(op, columns...); err == nil {
			break
		}
		log.Debug("lsblk query failed, retrying with fewer columns", "columns", columns, "error", err)
	}
	if err != nil {
		return "", false, err
	}

	for _, key := range legacyMatchOrder {
		column := keyColumn(key)
		for _, dev := range devs {
			if dev.Get(column) == token {
				return formatRoot(key, token), true, nil
			}
		}
	}

	log.Warn("cached root identifier matches no device", "identifier", token)
	return "", false, nil
}

func (m *Manager) inferRoot() (string, error) {
	const op = "infer root partition"

	devs, err := m.devices(op, blockdev.ColumnMountpoint, blockdev.ColumnPartUUID)
	if err != nil {
		return "", err
	}
	for _, dev := range devs {
		if dev.Mountpoint != "/" {
			continue
		}
		if !validPointerValue(dev.PartUUID) {
			return "", newError(MissingInput, op, fmt.Errorf("%w: %s has no partition UUID", ErrRootNotFound, dev.Path))
		}
		return formatRoot(KeyPartUUID, dev.PartUUID), nil
	}
	return "", newError(MissingInput, op, ErrRootNotFound)
}
