// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

// Package sdboot generates and maintains systemd-boot loader entries.
package sdboot

import (
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// Names of the files kept in Config.ConfigDir.
const (
	enabledFile      = "enabled.conf"
	defaultEntryFile = "default_entry.conf"
	settingsFile     = "settings.json"
	legacyUUIDFile   = "uuid.conf"
	rootDeviceFile   = "root_device.conf"
	loaderTemplate   = "loader.conf"
)

// Config holds the paths and handles every component works with. It is
// built once at start-up and not modified afterwards.
type Config struct {
	Fs afero.Fs

	ConfigDir     string // operator configuration, /etc/systemd-boot-manager
	BootDir       string // installed kernel images, /boot
	EFIRoot       string // mounted ESP, /boot/efi
	EntriesDir    string // loader entries, <EFIRoot>/loader/entries
	OSReleasePath string
	MachineIDPath string

	Logger hclog.Logger
}

// DefaultConfig returns the system locations on the real filesystem.
func DefaultConfig(logger hclog.Logger) *Config {
	return &Config{
		Fs:            afero.NewOsFs(),
		ConfigDir:     "/etc/systemd-boot-manager",
		BootDir:       "/boot",
		EFIRoot:       "/boot/efi",
		EntriesDir:    "/boot/efi/loader/entries",
		OSReleasePath: "/etc/os-release",
		MachineIDPath: "/etc/machine-id",
		Logger:        logger,
	}
}

func (c *Config) logger() hclog.Logger {
	if c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}

func (c *Config) configPath(name string) string {
	return filepath.Join(c.ConfigDir, name)
}

func (c *Config) loaderConfPath() string {
	return filepath.Join(c.EFIRoot, "loader", "loader.conf")
}
