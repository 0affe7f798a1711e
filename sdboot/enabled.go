// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"os"
	"strings"

	"github.com/spf13/afero"
)

const (
	enabledToken  = "enabled"
	disabledToken = "disabled"
)

// Enabled reports whether automatic management is switched on. A missing
// flag file means enabled and is created if possible. Anything but a
// recognised token reads as disabled.
func (m *Manager) Enabled() bool {
	path := m.cfg.configPath(enabledFile)
	log := m.cfg.logger()

	data, err := afero.ReadFile(m.cfg.Fs, path)
	if os.IsNotExist(err) {
		if err := m.SetEnabled(true); err != nil {
			log.Warn("enable flag missing and cannot be created, defaulting to enabled", "path", path, "error", err)
		}
		return true
	}
	if err != nil {
		log.Warn("cannot read enable flag, treating as disabled", "path", path, "error", err)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case enabledToken, "true", "yes", "1":
		return true
	case disabledToken, "false", "no", "0":
		return false
	}
	log.Warn("unrecognised enable flag, treating as disabled", "path", path, "content", strings.TrimSpace(string(data)))
	return false
}

// SetEnabled writes the enable flag.
func (m *Manager) SetEnabled(enabled bool) error {
	const op = "write enable flag"
	path := m.cfg.configPath(enabledFile)
	if err := checkWritable(op, path); err != nil {
		return err
	}
	token := disabledToken
	if enabled {
		token = enabledToken
	}
	if err := writeFile(m.cfg.Fs, path, []byte(token)); err != nil {
		return newError(MissingInput, op, err)
	}
	return nil
}
