// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"fmt"
	"os"
	"strings"
)

// WildcardIntent in the default entry file disables enforcement.
const WildcardIntent = "#"

const intentDocumentation = `
# The first line of this file names the loader entry that is kept as the
# default boot entry. Use the entry ID as printed by "bootctl list", for
# example Drauger_OS.conf. A single # on the first line disables the check.
#
# This file is rewritten by "systemd-boot-manager default <entry>".
`

// ReadIntent returns the declared default entry. A missing or empty file
// reads as WildcardIntent.
func (m *Manager) ReadIntent() string {
	path := m.cfg.configPath(defaultEntryFile)
	intent, err := readFirstLine(m.cfg.Fs, path)
	switch {
	case err != nil && !os.IsNotExist(err):
		m.cfg.logger().Warn("cannot read default entry file, not enforcing a default", "path", path, "error", err)
		return WildcardIntent
	case err != nil || intent == "":
		m.cfg.logger().Warn("no default entry declared, not enforcing a default", "path", path)
		return WildcardIntent
	}
	// only the first token counts; comments may follow on the same line
	return strings.Fields(intent)[0]
}

// checkEntryID rejects IDs ReadIntent could not read back whole.
func checkEntryID(op, id string) error {
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		return newError(ConfigurationInvalid, op, fmt.Errorf("invalid entry ID %q", id))
	}
	return nil
}

// WriteIntent declares id as the default entry.
func (m *Manager) WriteIntent(id string) error {
	const op = "write default entry"
	id = strings.TrimSpace(id)
	if err := checkEntryID(op, id); err != nil {
		return err
	}
	path := m.cfg.configPath(defaultEntryFile)
	if err := checkWritable(op, path); err != nil {
		return err
	}
	if err := writeFile(m.cfg.Fs, path, []byte(id+"\n"+intentDocumentation)); err != nil {
		return newError(MissingInput, op, err)
	}
	return nil
}
