// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// menu timeout used when other systems are installed next to us
const dualBootTimeout = 5

// renderLoaderConfig returns template with the default and timeout keys
// replaced as requested. Empty defaultID keeps the template's default.
func renderLoaderConfig(template, defaultID string, dualBoot bool) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(template, "\n"), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			switch {
			case fields[0] == "default" && defaultID != "":
				continue
			case fields[0] == "timeout" && dualBoot:
				continue
			}
		}
		lines = append(lines, line)
	}
	if defaultID != "" {
		lines = append(lines, "default "+defaultID)
	}
	if dualBoot {
		lines = append(lines, fmt.Sprintf("timeout %d", dualBootTimeout))
	}
	return strings.Join(lines, "\n") + "\n"
}

// UpdateLoaderConfig writes loader.conf from the operator's template.
// With no-var the default entry is pinned in loader.conf since no EFI
// variable may be written; the template's own default is kept otherwise.
func (m *Manager) UpdateLoaderConfig(settings Settings, intent string, distro Distribution) (bool, error) {
	const op = "update loader.conf"
	src := m.cfg.configPath(loaderTemplate)

	template, err := afero.ReadFile(m.cfg.Fs, src)
	if os.IsNotExist(err) {
		return false, newError(MissingInput, op, fmt.Errorf("%w: %s", ErrMissingTemplate, src))
	}
	if err != nil {
		return false, newError(MissingInput, op, err)
	}

	defaultID := ""
	if settings.NoVar {
		defaultID = intent
		if defaultID == WildcardIntent {
			defaultID = EntryFilename(distro.Stem, EntryTarget{Latest: true})
		}
	}

	dst := m.cfg.loaderConfPath()
	if err := checkWritable(op, dst); err != nil {
		return false, err
	}
	updated, err := maybeWriteFile(m.cfg.Fs, dst, []byte(renderLoaderConfig(string(template), defaultID, settings.DualBoot)))
	if err != nil {
		return false, newError(MissingInput, op, err)
	}
	return updated, nil
}
