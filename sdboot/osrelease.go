// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"fmt"
	"strings"

	"github.com/mvo5/goconfigparser"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Distribution identifies the installed OS.
type Distribution struct {
	Name string // display name, Drauger OS
	Stem string // file name stem, Drauger_OS
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func osReleaseValue(cfg *goconfigparser.ConfigParser, key string) string {
	v, err := cfg.Get("", key)
	if err != nil {
		// option names may have been folded to lower case
		v, _ = cfg.Get("", strings.ToLower(key))
	}
	return unquote(v)
}

// ReadDistribution reads NAME, falling back to a title-cased ID, from an
// os-release file.
func ReadDistribution(fs afero.Fs, path string) (Distribution, error) {
	const op = "read os-release"

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Distribution{}, newError(MissingInput, op, err)
	}

	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = true
	if err := cfg.ReadString(string(data)); err != nil {
		return Distribution{}, newError(ConfigurationInvalid, op, err)
	}

	name := osReleaseValue(cfg, "NAME")
	if name == "" {
		id := osReleaseValue(cfg, "ID")
		name = cases.Title(language.Und).String(strings.ReplaceAll(id, "-", " "))
	}
	if name == "" {
		return Distribution{}, newError(ConfigurationInvalid, op, fmt.Errorf("%s has neither NAME nor ID", path))
	}

	return Distribution{Name: name, Stem: strings.Join(strings.Fields(name), "_")}, nil
}
