// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// KeyType selects how the root partition is referenced on the kernel
// command line.
type KeyType string

const (
	KeyUUID     KeyType = "uuid"
	KeyPartUUID KeyType = "partuuid"
	KeyLabel    KeyType = "label"
	KeyPath     KeyType = "path"
)

// ParseKeyType validates s.
func ParseKeyType(s string) (KeyType, error) {
	switch k := KeyType(strings.ToLower(strings.TrimSpace(s))); k {
	case KeyUUID, KeyPartUUID, KeyLabel, KeyPath:
		return k, nil
	}
	return "", fmt.Errorf("unknown key type %q", s)
}

// prefix is the root= prefix, empty for KeyPath.
func (k KeyType) prefix() string {
	if k == KeyPath {
		return ""
	}
	return strings.ToUpper(string(k)) + "="
}

// Names of the settings document keys.
const (
	SettingStandardArgs  = "standard_boot_args"
	SettingRecoveryArgs  = "recovery_args"
	SettingKey           = "key"
	SettingDualBoot      = "dual-boot"
	SettingCompatMode    = "compat_mode"
	SettingNoVar         = "no-var"
	SettingVersionScheme = "version_scheme"
)

// Settings is the operator's settings document.
type Settings struct {
	StandardArgs  string        `json:"standard_boot_args"`
	RecoveryArgs  string        `json:"recovery_args"`
	Key           KeyType       `json:"key"`
	DualBoot      bool          `json:"dual-boot"`
	CompatMode    bool          `json:"compat_mode"`
	NoVar         bool          `json:"no-var"`
	VersionScheme VersionScheme `json:"version_scheme"`
}

// DefaultSettings returns the settings used for absent keys.
func DefaultSettings() Settings {
	return Settings{
		StandardArgs:  "quiet splash",
		RecoveryArgs:  "ro recovery nomodeset",
		Key:           KeyPartUUID,
		DualBoot:      false,
		CompatMode:    true,
		NoVar:         false,
		VersionScheme: SchemeLoose,
	}
}

// Layout returns the entry layout the settings select.
func (s Settings) Layout() Layout {
	if s.CompatMode {
		return LayoutLegacy
	}
	return LayoutNew
}

// LoadStatus tells whether settings came from disk.
type LoadStatus int

const (
	// SettingsLoaded means the document was read; individual invalid
	// values may still have been replaced by defaults.
	SettingsLoaded LoadStatus = iota
	// SettingsDefaulted means the document was missing or unreadable.
	SettingsDefaulted
)

// LoadSettings reads the settings document. A missing or malformed
// document yields the defaults with SettingsDefaulted and a warning.
func (m *Manager) LoadSettings() (Settings, LoadStatus) {
	path := m.cfg.configPath(settingsFile)
	log := m.cfg.logger()

	data, err := afero.ReadFile(m.cfg.Fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("cannot read settings, using defaults", "path", path, "error", err)
		} else {
			log.Debug("no settings file, using defaults", "path", path)
		}
		return DefaultSettings(), SettingsDefaulted
	}

	settings, err := parseSettings(data, log.Warn)
	if err != nil {
		log.Warn("malformed settings, using defaults", "path", path, "error", err)
		return DefaultSettings(), SettingsDefaulted
	}
	return settings, SettingsLoaded
}

// parseSettings decodes data over the defaults. Values of the wrong type
// or outside their enumeration are replaced by the default and reported
// through warn.
func parseSettings(data []byte, warn func(msg string, args ...interface{})) (Settings, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	for name, value := range raw {
		if err := s.apply(name, value); err != nil {
			warn("ignoring invalid setting", "setting", name, "error", err)
		}
	}
	return s, nil
}

func (s *Settings) apply(name string, value json.RawMessage) error {
	var str string
	var b bool
	switch name {
	case SettingStandardArgs, SettingRecoveryArgs, SettingKey, SettingVersionScheme:
		if err := json.Unmarshal(value, &str); err != nil {
			return err
		}
	case SettingDualBoot, SettingCompatMode, SettingNoVar:
		if err := json.Unmarshal(value, &b); err != nil {
			return err
		}
	default:
		return nil
	}
	return s.set(name, str, b)
}

func (s *Settings) set(name, str string, b bool) error {
	switch name {
	case SettingStandardArgs:
		s.StandardArgs = strings.TrimSpace(str)
	case SettingRecoveryArgs:
		s.RecoveryArgs = strings.TrimSpace(str)
	case SettingKey:
		key, err := ParseKeyType(str)
		if err != nil {
			return err
		}
		s.Key = key
	case SettingVersionScheme:
		switch scheme := VersionScheme(strings.ToLower(strings.TrimSpace(str))); scheme {
		case SchemeLoose, SchemeDebian:
			s.VersionScheme = scheme
		default:
			return fmt.Errorf("unknown version scheme %q", str)
		}
	case SettingDualBoot:
		s.DualBoot = b
	case SettingCompatMode:
		s.CompatMode = b
	case SettingNoVar:
		s.NoVar = b
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", raw)
}

// SetSetting coerces raw to the type of the named setting and writes
// the whole settings document.
func (m *Manager) SetSetting(name, raw string) error {
	const op = "set setting"

	settings, _ := m.LoadSettings()
	var b bool
	var err error
	switch name {
	case SettingDualBoot, SettingCompatMode, SettingNoVar:
		b, err = parseBool(raw)
	}
	if err == nil {
		err = settings.set(name, raw, b)
	}
	if err != nil {
		return newError(ConfigurationInvalid, op, err)
	}

	return m.SaveSettings(settings)
}

// SaveSettings writes settings as the settings document.
func (m *Manager) SaveSettings(settings Settings) error {
	const op = "save settings"
	path := m.cfg.configPath(settingsFile)
	if err := checkWritable(op, path); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(settings); err != nil {
		return newError(ConfigurationInvalid, op, err)
	}
	if err := writeFile(m.cfg.Fs, path, buf.Bytes()); err != nil {
		return newError(MissingInput, op, err)
	}
	return nil
}
