// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"strings"

	"github.com/draugeros/systemd-boot-manager/bootctl"
)

// BootManager is the running boot manager's view of the entries.
type BootManager interface {
	List() ([]bootctl.Entry, error)
	SetDefault(id string) error
}

// SyncState compares the live default entry with the declared one.
type SyncState int

const (
	Synchronized SyncState = iota + 1
	Drifted
	// Wildcard means the operator declared no preference.
	Wildcard
)

func (s SyncState) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case Drifted:
		return "drifted"
	case Wildcard:
		return "wildcard"
	}
	return "unknown"
}

// Reconciliation is the outcome of one default entry check.
type Reconciliation struct {
	State     SyncState
	Intent    string // declared entry ID, or WildcardIntent
	Live      string // ID of the live default, empty if there is none
	Corrected bool   // a correction was applied successfully
}

func sameEntry(a, b string) bool {
	return strings.TrimSuffix(a, entryExt) == strings.TrimSuffix(b, entryExt)
}

// CheckDefault compares the boot manager's default entry with the
// declared intent without changing anything.
func (m *Manager) CheckDefault() (Reconciliation, error) {
	rec := Reconciliation{Intent: m.ReadIntent()}

	entries, err := m.BootEntries()
	if err != nil {
		return rec, err
	}
	if def, ok := bootctl.DefaultEntry(entries); ok {
		rec.Live = def.ID
	}

	switch {
	case rec.Intent == WildcardIntent:
		rec.State = Wildcard
	case sameEntry(rec.Live, rec.Intent):
		rec.State = Synchronized
	default:
		rec.State = Drifted
	}
	return rec, nil
}

// Reconcile checks the default entry and, on drift, makes the declared
// entry the default again. The intent file is left untouched. A failed
// correction is logged and reported through Corrected only.
func (m *Manager) Reconcile() (Reconciliation, error) {
	log := m.cfg.logger()

	rec, err := m.CheckDefault()
	if err != nil || rec.State != Drifted {
		return rec, err
	}

	log.Error("live default boot entry does not match the default on file", "live", rec.Live, "declared", rec.Intent)
	log.Error("changing default boot entry to match the default on file", "entry", rec.Intent)

	settings, _ := m.LoadSettings()
	if err := m.applyDefault(settings, rec.Intent); err != nil {
		log.Error("cannot change default boot entry", "entry", rec.Intent, "error", err)
		return rec, nil
	}
	rec.Corrected = true
	return rec, nil
}

// applyDefault makes id the default in the boot manager, through
// loader.conf when EFI variables must not be written.
func (m *Manager) applyDefault(settings Settings, id string) error {
	if settings.NoVar {
		distro, err := ReadDistribution(m.cfg.Fs, m.cfg.OSReleasePath)
		if err != nil {
			return err
		}
		_, err = m.UpdateLoaderConfig(settings, id, distro)
		return err
	}
	if err := m.bootMgr.SetDefault(id); err != nil {
		return newError(ExternalToolFailure, "set default entry", err)
	}
	return nil
}

// SetDefault declares id as the default entry and applies it. The
// wildcard only switches enforcement off.
func (m *Manager) SetDefault(id string) error {
	id = strings.TrimSpace(id)
	if err := checkEntryID("set default entry", id); err != nil {
		return err
	}
	if err := m.WriteIntent(id); err != nil {
		return err
	}
	if id == WildcardIntent {
		return nil
	}
	settings, _ := m.LoadSettings()
	return m.applyDefault(settings, id)
}
