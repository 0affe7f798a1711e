// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"errors"

	"gopkg.in/check.v1"

	"github.com/draugeros/systemd-boot-manager/bootctl"
)

type reconcileSuite struct {
	mapFsMixin
}

var _ = check.Suite(&reconcileSuite{})

func (s *reconcileSuite) SetUpTest(c *check.C) {
	s.mapFsMixin.SetUpTest(c)
	s.bootMgr.entries = []bootctl.Entry{
		{Title: "Drauger OS", ID: "Drauger_OS.conf", Default: true},
		{Title: "Drauger OS Recovery", ID: "Drauger_OS_Recovery.conf"},
	}
}

func (s *reconcileSuite) TestWildcard(c *check.C) {
	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec, check.Equals, Reconciliation{State: Wildcard, Intent: "#", Live: "Drauger_OS.conf"})
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
}

func (s *reconcileSuite) TestExplicitWildcard(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "#\n# comment\n")
	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec.State, check.Equals, Wildcard)
}

func (s *reconcileSuite) TestSynchronized(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS\n")

	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec, check.Equals, Reconciliation{State: Synchronized, Intent: "Drauger_OS", Live: "Drauger_OS.conf"})
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
}

func (s *reconcileSuite) TestDriftCorrected(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS_Recovery.conf   # keep recovery\n")

	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec, check.Equals, Reconciliation{
		State:     Drifted,
		Intent:    "Drauger_OS_Recovery.conf",
		Live:      "Drauger_OS.conf",
		Corrected: true,
	})
	c.Check(s.bootMgr.setDefaults, check.DeepEquals, []string{"Drauger_OS_Recovery.conf"})
	// the intent is not rewritten
	c.Check(s.readFile(c, "/etc/systemd-boot-manager/default_entry.conf"), check.Equals, "Drauger_OS_Recovery.conf   # keep recovery\n")
}

func (s *reconcileSuite) TestDriftWithoutLiveDefault(c *check.C) {
	s.bootMgr.entries = []bootctl.Entry{{Title: "Drauger OS", ID: "Drauger_OS.conf"}}
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS.conf")

	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec.State, check.Equals, Drifted)
	c.Check(rec.Live, check.Equals, "")
	c.Check(rec.Corrected, check.Equals, true)
}

func (s *reconcileSuite) TestDriftCorrectionFailureIsNotFatal(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Other.conf")
	s.bootMgr.setErr = errors.New("no such entry")

	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec.State, check.Equals, Drifted)
	c.Check(rec.Corrected, check.Equals, false)
	c.Check(s.bootMgr.setDefaults, check.DeepEquals, []string{"Other.conf"})
}

func (s *reconcileSuite) TestDriftNoVarUsesLoaderConfig(c *check.C) {
	s.writeFile(c, "/etc/os-release", testOSRelease)
	s.writeFile(c, "/etc/systemd-boot-manager/settings.json", `{"no-var": true}`)
	s.writeFile(c, "/etc/systemd-boot-manager/loader.conf", "default Drauger_OS.conf\ntimeout 0\n")
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS_Recovery.conf")

	rec, err := s.mgr.Reconcile()
	c.Assert(err, check.IsNil)
	c.Check(rec.Corrected, check.Equals, true)
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
	c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "timeout 0\ndefault Drauger_OS_Recovery.conf\n")
}

func (s *reconcileSuite) TestListFailure(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS.conf")
	s.bootMgr.listErr = errors.New("bootctl not found")

	_, err := s.mgr.Reconcile()
	c.Assert(err, check.ErrorMatches, "list boot entries: bootctl not found")
	c.Check(ExitCode(err), check.Equals, ExitExternalToolFailure)
}

func (s *reconcileSuite) TestSetDefault(c *check.C) {
	c.Assert(s.mgr.SetDefault(" Drauger_OS_Recovery.conf\n"), check.IsNil)
	c.Check(s.bootMgr.setDefaults, check.DeepEquals, []string{"Drauger_OS_Recovery.conf"})
	c.Check(s.mgr.ReadIntent(), check.Equals, "Drauger_OS_Recovery.conf")
}

func (s *reconcileSuite) TestSetDefaultWildcard(c *check.C) {
	c.Assert(s.mgr.SetDefault("#"), check.IsNil)
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
	c.Check(s.mgr.ReadIntent(), check.Equals, WildcardIntent)
}

func (s *reconcileSuite) TestSetDefaultToolFailure(c *check.C) {
	s.bootMgr.setErr = errors.New("no such entry")
	err := s.mgr.SetDefault("Other.conf")
	c.Assert(err, check.ErrorMatches, "set default entry: no such entry")
	c.Check(KindOf(err), check.Equals, ExternalToolFailure)
	// the intent is still recorded
	c.Check(s.mgr.ReadIntent(), check.Equals, "Other.conf")
}

func (s *reconcileSuite) TestSetDefaultRejectsWhitespace(c *check.C) {
	for _, id := range []string{"Drauger OS.conf", "a.conf\tb.conf", "  "} {
		err := s.mgr.SetDefault(id)
		c.Check(err, check.ErrorMatches, `set default entry: invalid entry ID ".*"`, check.Commentf(id))
		c.Check(KindOf(err), check.Equals, ConfigurationInvalid)
		c.Check(ExitCode(err), check.Equals, ExitInvalidConfig)
	}
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
	c.Check(s.exists("/etc/systemd-boot-manager/default_entry.conf"), check.Equals, false)

	err := s.mgr.WriteIntent("two words")
	c.Check(KindOf(err), check.Equals, ConfigurationInvalid)
}

func (s *reconcileSuite) TestSetDefaultUnprivileged(c *check.C) {
	s.mockUnprivileged()
	err := s.mgr.SetDefault("Other.conf")
	c.Assert(err, check.NotNil)
	c.Check(errors.Is(err, ErrNotPrivileged), check.Equals, true)
	c.Check(s.bootMgr.setDefaults, check.HasLen, 0)
	c.Check(s.exists("/etc/systemd-boot-manager/default_entry.conf"), check.Equals, false)
}

func (s *reconcileSuite) TestSyncStateString(c *check.C) {
	c.Check(Synchronized.String(), check.Equals, "synchronized")
	c.Check(Drifted.String(), check.Equals, "drifted")
	c.Check(Wildcard.String(), check.Equals, "wildcard")
	c.Check(SyncState(0).String(), check.Equals, "unknown")
}
