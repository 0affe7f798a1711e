// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"errors"

	"gopkg.in/check.v1"
)

type managerSuite struct {
	mapFsMixin
}

var _ = check.Suite(&managerSuite{})

func (s *managerSuite) SetUpTest(c *check.C) {
	s.mapFsMixin.SetUpTest(c)
	s.writeFile(c, "/etc/os-release", testOSRelease)
	s.writeFile(c, "/etc/systemd-boot-manager/loader.conf", "timeout 3\n")
	for _, v := range []string{"5.15.0-91-generic", "6.1.0-1-generic"} {
		s.writeFile(c, "/boot/vmlinuz-"+v, "kernel "+v)
		s.writeFile(c, "/boot/initrd.img-"+v, "initrd "+v)
	}
}

func (s *managerSuite) writeStaleFiles(c *check.C) {
	s.writeFile(c, "/boot/efi/loader/entries/Drauger_OS-5.4.0-1-generic.conf", "stale")
	s.writeFile(c, "/boot/efi/loader/entries/Drauger_OS-5.4.0-1-generic_Recovery.conf", "stale")
	s.writeFile(c, "/boot/efi/loader/entries/windows.conf", "not ours")
	s.writeFile(c, "/boot/efi/Drauger_OS/vmlinuz-5.4.0-1-generic", "stale")
}

func (s *managerSuite) TestUpdateEntriesLegacy(c *check.C) {
	s.writeStaleFiles(c)

	res, err := s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Root, check.Equals, RootPointer{Value: "PARTUUID=2222-bbbb", Source: RootInferred})
	c.Check(res.Latest.Version, check.Equals, "6.1.0-1-generic")
	c.Check(res.Skipped, check.HasLen, 0)
	c.Check(res.Written, check.DeepEquals, []string{
		"/boot/efi/Drauger_OS/vmlinuz-6.1.0-1-generic",
		"/boot/efi/Drauger_OS/initrd.img-6.1.0-1-generic",
		"/boot/efi/Drauger_OS/vmlinuz",
		"/boot/efi/Drauger_OS/initrd.img",
		"/boot/efi/Drauger_OS/vmlinuz-5.15.0-91-generic",
		"/boot/efi/Drauger_OS/initrd.img-5.15.0-91-generic",
		"/boot/efi/loader/entries/Drauger_OS.conf",
		"/boot/efi/loader/entries/Drauger_OS-6.1.0-1-generic.conf",
		"/boot/efi/loader/entries/Drauger_OS-5.15.0-91-generic.conf",
		"/boot/efi/loader/entries/Drauger_OS_Recovery.conf",
		"/boot/efi/loader/entries/Drauger_OS-6.1.0-1-generic_Recovery.conf",
		"/boot/efi/loader/entries/Drauger_OS-5.15.0-91-generic_Recovery.conf",
	})
	c.Check(res.Removed, check.DeepEquals, []string{
		"/boot/efi/Drauger_OS/vmlinuz-5.4.0-1-generic",
		"/boot/efi/loader/entries/Drauger_OS-5.4.0-1-generic.conf",
		"/boot/efi/loader/entries/Drauger_OS-5.4.0-1-generic_Recovery.conf",
	})

	c.Check(s.readFile(c, "/boot/efi/loader/entries/Drauger_OS.conf"), check.Equals, `title Drauger OS
linux /Drauger_OS/vmlinuz
initrd /Drauger_OS/initrd.img
options root=PARTUUID=2222-bbbb quiet splash
`)
	c.Check(s.readFile(c, "/boot/efi/loader/entries/Drauger_OS-5.15.0-91-generic_Recovery.conf"), check.Equals, `title Drauger OS, with Linux 5.15.0-91-generic Recovery
linux /Drauger_OS/vmlinuz-5.15.0-91-generic
initrd /Drauger_OS/initrd.img-5.15.0-91-generic
options root=PARTUUID=2222-bbbb ro recovery nomodeset
`)
	c.Check(s.readFile(c, "/boot/efi/Drauger_OS/vmlinuz"), check.Equals, "kernel 6.1.0-1-generic")
	c.Check(s.readFile(c, "/boot/efi/loader/entries/windows.conf"), check.Equals, "not ours")
	c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "timeout 3\n")

	// a second run only rewrites the entries
	res, err = s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Written, check.HasLen, 6)
	c.Check(res.Removed, check.HasLen, 0)
}

func (s *managerSuite) TestUpdateEntriesSettings(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/settings.json", `{
    "key": "uuid",
    "standard_boot_args": "quiet",
    "dual-boot": true,
    "no-var": true
}`)
	s.writeFile(c, "/etc/systemd-boot-manager/root_device.conf", "/dev/sda2")
	s.writeFile(c, "/etc/systemd-boot-manager/default_entry.conf", "Drauger_OS-5.15.0-91-generic.conf")

	res, err := s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Root, check.Equals, RootPointer{Value: "UUID=5e0a-0077", Source: RootFromOverride})
	c.Check(s.readFile(c, "/boot/efi/loader/entries/Drauger_OS-6.1.0-1-generic.conf"), check.Equals, `title Drauger OS, with Linux 6.1.0-1-generic
linux /Drauger_OS/vmlinuz-6.1.0-1-generic
initrd /Drauger_OS/initrd.img-6.1.0-1-generic
options root=UUID=5e0a-0077 quiet
`)
	c.Check(s.readFile(c, "/boot/efi/loader/loader.conf"), check.Equals, "default Drauger_OS-5.15.0-91-generic.conf\ntimeout 5\n")
}

func (s *managerSuite) TestUpdateEntriesNewLayout(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/settings.json", `{"compat_mode": false}`)
	for _, dir := range []string{"EFI", "loader", "0123abcd"} {
		c.Assert(s.fs.MkdirAll("/boot/efi/"+dir, 0755), check.IsNil)
	}

	res, err := s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Written, check.HasLen, 6)
	c.Check(s.readFile(c, "/boot/efi/loader/entries/Drauger_OS.conf"), check.Equals, `title Drauger OS
linux /0123abcd/6.1.0-1-generic/linux
initrd /0123abcd/6.1.0-1-generic/initrd
options root=PARTUUID=2222-bbbb quiet splash
`)
	// kernel-install owns the images in this layout
	c.Check(s.exists("/boot/efi/Drauger_OS"), check.Equals, false)
}

func (s *managerSuite) TestUpdateEntriesNewLayoutAmbiguous(c *check.C) {
	s.writeFile(c, "/etc/systemd-boot-manager/settings.json", `{"compat_mode": false}`)
	for _, dir := range []string{"aaaa", "bbbb"} {
		c.Assert(s.fs.MkdirAll("/boot/efi/"+dir, 0755), check.IsNil)
	}

	res, err := s.mgr.UpdateEntries()
	c.Check(KindOf(err), check.Equals, AmbiguousInput)
	c.Check(res.Written, check.HasLen, 0)
}

func (s *managerSuite) TestUpdateEntriesUnprivileged(c *check.C) {
	s.writeStaleFiles(c)
	s.mockUnprivileged()

	res, err := s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Written, check.HasLen, 0)
	c.Check(res.Removed, check.HasLen, 0)
	// 6 images, 6 entries, 3 obsolete files and loader.conf
	c.Check(res.Skipped, check.HasLen, 16)
	c.Check(s.exists("/boot/efi/loader/entries/Drauger_OS.conf"), check.Equals, false)
	c.Check(s.exists("/boot/efi/loader/entries/Drauger_OS-5.4.0-1-generic.conf"), check.Equals, true)
}

func (s *managerSuite) TestUpdateEntriesMissingInitrd(c *check.C) {
	c.Assert(s.fs.Remove("/boot/initrd.img-5.15.0-91-generic"), check.IsNil)

	res, err := s.mgr.UpdateEntries()
	c.Assert(err, check.IsNil)
	c.Check(res.Written, check.HasLen, 11)
	c.Check(s.exists("/boot/efi/Drauger_OS/initrd.img-5.15.0-91-generic"), check.Equals, false)
}

func (s *managerSuite) TestUpdateEntriesMissingTemplate(c *check.C) {
	c.Assert(s.fs.Remove("/etc/systemd-boot-manager/loader.conf"), check.IsNil)

	res, err := s.mgr.UpdateEntries()
	c.Check(errors.Is(err, ErrMissingTemplate), check.Equals, true)
	c.Check(ExitCode(err), check.Equals, ExitMissingTemplate)
	// entries are written before loader.conf
	c.Check(res.Written, check.HasLen, 12)
}

func (s *managerSuite) TestUpdateEntriesNoKernels(c *check.C) {
	for _, v := range []string{"5.15.0-91-generic", "6.1.0-1-generic"} {
		c.Assert(s.fs.Remove("/boot/vmlinuz-"+v), check.IsNil)
	}

	_, err := s.mgr.UpdateEntries()
	c.Check(ExitCode(err), check.Equals, ExitNoKernels)
	c.Check(s.disks.calls, check.HasLen, 0)
}

func (s *managerSuite) TestUpdateEntriesNoRoot(c *check.C) {
	s.disks.devices = nil

	_, err := s.mgr.UpdateEntries()
	c.Check(ExitCode(err), check.Equals, ExitRootNotFound)
	c.Check(s.exists("/boot/efi/loader/entries"), check.Equals, false)
}

func (s *managerSuite) TestUpdateEntriesMissingOSRelease(c *check.C) {
	c.Assert(s.fs.Remove("/etc/os-release"), check.IsNil)

	_, err := s.mgr.UpdateEntries()
	c.Check(KindOf(err), check.Equals, MissingInput)
}

func (s *managerSuite) TestKernels(c *check.C) {
	catalog, err := s.mgr.Kernels()
	c.Assert(err, check.IsNil)
	c.Check(catalog.Versions(), check.DeepEquals, []string{"6.1.0-1-generic", "5.15.0-91-generic"})
}

func (s *managerSuite) TestEntryVersion(c *check.C) {
	for _, tc := range []struct {
		name, version string
		ok            bool
	}{
		{"Drauger_OS-5.15.0-91-generic.conf", "5.15.0-91-generic", true},
		{"Drauger_OS-5.15.0-91-generic_Recovery.conf", "5.15.0-91-generic", true},
		{"Drauger_OS.conf", "", false},
		{"Drauger_OS_Recovery.conf", "", false},
		{"Drauger_OS-.conf", "", false},
		{"Other-5.15.0.conf", "", false},
	} {
		version, ok := entryVersion("Drauger_OS", tc.name)
		c.Check(version, check.Equals, tc.version, check.Commentf(tc.name))
		c.Check(ok, check.Equals, tc.ok, check.Commentf(tc.name))
	}
}
