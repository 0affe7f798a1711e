// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/draugeros/systemd-boot-manager/bootctl"
)

// Manager maintains the loader entries of one system.
type Manager struct {
	cfg     *Config
	disks   DiskEnumerator
	bootMgr BootManager
}

// NewManager returns a Manager working on cfg with the given collaborators.
func NewManager(cfg *Config, disks DiskEnumerator, bootMgr BootManager) *Manager {
	return &Manager{cfg: cfg, disks: disks, bootMgr: bootMgr}
}

// Kernels returns the installed kernels ordered by the configured scheme.
func (m *Manager) Kernels() (KernelCatalog, error) {
	settings, _ := m.LoadSettings()
	return ScanKernels(m.cfg.Fs, m.cfg.BootDir, settings.VersionScheme)
}

// BootEntries returns the entries known to the boot manager.
func (m *Manager) BootEntries() ([]bootctl.Entry, error) {
	entries, err := m.bootMgr.List()
	if err != nil {
		return nil, newError(ExternalToolFailure, "list boot entries", err)
	}
	return entries, nil
}

// UpdateResult summarises an UpdateEntries run.
type UpdateResult struct {
	Root    RootPointer
	Latest  KernelRecord
	Written []string // files written
	Removed []string // files removed
	Skipped []string // files not written for lack of privileges
}

// skip records a write that was refused for lack of privileges. Any other
// error is returned unchanged.
func (m *Manager) skip(res *UpdateResult, path string, err error) error {
	if KindOf(err) != NotPrivileged {
		return err
	}
	m.cfg.logger().Warn("not running as root, skipping write", "path", path)
	res.Skipped = append(res.Skipped, path)
	return nil
}

// UpdateEntries regenerates every loader entry: the latest kernel and
// each installed version, in normal and recovery flavour. Entries of
// kernels no longer installed are removed.
func (m *Manager) UpdateEntries() (UpdateResult, error) {
	var res UpdateResult
	log := m.cfg.logger()

	settings, status := m.LoadSettings()
	if status == SettingsDefaulted {
		log.Info("using default settings")
	}

	distro, err := ReadDistribution(m.cfg.Fs, m.cfg.OSReleasePath)
	if err != nil {
		return res, err
	}

	catalog, err := ScanKernels(m.cfg.Fs, m.cfg.BootDir, settings.VersionScheme)
	if err != nil {
		return res, err
	}
	res.Latest = catalog.Latest()
	log.Debug("found kernels", "latest", res.Latest.Version, "versions", catalog.Versions())

	res.Root, err = m.ResolveRootPointer(settings.Key)
	if err != nil {
		return res, err
	}
	log.Debug("resolved root pointer", "root", res.Root.Value, "source", res.Root.Source)

	renderer := Renderer{
		Layout:       settings.Layout(),
		Distro:       distro.Stem,
		DistroName:   distro.Name,
		Root:         res.Root,
		StandardArgs: settings.StandardArgs,
		RecoveryArgs: settings.RecoveryArgs,
	}
	if renderer.Layout == LayoutNew {
		renderer.EntryToken, err = DiscoverEntryToken(m.cfg.Fs, m.cfg.EFIRoot, distro.Stem, m.cfg.MachineIDPath)
		if err != nil {
			return res, err
		}
	} else {
		if err := m.InstallKernels(catalog, distro, &res); err != nil {
			return res, err
		}
	}

	var targets []EntryTarget
	for _, recovery := range []bool{false, true} {
		targets = append(targets, EntryTarget{Version: res.Latest.Version, Latest: true, Recovery: recovery})
		for _, rec := range catalog {
			targets = append(targets, EntryTarget{Version: rec.Version, Recovery: recovery})
		}
	}
	for _, target := range targets {
		dst := filepath.Join(m.cfg.EntriesDir, EntryFilename(distro.Stem, target))
		if err := checkWritable("write entry", dst); err != nil {
			if err := m.skip(&res, dst, err); err != nil {
				return res, err
			}
			continue
		}
		written, err := WriteEntry(m.cfg.Fs, m.cfg.EntriesDir, renderer, target)
		if err != nil {
			return res, fmt.Errorf("cannot write entry for %s: %w", target.Version, err)
		}
		res.Written = append(res.Written, written)
	}

	if err := m.removeObsoleteEntries(catalog, distro, &res); err != nil {
		return res, err
	}

	if _, err := m.UpdateLoaderConfig(settings, m.ReadIntent(), distro); err != nil {
		if err := m.skip(&res, m.cfg.loaderConfPath(), err); err != nil {
			return res, err
		}
	}

	return res, nil
}

// entryVersion extracts the kernel version from a versioned entry file
// name, or returns false for any other file.
func entryVersion(stem, name string) (string, bool) {
	if !strings.HasPrefix(name, stem+"-") || !strings.HasSuffix(name, entryExt) {
		return "", false
	}
	version := strings.TrimSuffix(strings.TrimPrefix(name, stem+"-"), entryExt)
	version = strings.TrimSuffix(version, recoveryFileSuffix)
	return version, version != ""
}

func (m *Manager) removeObsoleteEntries(catalog KernelCatalog, distro Distribution, res *UpdateResult) error {
	infos, err := afero.ReadDir(m.cfg.Fs, m.cfg.EntriesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newError(MissingInput, "remove obsolete entries", err)
	}
	for _, info := range infos {
		version, ok := entryVersion(distro.Stem, info.Name())
		if !ok || catalog.Has(version) {
			continue
		}
		if err := m.remove(filepath.Join(m.cfg.EntriesDir, info.Name()), res); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) remove(path string, res *UpdateResult) error {
	if err := checkWritable("remove file", path); err != nil {
		return m.skip(res, path, err)
	}
	if err := m.cfg.Fs.Remove(path); err != nil {
		return fmt.Errorf("could not remove %s: %w", path, err)
	}
	m.cfg.logger().Info("removed obsolete file", "path", path)
	res.Removed = append(res.Removed, path)
	return nil
}

// InstallKernels copies kernels and ramdisks from the boot directory to
// <EFIRoot>/<distro>, each under its versioned name and the latest also
// as plain vmlinuz and initrd.img. Files are only rewritten if their
// content changed. Images of kernels no longer installed are removed.
func (m *Manager) InstallKernels(catalog KernelCatalog, distro Distribution, res *UpdateResult) error {
	targetDir := filepath.Join(m.cfg.EFIRoot, distro.Stem)
	log := m.cfg.logger()

	type copyJob struct{ src, dst string }
	var jobs []copyJob
	for i, rec := range catalog {
		kernel := filepath.Join(m.cfg.BootDir, rec.Filename)
		initrd := filepath.Join(m.cfg.BootDir, rec.InitrdFilename())
		jobs = append(jobs,
			copyJob{kernel, filepath.Join(targetDir, rec.Filename)},
			copyJob{initrd, filepath.Join(targetDir, rec.InitrdFilename())})
		if i == 0 {
			jobs = append(jobs,
				copyJob{kernel, filepath.Join(targetDir, "vmlinuz")},
				copyJob{initrd, filepath.Join(targetDir, "initrd.img")})
		}
	}

	for _, job := range jobs {
		if _, err := m.cfg.Fs.Stat(job.src); errors.Is(err, os.ErrNotExist) {
			log.Warn("missing boot image, not installing", "path", job.src)
			continue
		}
		if err := checkWritable("install kernel", job.dst); err != nil {
			if err := m.skip(res, job.dst, err); err != nil {
				return err
			}
			continue
		}
		updated, err := MaybeUpdateFile(m.cfg.Fs, job.dst, job.src)
		if err != nil {
			return newError(MissingInput, "install kernel", err)
		}
		if updated {
			log.Info("installed boot image", "path", job.dst)
			res.Written = append(res.Written, job.dst)
		}
	}

	return m.RemoveObsoleteKernels(catalog, distro, res)
}

// RemoveObsoleteKernels removes versioned images from <EFIRoot>/<distro>
// whose kernel is no longer installed.
func (m *Manager) RemoveObsoleteKernels(catalog KernelCatalog, distro Distribution, res *UpdateResult) error {
	targetDir := filepath.Join(m.cfg.EFIRoot, distro.Stem)
	infos, err := afero.ReadDir(m.cfg.Fs, targetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newError(MissingInput, "remove obsolete kernels", err)
	}

	for _, info := range infos {
		name := info.Name()
		var version string
		switch {
		case strings.HasPrefix(name, kernelPrefix):
			version = strings.TrimPrefix(name, kernelPrefix)
		case strings.HasPrefix(name, initrdPrefix):
			version = strings.TrimPrefix(name, initrdPrefix)
		default:
			continue
		}
		if catalog.Has(version) {
			continue
		}
		if err := m.remove(filepath.Join(targetDir, name), res); err != nil {
			return err
		}
	}
	return nil
}
