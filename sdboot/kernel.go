// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"fmt"
	"sort"
	"strings"

	debversion "github.com/knqyf263/go-deb-version"
	"github.com/spf13/afero"
)

const (
	kernelPrefix = "vmlinuz-"
	initrdPrefix = "initrd.img-"
)

// suffixes dpkg leaves behind while a package is being unpacked
var inProgressSuffixes = []string{".dpkg-tmp", ".dpkg-new", ".dpkg-bak", ".dpkg-dist"}

// VersionScheme selects how kernels are ordered.
type VersionScheme string

const (
	// SchemeLoose orders the synthetic version keys with Version.Compare.
	SchemeLoose VersionScheme = "loose"
	// SchemeDebian orders full version strings by Debian policy.
	SchemeDebian VersionScheme = "debian"
)

// KernelRecord is one installed kernel image.
type KernelRecord struct {
	Filename string // file name in the boot directory, vmlinuz-5.15.0-91-generic
	Version  string // full version string, 5.15.0-91-generic
	Key      string // unique sort key, 5.15.0.1
}

// InitrdFilename is the name of the matching initial ramdisk.
func (k KernelRecord) InitrdFilename() string {
	return initrdPrefix + k.Version
}

// KernelCatalog is the list of installed kernels, newest first.
type KernelCatalog []KernelRecord

// Latest returns the newest kernel.
func (k KernelCatalog) Latest() KernelRecord {
	return k[0]
}

// Versions returns the full version strings, newest first.
func (k KernelCatalog) Versions() []string {
	out := make([]string, len(k))
	for i, rec := range k {
		out[i] = rec.Version
	}
	return out
}

// Has reports whether version is installed.
func (k KernelCatalog) Has(version string) bool {
	for _, rec := range k {
		if rec.Version == version {
			return true
		}
	}
	return false
}

func isInProgress(name string) bool {
	for _, suffix := range inProgressSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// splitKernelVersion splits 5.15.0-91-generic into the major token 5.15.0
// and the patch token 91.
func splitKernelVersion(version string) (major, patch string) {
	parts := strings.SplitN(version, "-", 3)
	major = parts[0]
	if len(parts) > 1 {
		patch = parts[1]
	}
	return major, patch
}

// assignKeys gives every record a unique key. Records sharing a major
// token are numbered major.1, major.2, ... in ascending patch order, so
// that a newer patch release always gets the higher key.
func assignKeys(records []KernelRecord) {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := records[order[i]], records[order[j]]
		aMajor, aPatch := splitKernelVersion(a.Version)
		bMajor, bPatch := splitKernelVersion(b.Version)
		if c := CompareVersions(aMajor, bMajor); c != 0 {
			return c < 0
		}
		if c := CompareVersions(aPatch, bPatch); c != 0 {
			return c < 0
		}
		return a.Version < b.Version
	})

	assigned := make(map[string]bool)
	for _, i := range order {
		major, patch := splitKernelVersion(records[i].Version)
		key := major
		index := 0
		if patch != "" {
			index = 1
			key = fmt.Sprintf("%s.%d", major, index)
		}
		for assigned[key] {
			index++
			key = fmt.Sprintf("%s.%d", major, index)
		}
		assigned[key] = true
		records[i].Key = key
	}
}

func sortKernels(records []KernelRecord, scheme VersionScheme) {
	less := func(a, b KernelRecord) bool {
		return CompareVersions(a.Key, b.Key) > 0
	}
	if scheme == SchemeDebian {
		less = func(a, b KernelRecord) bool {
			av, aErr := debversion.NewVersion(a.Version)
			bv, bErr := debversion.NewVersion(b.Version)
			if aErr != nil || bErr != nil || av.Equal(bv) {
				return CompareVersions(a.Key, b.Key) > 0
			}
			return av.GreaterThan(bv)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

// ScanKernels lists the kernel images in dir, newest first. Finding no
// kernel at all is an error wrapping ErrNoKernels.
func ScanKernels(fs afero.Fs, dir string, scheme VersionScheme) (KernelCatalog, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, newError(MissingInput, "scan kernels", fmt.Errorf("%w: cannot read %s: %v", ErrNoKernels, dir, err))
	}

	var records []KernelRecord
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasPrefix(name, kernelPrefix) || isInProgress(name) {
			continue
		}
		version := strings.TrimPrefix(name, kernelPrefix)
		if version == "" {
			continue
		}
		records = append(records, KernelRecord{Filename: name, Version: version})
	}
	if len(records) == 0 {
		return nil, newError(MissingInput, "scan kernels", fmt.Errorf("%w in %s", ErrNoKernels, dir))
	}

	assignKeys(records)
	sortKernels(records, scheme)

	return KernelCatalog(records), nil
}
