// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Layout is the on-ESP location convention of kernels and ramdisks.
type Layout int

const (
	// LayoutLegacy keeps images in /<distro>/vmlinuz[-<version>].
	LayoutLegacy Layout = iota + 1
	// LayoutNew keeps images in /<entry-token>/<version>/linux, as
	// installed by kernel-install.
	LayoutNew
)

func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutNew:
		return "new"
	}
	return "unknown"
}

const (
	recoveryTitleSuffix = " Recovery"
	recoveryFileSuffix  = "_Recovery"
	entryExt            = ".conf"
)

// Entry is a loader entry: exactly four lines in fixed order.
type Entry struct {
	Title   string
	Linux   string
	Initrd  string
	Options string
}

var entryKeys = [4]string{"title", "linux", "initrd", "options"}

func (e Entry) values() [4]string {
	return [4]string{e.Title, e.Linux, e.Initrd, e.Options}
}

// Array returns the four lines as a fixed-size value.
func (e Entry) Array() [4]string {
	var out [4]string
	for i, v := range e.values() {
		out[i] = entryKeys[i] + " " + v
	}
	return out
}

// Lines returns the four lines in order.
func (e Entry) Lines() []string {
	a := e.Array()
	return a[:]
}

// Text returns the file content of the entry.
func (e Entry) Text() string {
	return strings.Join(e.Lines(), "\n") + "\n"
}

// RootPointer returns the root= value of the options line.
func (e Entry) RootPointer() string {
	root, _ := splitOptions(e.Options)
	return root
}

// Args returns the options line without the root= parameter.
func (e Entry) Args() string {
	_, args := splitOptions(e.Options)
	return args
}

// splitOptions separates the root= parameter from the other arguments.
// Arguments following a leading root= are returned verbatim.
func splitOptions(options string) (root, args string) {
	if rest, ok := strings.CutPrefix(options, "root="); ok {
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			return rest[:i], strings.TrimLeft(rest[i:], " \t")
		}
		return rest, ""
	}

	var rest []string
	for _, field := range strings.Fields(options) {
		if root == "" && strings.HasPrefix(field, "root=") {
			root = strings.TrimPrefix(field, "root=")
			continue
		}
		rest = append(rest, field)
	}
	return root, strings.Join(rest, " ")
}

// ParseEntry parses the text of a loader entry written by Entry.Text.
func ParseEntry(text string) (Entry, error) {
	var values [4]string
	var seen [4]bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, value = line[:i], strings.TrimSpace(line[i+1:])
		}
		idx := -1
		for i, k := range entryKeys {
			if k == key {
				idx = i
			}
		}
		if idx < 0 {
			return Entry{}, fmt.Errorf("unexpected key %q in entry", key)
		}
		if seen[idx] {
			return Entry{}, fmt.Errorf("duplicate key %q in entry", key)
		}
		seen[idx] = true
		values[idx] = value
	}
	for i, ok := range seen {
		if !ok {
			return Entry{}, fmt.Errorf("entry has no %q line", entryKeys[i])
		}
	}
	return Entry{Title: values[0], Linux: values[1], Initrd: values[2], Options: values[3]}, nil
}

// EntryTarget selects which entry to render.
type EntryTarget struct {
	Version  string // kernel version, required for LayoutNew
	Latest   bool   // render the unversioned entry
	Recovery bool
}

// EntryFilename returns the file name for target under the entries directory.
func EntryFilename(distro string, target EntryTarget) string {
	name := distro
	if !target.Latest {
		name += "-" + target.Version
	}
	if target.Recovery {
		name += recoveryFileSuffix
	}
	return name + entryExt
}

// Renderer renders loader entries for one distribution and root pointer.
type Renderer struct {
	Layout       Layout
	Distro       string // directory and file name stem, Drauger_OS
	DistroName   string // human readable name, Drauger OS
	EntryToken   string // LayoutNew only: directory under the ESP root
	Root         RootPointer
	StandardArgs string
	RecoveryArgs string
}

// Render returns the entry for target.
func (r Renderer) Render(target EntryTarget) (Entry, error) {
	if r.Root.Value == "" {
		return Entry{}, errors.New("cannot render entry without root pointer")
	}

	title := r.DistroName
	if !target.Latest {
		title = fmt.Sprintf("%s, with Linux %s", r.DistroName, target.Version)
	}
	args := r.StandardArgs
	if target.Recovery {
		title += recoveryTitleSuffix
		args = r.RecoveryArgs
	}

	options := "root=" + r.Root.Value
	if args = strings.TrimSpace(args); args != "" {
		options += " " + args
	}

	var linux, initrd string
	switch r.Layout {
	case LayoutLegacy:
		suffix := ""
		if !target.Latest {
			suffix = "-" + target.Version
		}
		linux = path.Join("/", r.Distro, "vmlinuz"+suffix)
		initrd = path.Join("/", r.Distro, "initrd.img"+suffix)
	case LayoutNew:
		if target.Version == "" {
			return Entry{}, errors.New("new layout entries need an explicit kernel version")
		}
		if r.EntryToken == "" {
			return Entry{}, errors.New("new layout entries need an entry directory")
		}
		linux = path.Join("/", r.EntryToken, target.Version, "linux")
		initrd = path.Join("/", r.EntryToken, target.Version, "initrd")
	default:
		return Entry{}, fmt.Errorf("unknown layout %d", r.Layout)
	}

	return Entry{Title: title, Linux: linux, Initrd: initrd, Options: options}, nil
}

// reserved top level directories of the ESP
var reservedESPDirs = []string{"EFI", "loader"}

// DiscoverEntryToken finds the directory kernel-install keeps images in:
// the single directory under efiRoot other than EFI, loader and distro.
// When several candidates exist the one named after the machine ID wins;
// otherwise the result is an AmbiguousInput error.
func DiscoverEntryToken(fs afero.Fs, efiRoot, distro, machineIDPath string) (string, error) {
	const op = "discover entry directory"

	infos, err := afero.ReadDir(fs, efiRoot)
	if err != nil {
		return "", newError(MissingInput, op, err)
	}

	var candidates []string
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		name := info.Name()
		reserved := name == distro
		for _, r := range reservedESPDirs {
			if strings.EqualFold(name, r) {
				reserved = true
			}
		}
		if !reserved {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", newError(MissingInput, op, fmt.Errorf("no entry directory in %s", efiRoot))
	case 1:
		return candidates[0], nil
	}

	if machineID, err := readFirstLine(fs, machineIDPath); err == nil {
		for _, c := range candidates {
			if c == machineID {
				return c, nil
			}
		}
	} else if !os.IsNotExist(err) {
		return "", newError(MissingInput, op, err)
	}
	return "", newError(AmbiguousInput, op, fmt.Errorf("several entry directories in %s: %s", efiRoot, strings.Join(candidates, ", ")))
}

// WriteEntry renders target and overwrites its file under dir.
func WriteEntry(fs afero.Fs, dir string, r Renderer, target EntryTarget) (string, error) {
	entry, err := r.Render(target)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, EntryFilename(r.Distro, target))
	if err := writeFile(fs, dst, []byte(entry.Text())); err != nil {
		return "", err
	}
	return dst, nil
}
