// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"strings"
)

type charClass int

const (
	classDigit charClass = iota
	classLower
	classDot
	classOther
)

func classify(r rune) charClass {
	switch {
	case r >= '0' && r <= '9':
		return classDigit
	case r >= 'a' && r <= 'z':
		return classLower
	case r == '.':
		return classDot
	}
	return classOther
}

// versionComponent is one segment of a Version: a digit run, a lowercase
// letter run, or a run of any other characters.
type versionComponent struct {
	text  string
	num   string // digit run without leading zeros, "0" for all zeros
	isNum bool
}

// Version is a tolerant ordering key for arbitrary version strings.
type Version struct {
	raw        string
	components []versionComponent
}

// ParseVersion splits s into digit runs, lowercase letter runs and runs of
// any other characters. Periods separate components and are dropped.
// Every string produces a valid Version.
func ParseVersion(s string) Version {
	v := Version{raw: s}
	runes := []rune(s)
	for i := 0; i < len(runes); {
		class := classify(runes[i])
		j := i + 1
		if class != classDot {
			for j < len(runes) && classify(runes[j]) == class {
				j++
			}
		}
		if class != classDot {
			v.components = append(v.components, newVersionComponent(string(runes[i:j])))
		}
		i = j
	}
	return v
}

func newVersionComponent(text string) versionComponent {
	c := versionComponent{text: text}
	if classify([]rune(text)[0]) == classDigit {
		c.num = strings.TrimLeft(text, "0")
		if c.num == "" {
			c.num = "0"
		}
		c.isNum = true
	}
	return c
}

// String returns the string the version was parsed from.
func (v Version) String() string {
	return v.raw
}

func (v Version) allNumeric() bool {
	for _, c := range v.components {
		if !c.isNum {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal to
// or after other. When both versions consist only of integers they compare
// numerically; otherwise every component compares as a string. A strict
// prefix sorts before the longer version.
func (v Version) Compare(other Version) int {
	numeric := v.allNumeric() && other.allNumeric()

	n := len(v.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		a, b := v.components[i], other.components[i]
		var c int
		if numeric {
			c = compareDigits(a.num, b.num)
		} else {
			c = strings.Compare(a.text, b.text)
		}
		if c != 0 {
			return c
		}
	}
	return compareInts(len(v.components), len(other.components))
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// CompareVersions compares two version strings, see Version.Compare.
func CompareVersions(a, b string) int {
	return ParseVersion(a).Compare(ParseVersion(b))
}

// compareDigits compares digit runs without leading zeros numerically,
// whatever their length.
func compareDigits(a, b string) int {
	if c := compareInts(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
