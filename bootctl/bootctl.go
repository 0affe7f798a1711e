// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

// Package bootctl drives the systemd-boot command line tool.
package bootctl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	titleMarker    = "title:"
	idMarker       = "id:"
	defaultMarker  = "(default)"
	selectedMarker = "(selected)"
)

// Entry is a boot loader entry as reported by `bootctl list`.
type Entry struct {
	Title   string
	ID      string
	Default bool
}

// ToolError is returned when bootctl exits unsuccessfully.
type ToolError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("bootctl %s failed: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("bootctl %s failed: %v: %s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Bootctl runs the bootctl binary at Path, or "bootctl" from $PATH if empty.
type Bootctl struct {
	Path string
}

func (b Bootctl) run(args ...string) ([]byte, error) {
	bin := b.Path
	if bin == "" {
		bin = "bootctl"
	}
	var stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, &ToolError{Args: args, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// List returns the entries known to the boot manager, in listing order.
func (b Bootctl) List() ([]Entry, error) {
	out, err := b.run("list", "--no-pager")
	if err != nil {
		return nil, err
	}
	return ParseList(bytes.NewReader(out))
}

// SetDefault makes id the default entry.
func (b Bootctl) SetDefault(id string) error {
	_, err := b.run("set-default", id)
	return err
}

// ParseList parses the text output of `bootctl list`. Each title line
// opens a new entry; the following id line completes it. Titles without
// an id line are dropped.
func ParseList(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var current *Entry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, titleMarker):
			title := strings.TrimSpace(strings.TrimPrefix(line, titleMarker))
			entry := Entry{}
			// newer versions also flag the currently booted entry
			title = strings.TrimSpace(strings.Replace(title, selectedMarker, "", 1))
			if strings.HasSuffix(title, defaultMarker) {
				entry.Default = true
				title = strings.TrimSpace(strings.TrimSuffix(title, defaultMarker))
			}
			entry.Title = title
			current = &entry
		case strings.HasPrefix(line, idMarker) && current != nil:
			current.ID = strings.TrimSpace(strings.TrimPrefix(line, idMarker))
			entries = append(entries, *current)
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read bootctl output: %w", err)
	}

	return entries, nil
}

// DefaultEntry returns the entry flagged as default, if any.
func DefaultEntry(entries []Entry) (Entry, bool) {
	for _, e := range entries {
		if e.Default {
			return e, true
		}
	}
	return Entry{}, false
}
