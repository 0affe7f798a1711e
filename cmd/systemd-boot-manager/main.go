// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/jessevdk/go-flags"

	"github.com/draugeros/systemd-boot-manager/blockdev"
	"github.com/draugeros/systemd-boot-manager/bootctl"
	"github.com/draugeros/systemd-boot-manager/sdboot"
)

type options struct {
	Verbose bool `short:"v" long:"verbose" description:"Print debug messages"`
	JSON    bool `long:"json-log" description:"Log in JSON format"`
}

// app is shared by all commands; mgr is set up once options are parsed.
type app struct {
	opts options
	log  hclog.Logger
	mgr  *sdboot.Manager
}

func (a *app) setup() {
	level := hclog.Info
	if a.opts.Verbose {
		level = hclog.Debug
	}
	a.log = hclog.New(&hclog.LoggerOptions{
		Name:       "systemd-boot-manager",
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: a.opts.JSON,
	})
	cfg := sdboot.DefaultConfig(a.log)
	a.mgr = sdboot.NewManager(cfg, blockdev.Lsblk{}, bootctl.Bootctl{})
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.Default)
	parser.ShortDescription = "Manage systemd-boot loader entries"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		a.setup()
		return cmd.Execute(args)
	}

	for _, c := range []struct {
		name, short, long string
		cmd               interface{}
	}{
		{"update", "Regenerate loader entries", "Regenerate the loader entries for every installed kernel.", &cmdUpdate{app: a}},
		{"check", "Check and repair the default entry", "Make the live default entry match the declared one, if enabled.", &cmdCheck{app: a}},
		{"default", "Show or declare the default entry", "Without argument show the declared and live default entry, otherwise declare and apply ENTRY.", &cmdDefault{app: a}},
		{"list", "List loader entries", "List the entries known to the boot manager.", &cmdList{app: a}},
		{"kernels", "List installed kernels", "List installed kernels, newest first.", &cmdKernels{app: a}},
		{"root", "Show the root pointer", "Show the root= value that entries are generated with.", &cmdRoot{app: a}},
		{"enable", "Enable default entry enforcement", "Enable default entry enforcement.", &cmdEnable{app: a, enable: true}},
		{"disable", "Disable default entry enforcement", "Disable default entry enforcement.", &cmdEnable{app: a}},
		{"set", "Change a setting", "Change a setting of the settings document.", &cmdSet{app: a}},
	} {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.cmd); err != nil {
			panic(err)
		}
	}
	return parser
}

func run(args []string) error {
	a := &app{}
	_, err := newParser(a).ParseArgs(args)
	return err
}

func main() {
	err := run(os.Args[1:])
	if err == nil {
		return
	}
	var flagErr *flags.Error
	if errors.As(err, &flagErr) {
		if flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(sdboot.ExitCode(err))
}
