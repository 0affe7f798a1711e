// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"os"
)

type cmdUpdate struct {
	app *app
}

func (x *cmdUpdate) Execute(args []string) error {
	res, err := x.app.mgr.UpdateEntries()
	if err != nil {
		return err
	}
	x.app.log.Info("entries updated", "latest", res.Latest.Version, "root", res.Root.Value,
		"written", len(res.Written), "removed", len(res.Removed), "skipped", len(res.Skipped))
	return nil
}

type cmdCheck struct {
	app *app
}

func (x *cmdCheck) Execute(args []string) error {
	if !x.app.mgr.Enabled() {
		x.app.log.Debug("disabled, not checking default entry")
		return nil
	}
	rec, err := x.app.mgr.Reconcile()
	if err != nil {
		return err
	}
	x.app.log.Debug("default entry checked", "state", rec.State, "live", rec.Live, "declared", rec.Intent, "corrected", rec.Corrected)
	return nil
}

type cmdDefault struct {
	app  *app
	Args struct {
		Entry string `positional-arg-name:"ENTRY"`
	} `positional-args:"yes"`
}

func (x *cmdDefault) Execute(args []string) error {
	if x.Args.Entry != "" {
		return x.app.mgr.SetDefault(x.Args.Entry)
	}
	rec, err := x.app.mgr.CheckDefault()
	if err != nil {
		return err
	}
	fmt.Printf("declared: %s\nlive:     %s\nstate:    %s\n", rec.Intent, rec.Live, rec.State)
	return nil
}

type cmdList struct {
	app *app
}

func (x *cmdList) Execute(args []string) error {
	entries, err := x.app.mgr.BootEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		marker := ""
		if e.Default {
			marker = " (default)"
		}
		fmt.Printf("%s\t%s%s\n", e.ID, e.Title, marker)
	}
	return nil
}

type cmdKernels struct {
	app *app
}

func (x *cmdKernels) Execute(args []string) error {
	catalog, err := x.app.mgr.Kernels()
	if err != nil {
		return err
	}
	for _, rec := range catalog {
		fmt.Printf("%s\t%s\n", rec.Version, rec.Key)
	}
	return nil
}

type cmdRoot struct {
	app *app
}

func (x *cmdRoot) Execute(args []string) error {
	settings, _ := x.app.mgr.LoadSettings()
	root, err := x.app.mgr.ResolveRootPointer(settings.Key)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "root=%s (%s)\n", root.Value, root.Source)
	return nil
}

type cmdEnable struct {
	app    *app
	enable bool
}

func (x *cmdEnable) Execute(args []string) error {
	return x.app.mgr.SetEnabled(x.enable)
}

type cmdSet struct {
	app  *app
	Args struct {
		Name  string `positional-arg-name:"NAME" required:"yes"`
		Value string `positional-arg-name:"VALUE" required:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (x *cmdSet) Execute(args []string) error {
	return x.app.mgr.SetSetting(x.Args.Name, x.Args.Value)
}
