// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures.
type ErrorKind int

const (
	// MissingInput is an absent required file or device.
	MissingInput ErrorKind = iota + 1
	// AmbiguousInput is input with more than one plausible reading.
	AmbiguousInput
	// ExternalToolFailure is a non-zero exit from lsblk or bootctl.
	ExternalToolFailure
	// ConfigurationInvalid is a malformed setting or value.
	ConfigurationInvalid
	// NotPrivileged is a write attempted without root.
	NotPrivileged
)

func (k ErrorKind) String() string {
	switch k {
	case MissingInput:
		return "missing input"
	case AmbiguousInput:
		return "ambiguous input"
	case ExternalToolFailure:
		return "external tool failure"
	case ConfigurationInvalid:
		return "invalid configuration"
	case NotPrivileged:
		return "not privileged"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Fatal conditions of an update run.
var (
	ErrNoKernels       = errors.New("no kernel found")
	ErrRootNotFound    = errors.New("cannot find the partition mounted at /")
	ErrMissingTemplate = errors.New("missing loader template config")
	ErrNotPrivileged   = errors.New("root privileges required")
)

// Error is a classified failure of operation Op.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Exit statuses per fatal condition class.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitNoKernels           = 2
	ExitRootNotFound        = 3
	ExitMissingTemplate     = 4
	ExitInvalidConfig       = 5
	ExitExternalToolFailure = 6
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNoKernels):
		return ExitNoKernels
	case errors.Is(err, ErrRootNotFound):
		return ExitRootNotFound
	case errors.Is(err, ErrMissingTemplate):
		return ExitMissingTemplate
	}
	switch KindOf(err) {
	case ConfigurationInvalid:
		return ExitInvalidConfig
	case ExternalToolFailure:
		return ExitExternalToolFailure
	}
	return ExitFailure
}
