// This file is part of systemd-boot-manager
// Copyright 2022 Thomas Castleman <contact@draugeros.org>
// SPDX-License-Identifier: GPL-3.0-only

package sdboot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

var unixGeteuid = unix.Geteuid

func isPrivileged() bool {
	return unixGeteuid() == 0
}

// checkWritable returns a NotPrivileged error unless we run as root.
func checkWritable(op, path string) error {
	if !isPrivileged() {
		return newError(NotPrivileged, op, fmt.Errorf("cannot write %s: %w", path, ErrNotPrivileged))
	}
	return nil
}

// MaybeUpdateFile copies src to dst if they are different.
// It returns true if the destination file was successfully updated. If the return value
// is false, the state of the destination is unspecified. It might not exist, exist
// with partial data or exist with old data, amongst others.
func MaybeUpdateFile(fs afero.Fs, dst string, src string) (bool, error) {
	srcFile, err := fs.Open(src)
	if err != nil {
		return false, fmt.Errorf("could not open source file: %w", err)
	}
	defer srcFile.Close()

	if needUpdate, err := needUpdateFile(fs, dst, src, srcFile); !needUpdate {
		return false, err
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("could not create directory for %s: %w", dst, err)
	}
	dstFile, err := fs.Create(dst)
	if err != nil {
		return false, fmt.Errorf("could not open %s for writing: %w", dst, err)
	}
	defer dstFile.Close()
	// FIXME: Delete the file on failure

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return false, fmt.Errorf("could not copy %s to %s: %w", src, dst, err)
	}
	return true, nil
}

func needUpdateFile(fs afero.Fs, dst string, src string, srcFile io.ReadSeeker) (bool, error) {
	// To keep things simple, but not have the files in memory, just hash them
	dstHash := sha256.New()
	srcHash := sha256.New()

	dstFile, err := fs.Open(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("could not open destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstHash, dstFile); err != nil {
		return false, fmt.Errorf("could not hash destination file %s: %w", dst, err)
	}
	if _, err := io.Copy(srcHash, srcFile); err != nil {
		return false, fmt.Errorf("could not hash source file %s: %w", src, err)
	}
	if bytes.Equal(dstHash.Sum(nil), srcHash.Sum(nil)) {
		return false, nil
	}

	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("could not seek in source file %s: %w", src, err)
	}

	return true, nil
}

// writeFile replaces the whole content of path, creating parent
// directories as needed.
func writeFile(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

// maybeWriteFile writes data to path unless it already holds exactly data.
func maybeWriteFile(fs afero.Fs, path string, data []byte) (bool, error) {
	old, err := afero.ReadFile(fs, path)
	if err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := writeFile(fs, path, data); err != nil {
		return false, err
	}
	return true, nil
}

// readFirstLine returns the first non-blank line of path, trimmed.
func readFirstLine(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", scanner.Err()
}
