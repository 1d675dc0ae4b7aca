// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter/v2"
	"github.com/spf13/afero"
)

// ErrLocation is returned when a command file location is empty or cannot be fetched.
var ErrLocation = errors.New("invalid command file location")

// getRemote downloads a single file with go-getter and returns its content.
var getRemote = func(ctx context.Context, location string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "dwqc-getter-*")
	if err != nil {
		return nil, err
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	client := getter.Client{
		DisableSymlinks: true,
	}

	req := &getter.Request{
		Src:     location,
		Dst:     filepath.Join(tmpDir, "commands"),
		Pwd:     wd,
		GetMode: getter.ModeFile,
	}

	res, err := client.Get(ctx, req)
	if err != nil {
		return nil, err
	}

	return os.ReadFile(res.Dst)
}

// Open returns a Source yielding the lines of the command file at location.
// Paths that exist in fs are read directly; anything else is treated as a go-getter URL.
func Open(ctx context.Context, fs afero.Fs, location string) (Source, error) {
	if location == "" {
		return nil, errors.Join(ErrSource, ErrLocation)
	}

	if ok, _ := afero.Exists(fs, location); ok {
		data, err := afero.ReadFile(fs, location)
		if err != nil {
			return nil, errors.Join(ErrSource, err)
		}

		return Lines(bytes.NewReader(data)), nil
	}

	data, err := getRemote(ctx, location)
	if err != nil {
		return nil, errors.Join(ErrSource, fmt.Errorf("%w: %s: %w", ErrLocation, location, err))
	}

	return Lines(bytes.NewReader(data)), nil
}
