// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dwqc.yaml", []byte("queue: builds\n"), 0o644))

	stubs := gostub.Stub(&cmdstate.FsFactory, func() afero.Fs { return fs })
	defer stubs.Reset()

	var out bytes.Buffer

	cmd := New()
	cmd.Writer = &out

	require.NoError(t, cmd.Run(context.Background(), []string{"config", "--config", "/dwqc.yaml", "-u", "redis://q:7711"}))

	assert.Contains(t, out.String(), "queue: builds")
	assert.Contains(t, out.String(), "redis://q:7711")
}

func TestConfig_BadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dwqc.yaml", []byte("nope: 1\n"), 0o644))

	stubs := gostub.Stub(&cmdstate.FsFactory, func() afero.Fs { return fs })
	defer stubs.Reset()

	cmd := New()
	cmd.Writer = &bytes.Buffer{}

	require.Error(t, cmd.Run(context.Background(), []string{"config", "--config", "/dwqc.yaml"}))
}
