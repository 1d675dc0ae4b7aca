// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package color decorates terminal output with ANSI escape codes.
// Colour is enabled when the destination is a terminal, unless NO_COLOR is set.
// FORCE_COLOR enables colour for non-terminal destinations, e.g. CI logs.
package color
