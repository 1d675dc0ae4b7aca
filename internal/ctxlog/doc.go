// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog carries a slog logger on the context.
//
// The default logger writes human readable lines to stderr, keeping stdout free
// for the output of dispatched commands. The level is taken from the
// DWQC_LOG_LEVEL environment variable (the prefix follows the executable name)
// and can be raised at runtime with SetVerbosity.
package ctxlog
