// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package progress carries run lifecycle events from the coordinator to whatever
// presents them: verbose status lines, the interactive progress display, or nothing.
// Reporting never blocks the coordinator.
package progress
