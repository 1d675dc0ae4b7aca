// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tui shows the progress of a run in the terminal.
//
// While commands are still being submitted a spinner shows the running counters.
// Once the source is exhausted the total is known and a progress bar takes over.
// Command output is printed above the display so it is never overdrawn.
package tui
