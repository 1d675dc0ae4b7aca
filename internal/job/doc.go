// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package job holds the records exchanged with remote workers through the broker:
// the CommandBody sent with every dispatched job and the Result a worker answers with.
//
// Both are JSON objects with stable field names. Fields this package does not know
// about are kept in an Extra map and written back on encode, so records survive a
// round trip through workers running a newer or older schema.
package job
