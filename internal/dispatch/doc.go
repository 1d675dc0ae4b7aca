// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package dispatch runs one invocation end to end.
//
// Run wires the command source, the submission pool and the result collector
// together with bounded channels and drives them from a single coordinating loop.
// The loop is the only owner of the run state: which job ids are outstanding,
// how many were submitted and completed, and whether more are coming.
//
// A run ends in one of three ways:
//
//	DONE     every produced command was acknowledged and has a result
//	ABORTED  a termination request arrived; outstanding jobs are deleted from the broker
//	FAILED   a stage could not continue; nothing is deleted
//
// In every case the run context is cancelled, the submitters are joined, and the
// collectors get a short grace period before Run returns.
package dispatch
