// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
)

// Watch forwards signals from sigCh until it is closed or ctx is done.
// The first signal of a given type is turned into a termination request on terminate;
// the request is dropped if one is already pending. The second signal of the same
// type calls cancel and returns.
func Watch(ctx context.Context, sigCh <-chan os.Signal, terminate chan<- struct{}, cancel context.CancelFunc) {
	seen := make(map[os.Signal]struct{})

	for {
		var (
			sig os.Signal
			ok  bool
		)

		select {
		case <-ctx.Done():
			return
		case sig, ok = <-sigCh:
			if !ok {
				return
			}
		}

		if _, dup := seen[sig]; dup {
			ctxlog.Warn(ctx, "watchdog", "detail", "received second signal of type, forcefully terminating", "signal", sig.String())
			cancel()

			return
		}

		seen[sig] = struct{}{}

		ctxlog.Info(ctx, "watchdog", "detail", "received signal, requesting termination", "signal", sig.String())

		select {
		case terminate <- struct{}{}:
		default:
		}
	}
}
