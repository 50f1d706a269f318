// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package store

import "errors"

var (
	// ErrStoreUnavailable indicates the fast store could not serve the
	// request (closed, corrupt, or timed out). Callers fall back or fail;
	// they never retry at this layer.
	ErrStoreUnavailable = errors.New("fast store unavailable")

	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrConfirmationRequired guards destructive operations that must be
	// explicitly confirmed by the caller.
	ErrConfirmationRequired = errors.New("confirmation required")
)
