// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package database

import "errors"

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("row not found")
