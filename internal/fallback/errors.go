// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package fallback

import (
	"fmt"
	"strings"
)

// ServiceUnavailableError reports that every cascade level failed. It
// carries the per-level causes so operators can see which stores were
// down, not just that the read failed.
type ServiceUnavailableError struct {
	Op     string
	Causes []error
}

// Error implements error.
func (e *ServiceUnavailableError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: all data sources unavailable", e.Op)
	for i, cause := range e.Causes {
		fmt.Fprintf(&sb, "; level %d: %v", i+1, cause)
	}
	return sb.String()
}

// Unwrap exposes the cause chain to errors.Is/As.
func (e *ServiceUnavailableError) Unwrap() []error {
	return e.Causes
}
