// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package api

import (
	"errors"

	"github.com/tomtom215/vantage/internal/database"
	"github.com/tomtom215/vantage/internal/events"
	"github.com/tomtom215/vantage/internal/fallback"
	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/store"
)

// respondDomainError maps domain errors onto HTTP statuses. Anything
// unrecognized becomes a 500 without leaking internals.
func respondDomainError(rw *ResponseWriter, err error) {
	var svcErr *fallback.ServiceUnavailableError
	var valErr *events.ValidationError

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, database.ErrNotFound):
		rw.NotFound("resource not found")
	case errors.Is(err, store.ErrConfirmationRequired):
		rw.Conflict("destructive operation requires confirm=true")
	case errors.As(err, &valErr):
		rw.ValidationError(valErr.Message, map[string]string{"field": valErr.Field})
	case errors.As(err, &svcErr):
		logging.Error().Err(err).Msg("all serving levels exhausted")
		rw.ServiceUnavailable("analytics temporarily unavailable")
	case errors.Is(err, store.ErrStoreUnavailable):
		rw.ServiceUnavailable("fast store unavailable")
	default:
		logging.Error().Err(err).Msg("unhandled API error")
		rw.InternalError("an internal error occurred")
	}
}
