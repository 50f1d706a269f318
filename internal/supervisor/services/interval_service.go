// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vantage/internal/logging"
)

// IntervalService runs a function on a fixed ticker under supervision.
// The leaderboard refresh, rollup tick, and position flush all run as
// instances of this wrapper.
//
// A run error is logged and the ticker continues; the next tick retries.
// Only a canceled context stops the service.
type IntervalService struct {
	name      string
	interval  time.Duration
	immediate bool
	run       func(ctx context.Context) error
}

// NewIntervalService creates a ticker-driven service. When immediate is
// true the function also runs once at startup, before the first tick.
func NewIntervalService(name string, interval time.Duration, immediate bool, run func(ctx context.Context) error) (*IntervalService, error) {
	if name == "" {
		return nil, fmt.Errorf("service name required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}
	if run == nil {
		return nil, fmt.Errorf("run function required")
	}
	return &IntervalService{
		name:      name,
		interval:  interval,
		immediate: immediate,
		run:       run,
	}, nil
}

// Serve implements suture.Service.
func (s *IntervalService) Serve(ctx context.Context) error {
	if s.immediate {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *IntervalService) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Error().Err(err).
			Str("service", s.name).
			Dur("elapsed", time.Since(start)).
			Msg("periodic run failed")
		return
	}
	logging.Debug().
		Str("service", s.name).
		Dur("elapsed", time.Since(start)).
		Msg("periodic run completed")
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *IntervalService) String() string {
	return s.name
}
