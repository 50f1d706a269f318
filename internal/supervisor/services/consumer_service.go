// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/vantage/internal/events"
)

// ConsumerService runs the media event consumer under supervision. If
// the consume loop returns with an error, suture restarts it and the
// durable JetStream consumer resumes from its last acked position.
type ConsumerService struct {
	consumer *events.Consumer
	source   events.MessageSource
	name     string
}

// NewConsumerService wraps a consumer and its message source.
func NewConsumerService(consumer *events.Consumer, source events.MessageSource) (*ConsumerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer required")
	}
	if source == nil {
		return nil, fmt.Errorf("message source required")
	}
	return &ConsumerService{
		consumer: consumer,
		source:   source,
		name:     "event-consumer",
	}, nil
}

// Serve implements suture.Service.
func (s *ConsumerService) Serve(ctx context.Context) error {
	err := s.consumer.Run(ctx, s.source)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event consumer stopped: %w", err)
	}
	return err
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *ConsumerService) String() string {
	return s.name
}
