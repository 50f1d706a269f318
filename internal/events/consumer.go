// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/vantage/internal/logging"
	"github.com/tomtom215/vantage/internal/metrics"
	"github.com/tomtom215/vantage/internal/models"
)

// ViewRecorder counts views in the fast store. Satisfied by
// *counter.ViewCounter.
type ViewRecorder interface {
	RecordView(ctx context.Context, videoID int64, userID, eventID string, viewedAt time.Time) (bool, error)
	Seen(ctx context.Context, eventID string) (bool, error)
}

// RawWriter appends raw view rows. Satisfied by *database.DB.
type RawWriter interface {
	InsertView(ctx context.Context, videoID int64, userID string, viewedAt time.Time) error
}

// CatalogWriter upserts catalog entries. Satisfied by *database.DB.
type CatalogWriter interface {
	UpsertVideo(ctx context.Context, v models.Video) error
}

// MessageSource yields messages per topic. Satisfied by *Subscriber and,
// in tests, by watermill's in-memory pubsub.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Consumer ingests media events: view events feed the raw log and the
// fast-store counters, upload events feed the catalog.
//
// Delivery is at-least-once. The event-ID guard is consulted before the
// raw append, so a redelivered event touches neither the raw log nor
// the counters.
type Consumer struct {
	serializer *Serializer
	views      ViewRecorder
	raw        RawWriter
	catalog    CatalogWriter
}

// NewConsumer creates a Consumer.
func NewConsumer(views ViewRecorder, raw RawWriter, catalog CatalogWriter) *Consumer {
	return &Consumer{
		serializer: NewSerializer(),
		views:      views,
		raw:        raw,
		catalog:    catalog,
	}
}

// Run consumes both media topics until the context is canceled.
func (c *Consumer) Run(ctx context.Context, source MessageSource) error {
	viewed, err := source.Subscribe(ctx, TopicViewed)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicViewed, err)
	}
	uploaded, err := source.Subscribe(ctx, TopicUploaded)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicUploaded, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-viewed:
			if !ok {
				return nil
			}
			c.process(ctx, TopicViewed, msg)
		case msg, ok := <-uploaded:
			if !ok {
				return nil
			}
			c.process(ctx, TopicUploaded, msg)
		}
	}
}

// process handles one message: ack on success or poison payloads, nack
// on transient failure so JetStream redelivers.
func (c *Consumer) process(ctx context.Context, topic string, msg *message.Message) {
	err := c.Handle(ctx, msg.Payload)

	var vErr *ValidationError
	switch {
	case err == nil:
		metrics.EventsConsumed.WithLabelValues(topic, "ok").Inc()
		msg.Ack()
	case errors.As(err, &vErr):
		// Malformed events never become valid; redelivering them only
		// clogs the consumer.
		metrics.EventsConsumed.WithLabelValues(topic, "invalid").Inc()
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping invalid event")
		msg.Ack()
	default:
		metrics.EventsConsumed.WithLabelValues(topic, "error").Inc()
		logging.Error().Err(err).
			Str("message_uuid", msg.UUID).
			Str("topic", topic).
			Msg("event processing failed, nacking for redelivery")
		msg.Nack()
	}
}

// Handle processes one event payload.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	event, err := c.serializer.Unmarshal(payload)
	if err != nil {
		return err
	}

	switch event.Type {
	case TypeVideoViewed:
		return c.handleView(ctx, event)
	case TypeVideoUploaded:
		return c.handleUpload(ctx, event)
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", event.Type)}
	}
}

// handleView checks the dedup guard, appends the raw row, then counts
// the view. A remembered event ID skips both writes so redeliveries
// cannot inflate the raw log relative to the counters.
func (c *Consumer) handleView(ctx context.Context, event *Event) error {
	seen, err := c.views.Seen(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("check event guard: %w", err)
	}
	if seen {
		logging.Debug().
			Str("event_id", event.EventID).
			Int64("video_id", event.VideoID).
			Msg("view already processed")
		return nil
	}

	if err := c.raw.InsertView(ctx, event.VideoID, event.UserID, event.Timestamp); err != nil {
		return fmt.Errorf("insert raw view: %w", err)
	}
	if _, err := c.views.RecordView(ctx, event.VideoID, event.UserID, event.EventID, event.Timestamp); err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

func (c *Consumer) handleUpload(ctx context.Context, event *Event) error {
	video := models.Video{
		ID:              event.VideoID,
		Title:           event.Title,
		MediaType:       event.MediaType,
		DurationSeconds: event.DurationSeconds,
		UploadedAt:      event.Timestamp,
	}
	if video.MediaType == "" {
		video.MediaType = "video"
	}
	if err := c.catalog.UpsertVideo(ctx, video); err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}
