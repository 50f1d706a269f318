// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package events defines the media event schema and the NATS JetStream
// plumbing that carries it: publisher, durable subscriber, stream
// provisioning, and the ingestion consumer.
//
// Delivery is at-least-once. Every event carries a unique event ID; the
// view counter's dedup guard is what keeps redeliveries from double
// counting.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the bus.
const (
	TypeVideoViewed   = "video_viewed"
	TypeVideoUploaded = "video_uploaded"
)

// Topics, one per event type, under the shared stream subject space.
const (
	TopicViewed   = "media.viewed"
	TopicUploaded = "media.uploaded"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = "1.0"

// Event is a media event. Upload metadata fields are empty on view
// events.
type Event struct {
	SchemaVersion string    `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	VideoID       int64     `json:"video_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	// Upload metadata.
	Title           string  `json:"title,omitempty"`
	MediaType       string  `json:"media_type,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// NewViewEvent creates a view event with a fresh event ID.
func NewViewEvent(videoID int64, userID string) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		Type:          TypeVideoViewed,
		VideoID:       videoID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
	}
}

// NewUploadEvent creates an upload event with a fresh event ID.
func NewUploadEvent(videoID int64, title, mediaType string, durationSeconds float64) *Event {
	return &Event{
		SchemaVersion:   SchemaVersion,
		EventID:         uuid.NewString(),
		Type:            TypeVideoUploaded,
		VideoID:         videoID,
		Timestamp:       time.Now().UTC(),
		Title:           title,
		MediaType:       mediaType,
		DurationSeconds: durationSeconds,
	}
}

// ValidationError reports an invalid event field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Message)
}

// Validate checks structural validity.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "is required"}
	}
	if e.VideoID <= 0 {
		return &ValidationError{Field: "video_id", Message: "must be positive"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	switch e.Type {
	case TypeVideoViewed:
	case TypeVideoUploaded:
		if e.Title == "" {
			return &ValidationError{Field: "title", Message: "is required for uploads"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", e.Type)}
	}
	return nil
}

// Topic returns the NATS topic for the event's type.
func (e *Event) Topic() string {
	if e.Type == TypeVideoUploaded {
		return TopicUploaded
	}
	return TopicViewed
}
