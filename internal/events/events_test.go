// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewViewEvent(t *testing.T) {
	e := NewViewEvent(42, "alice")

	if err := e.Validate(); err != nil {
		t.Fatalf("fresh view event invalid: %v", err)
	}
	if e.Type != TypeVideoViewed || e.VideoID != 42 || e.UserID != "alice" {
		t.Fatalf("wrong event: %+v", e)
	}
	if e.EventID == "" {
		t.Fatal("missing event ID")
	}
	if e.Topic() != TopicViewed {
		t.Fatalf("wrong topic %s", e.Topic())
	}
}

func TestNewUploadEvent(t *testing.T) {
	e := NewUploadEvent(7, "Deep Dive", "video", 1800)

	if err := e.Validate(); err != nil {
		t.Fatalf("fresh upload event invalid: %v", err)
	}
	if e.Topic() != TopicUploaded {
		t.Fatalf("wrong topic %s", e.Topic())
	}
}

func TestValidateRejectsBadEvents(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name  string
		event Event
		field string
	}{
		{
			name:  "missing event ID",
			event: Event{Type: TypeVideoViewed, VideoID: 1, Timestamp: now},
			field: "event_id",
		},
		{
			name:  "non-positive video ID",
			event: Event{EventID: "e", Type: TypeVideoViewed, VideoID: 0, Timestamp: now},
			field: "video_id",
		},
		{
			name:  "zero timestamp",
			event: Event{EventID: "e", Type: TypeVideoViewed, VideoID: 1},
			field: "timestamp",
		},
		{
			name:  "upload without title",
			event: Event{EventID: "e", Type: TypeVideoUploaded, VideoID: 1, Timestamp: now},
			field: "title",
		},
		{
			name:  "unknown type",
			event: Event{EventID: "e", Type: "video_transcoded", VideoID: 1, Timestamp: now},
			field: "type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
			}
		})
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	s := NewSerializer()
	e := NewViewEvent(42, "alice")

	data, err := s.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != e.EventID || got.VideoID != e.VideoID || got.Type != e.Type {
		t.Fatalf("round trip changed the event: %+v", got)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Fatalf("timestamp drifted: %v vs %v", got.Timestamp, e.Timestamp)
	}
}

func TestSerializerRejectsInvalidOnBothPaths(t *testing.T) {
	s := NewSerializer()

	if _, err := s.Marshal(&Event{Type: TypeVideoViewed}); err == nil {
		t.Fatal("invalid event marshaled")
	}

	var vErr *ValidationError
	if _, err := s.Unmarshal([]byte(`{"type":"video_viewed"}`)); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for invalid payload, got %v", err)
	}
	if _, err := s.Unmarshal([]byte(`not json`)); err == nil {
		t.Fatal("garbage payload accepted")
	}
}
