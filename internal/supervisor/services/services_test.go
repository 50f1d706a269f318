// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewIntervalServiceValidation(t *testing.T) {
	run := func(ctx context.Context) error { return nil }

	if _, err := NewIntervalService("", time.Second, false, run); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := NewIntervalService("svc", 0, false, run); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := NewIntervalService("svc", time.Second, false, nil); err == nil {
		t.Fatal("nil run accepted")
	}
	svc, err := NewIntervalService("svc", time.Second, false, run)
	if err != nil {
		t.Fatalf("valid service rejected: %v", err)
	}
	if svc.String() != "svc" {
		t.Fatalf("wrong name %q", svc.String())
	}
}

func TestIntervalServiceTicksUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	svc, err := NewIntervalService("ticker", 10*time.Millisecond, false, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIntervalServiceImmediateRun(t *testing.T) {
	ran := make(chan struct{}, 1)
	svc, err := NewIntervalService("immediate", time.Hour, true, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx) //nolint:errcheck

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run never happened")
	}
}

func TestIntervalServiceSurvivesRunErrors(t *testing.T) {
	var runs atomic.Int32
	svc, err := NewIntervalService("flaky", 10*time.Millisecond, false, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx) //nolint:errcheck

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("run errors stopped the ticker")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// mockServer stands in for *http.Server.
type mockServer struct {
	listenErr error
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newMockServer(listenErr error) *mockServer {
	return &mockServer{listenErr: listenErr, stopped: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopped
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopped)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	server := newMockServer(nil)
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give ListenAndServe a moment to start, then stop the service.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if server.shutdowns.Load() != 1 {
		t.Fatalf("expected 1 shutdown call, got %d", server.shutdowns.Load())
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	server := newMockServer(errors.New("address in use"))
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected listen failure to propagate")
	}
}
