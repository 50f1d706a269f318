// Vantage - Streaming Analytics and Watch Progress Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vantage

// Package natsembed runs an embedded NATS JetStream server so a single
// Vantage binary needs no external broker. Integration tests use it too.
package natsembed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Config holds embedded server settings.
type Config struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultConfig returns loopback defaults. Port 0 lets tests pick a free
// port.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              4222,
		JetStreamMaxMem:   1 << 30,
		JetStreamMaxStore: 10 << 30,
	}
}

// Server wraps the embedded NATS server lifecycle.
type Server struct {
	server    *server.Server
	clientURL string
}

// New creates and starts an embedded JetStream server, waiting up to 30
// seconds for readiness.
func New(cfg Config) (*Server, error) {
	opts := &server.Options{
		ServerName:         "vantage-media",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.JetStreamMaxMem,
		JetStreamMaxStore:  cfg.JetStreamMaxStore,
		DontListen:         false,
		NoLog:              true,
		MaxPayload:         1 << 20,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &Server{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the connection URL for clients.
func (s *Server) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server, waiting for completion unless the context
// is already canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.server.WaitForShutdown()
		return nil
	}
}

// IsRunning reports server health.
func (s *Server) IsRunning() bool {
	return s.server.Running()
}
