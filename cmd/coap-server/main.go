// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command coap-server is a minimal example binary wiring the
// framework together: a plain GET resource, a JSON-decoding POST
// resource and an observable resource, bound from the environment the
// way the teacher's newer cmd/*/main.go binaries bind their service
// configs.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/caarlos0/env/v7"
	"golang.org/x/sync/errgroup"

	"github.com/coapframework/coapd/coap"
)

const svcName = "coap-server"

// appState is the value handlers extract via coap.State[*appState]():
// an in-memory sensor reading shared across every request, standing
// in for whatever application-specific store a real deployment would
// wire in.
type appState struct {
	reading atomic.Int64
}

type device struct {
	Temp float32 `json:"temp"`
}

func main() {
	cfg := coap.Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	state := &appState{}
	state.reading.Store(20)

	srv, err := coap.NewServer(cfg, logger, state)
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	if err := registerRoutes(srv.Router()); err != nil {
		logger.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(svcName+" started", "bind_addr", cfg.BindAddr)
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(svcName+" terminated", "error", err)
		os.Exit(1)
	}
}

func registerRoutes(r *coap.Router) error {
	if err := r.Add(coap.MethodGet, "/hello", coap.Handler0(func() (coap.Response, error) {
		return coap.RawBody(coap.Content, []byte("world")), nil
	})); err != nil {
		return err
	}

	if err := r.Add(coap.MethodPost, "/device/:id", coap.Handler2(
		coap.Path[string]("id"),
		coap.JSON[device](),
		func(id string, d device) (coap.Response, error) {
			return coap.EmptyStatus(coap.Changed), nil
		},
	)); err != nil {
		return err
	}

	return r.AddObserve("/sensor",
		coap.Handler1(coap.State[*appState](), func(s *appState) (coap.Response, error) {
			return coap.RawBody(coap.Content, readingBody(s)), nil
		}),
		coap.Handler1(coap.State[*appState](), func(s *appState) (coap.Response, error) {
			return coap.RawBody(coap.Content, readingBody(s)), nil
		}),
	)
}

func readingBody(s *appState) []byte {
	return []byte(fmt.Sprintf("%d", s.reading.Load()))
}
