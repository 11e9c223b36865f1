// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/coapframework/coapd/internal/observe"
	"github.com/coapframework/coapd/internal/session"
	"github.com/coapframework/coapd/internal/transport"
)

// Server wires the transport, session manager, router and observe
// engine together — the top-level assembly §2's control-flow diagram
// describes. Build one with NewServer, register routes on Router(),
// then call Run.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	router  *Router
	engine  *observe.Engine
	store   observe.Store
	bus     observe.Bus
	manager *session.Manager
}

// NewServer constructs the server's collaborators but does not bind a
// socket; call Run for that. state is the application's shared
// State[S] value handlers will extract (§4.4), or nil.
func NewServer(cfg Config, logger *slog.Logger, state any) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("coap: build observer store: %w", err)
	}

	bus, err := buildBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("coap: build mutation bus: %w", err)
	}

	engine := observe.NewEngine(observe.Options{
		Store:       store,
		Bus:         bus,
		Confirmable: cfg.NotifyConfirmable,
		Logger:      logger,
	})

	router := NewRouter(state, engine)
	router.SetMaxPayloadSize(cfg.MaxMessageSize)

	return &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		engine: engine,
		store:  store,
		bus:    bus,
	}, nil
}

// Router exposes the route builder; register routes on it before
// calling Run.
func (s *Server) Router() *Router { return s.router }

// Engine exposes the observe engine so application code outside any
// request handler — a background poller, a sensor-read goroutine — can
// call Trigger to push a notification on its own schedule, not only in
// reaction to a POST/PUT/DELETE routed through Dispatch.
func (s *Server) Engine() *observe.Engine { return s.engine }

// Run binds the transport, freezes the route table, and blocks
// serving requests until ctx is cancelled or a fatal transport error
// occurs, per §4.1's "a receive error on the main socket is fatal"
// rule. Grounded on cmd/alarms/main.go's errgroup.WithContext
// lifecycle: every long-running piece is a g.Go call, and the first
// one to fail cancels the rest.
func (s *Server) Run(ctx context.Context) error {
	s.router.Build()

	tp, err := s.listen()
	if err != nil {
		return fmt.Errorf("coap: listen: %w", err)
	}
	defer tp.Close()

	var dispatcher session.Dispatcher = s.router
	if s.cfg.MetricsEnabled {
		dispatcher = NewMetricsMiddleware(dispatcher, s.cfg.MetricsNamespace, s.cfg.MetricsSubsystem)
	}

	manager := session.NewManager(tp, dispatcher, s.engine, s.cfg.sessionConfig(), s.logger)
	s.manager = manager
	s.engine.Bind(managerSenderLookup{manager}, s.router.notifyFuncFor())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.engine.Start(ctx)
	})
	g.Go(func() error {
		return manager.Run(ctx)
	})

	err = g.Wait()
	s.bus.Close()
	s.store.Close()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (s *Server) listen() (transport.Transport, error) {
	if s.cfg.DTLS == nil {
		return transport.ListenUDP(s.cfg.BindAddr, s.logger)
	}
	return transport.ListenDTLS(s.cfg.BindAddr, transport.PSKConfig{
		LookupKey:            s.cfg.DTLS.LookupKey,
		IdentityHint:         s.cfg.DTLS.IdentityHint,
		CipherSuites:         s.cfg.DTLS.CipherSuites,
		ExtendedMasterSecret: s.cfg.DTLS.ExtendedMasterSecret,
		HandshakeTimeout:     s.cfg.DTLS.HandshakeTimeout,
	}, s.logger)
}

func buildStore(cfg Config) (observe.Store, error) {
	switch cfg.ObserverBackend {
	case "", "memory":
		return observe.NewMemoryStore(), nil
	case "bolt":
		return observe.NewBoltStore(cfg.ObserverDBPath)
	default:
		return nil, fmt.Errorf("coap: unknown observer backend %q", cfg.ObserverBackend)
	}
}

func buildBus(cfg Config) (observe.Bus, error) {
	if cfg.BrokerURL == "" {
		return observe.NewLocalBus(cfg.InboxSize * 4), nil
	}
	return observe.NewNATSBus(cfg.BrokerURL, cfg.BrokerSubject)
}

// managerSenderLookup adapts *session.Manager to observe.SenderLookup.
// Both session and observe stay independent of each other; only this
// top-level package imports both and bridges them.
type managerSenderLookup struct {
	mgr *session.Manager
}

func (l managerSenderLookup) SenderFor(identity []byte) (observe.Sender, bool) {
	s, ok := l.mgr.SenderFor(identity)
	if !ok {
		return nil, false
	}
	return s, true
}
