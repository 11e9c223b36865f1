// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session implements §4.2 of the specification: one
// cooperative per-peer loop owning message-id allocation, token
// bookkeeping, retransmission and duplicate suppression, independent
// of any other peer's state.
package session

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/coapframework/coapd/internal/transport"
	"github.com/coapframework/coapd/internal/wire"
)

// Session is the per-peer state bundle of §3's data model.
type Session struct {
	peer      transport.Peer
	transport transport.Transport
	dispatch  Dispatcher
	evictor   EvictionNotifier
	cfg       Config
	logger    *slog.Logger

	inbox chan []byte
	done  chan struct{}

	mu           sync.Mutex
	outboundMID  uint16
	pending      *retransmitHeap
	recentRX     *dedupSet
	cache        *responseCache
	sem          chan struct{}
	lastActivity time.Time
}

func newSession(peer transport.Peer, t transport.Transport, d Dispatcher, evictor EvictionNotifier, cfg Config, logger *slog.Logger) *Session {
	return &Session{
		peer:         peer,
		transport:    t,
		dispatch:     d,
		evictor:      evictor,
		cfg:          cfg,
		logger:       logger,
		inbox:        make(chan []byte, cfg.InboxSize),
		done:         make(chan struct{}),
		outboundMID:  uint16(rand.Intn(1 << 16)),
		pending:      newRetransmitHeap(),
		recentRX:     newDedupSet(cfg.ExchangeLifetime),
		cache:        newResponseCache(cfg.ExchangeLifetime),
		sem:          make(chan struct{}, maxInt(cfg.NStart, 1)),
		lastActivity: time.Now(),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// deliver enqueues an inbound datagram for this session. If the
// session's inbox is full, the datagram is dropped, providing the
// per-session backpressure §5 calls for.
func (s *Session) deliver(data []byte) {
	select {
	case s.inbox <- data:
	default:
		s.logger.Warn("session inbox full, dropping datagram", "peer", s.peer)
	}
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// close tears the session down; queued datagrams are discarded.
func (s *Session) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// run is the single-threaded cooperative loop: it waits on the
// earlier of the next retransmission deadline or the next inbound
// datagram, per §9's min-heap recommendation. Entries are also pushed
// from other goroutines (notifications, separate responses), so the
// heap is re-checked at least every ACK_TIMEOUT/2; a new entry's first
// deadline is never sooner than ACK_TIMEOUT, so none is missed.
func (s *Session) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		wait := s.cfg.AckTimeout / 2
		s.mu.Lock()
		if p, ok := s.pending.peek(); ok {
			if d := time.Until(p.deadline); d < wait {
				wait = d
			}
		}
		s.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case data, ok := <-s.inbox:
			if !timer.Stop() {
				<-timer.C
			}
			if !ok {
				return
			}
			s.handleDatagram(ctx, data)
		case <-timer.C:
			s.mu.Lock()
			p, ok := s.pending.peek()
			due := ok && !time.Now().Before(p.deadline)
			s.mu.Unlock()
			if due {
				s.handleExpiry()
			}
		}
	}
}

func (s *Session) handleDatagram(ctx context.Context, data []byte) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	pkt, err := wire.Decode(data)
	if err != nil {
		// §7 kind 1: malformed CoAP bytes are dropped silently.
		s.logger.Debug("dropping malformed datagram", "peer", s.peer, "error", err)
		return
	}

	switch pkt.Type {
	case wire.Acknowledgement:
		s.handleAck(pkt)
	case wire.Reset:
		s.handleReset(pkt)
	default:
		s.handleRequest(ctx, pkt)
	}
}

func (s *Session) handleAck(pkt wire.Packet) {
	s.mu.Lock()
	p := s.pending.cancel(pkt.MessageID)
	s.mu.Unlock()
	_ = p // a plain ACK needs no further action; a piggybacked response has no pending entry.
}

func (s *Session) handleReset(pkt wire.Packet) {
	s.mu.Lock()
	p := s.pending.cancel(pkt.MessageID)
	s.mu.Unlock()
	if p != nil && p.notifyToken != nil {
		s.evictor.EvictNotification(s.peer.Identity, p.notifyToken)
	}
}

func (s *Session) handleRequest(ctx context.Context, pkt wire.Packet) {
	if pkt.Type == wire.Confirmable {
		s.mu.Lock()
		if s.recentRX.seenRecently(pkt.MessageID) {
			cached, ok := s.cache.get(pkt.MessageID)
			s.mu.Unlock()
			if ok {
				s.send(cached)
			}
			return
		}
		s.recentRX.record(pkt.MessageID)
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		dup := s.recentRX.seenRecently(pkt.MessageID)
		if !dup {
			s.recentRX.record(pkt.MessageID)
		}
		s.mu.Unlock()
		if dup {
			return
		}
	}

	// NSTART: at most cfg.NStart concurrent in-flight requests per
	// session; default 1 makes this strictly sequential. The acquire
	// happens in serveRequest's own goroutine, never on run's goroutine,
	// so a full NSTART budget (an earlier slow handler still in flight)
	// never blocks run's select from servicing timer.C for an unrelated
	// pending retransmission.
	go s.serveRequest(ctx, pkt)
}

func (s *Session) serveRequest(ctx context.Context, pkt wire.Packet) {
	select {
	case s.sem <- struct{}{}:
	case <-s.done:
		return
	}
	defer func() { <-s.sem }()

	resultCh := s.dispatch.Dispatch(ctx, s.peer.Identity, pkt)
	if pkt.Type != wire.Confirmable {
		out := <-resultCh
		s.sendNonConfirmable(pkt, out)
		return
	}

	ackTimer := time.NewTimer(s.cfg.AckTimeout / 2)
	select {
	case out := <-resultCh:
		ackTimer.Stop()
		s.sendPiggyback(pkt, out)
	case <-ackTimer.C:
		s.sendEmptyAck(pkt)
		out := <-resultCh
		s.sendSeparateResponse(pkt, out)
	}
}

func (s *Session) sendPiggyback(req wire.Packet, out Outgoing) {
	resp := wire.Packet{
		Type:      wire.Acknowledgement,
		Code:      out.Code,
		MessageID: req.MessageID,
		Token:     req.Token,
		Options:   out.Options,
		Payload:   out.Payload,
	}
	data, err := wire.Encode(resp)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	s.mu.Lock()
	s.cache.put(req.MessageID, data)
	s.mu.Unlock()
	s.send(data)
}

func (s *Session) sendNonConfirmable(req wire.Packet, out Outgoing) {
	resp := wire.Packet{
		Type:      wire.NonConfirmable,
		Code:      out.Code,
		MessageID: s.nextMID(),
		Token:     req.Token,
		Options:   out.Options,
		Payload:   out.Payload,
	}
	data, err := wire.Encode(resp)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	s.send(data)
}

func (s *Session) sendEmptyAck(req wire.Packet) {
	resp := wire.Packet{
		Type:      wire.Acknowledgement,
		MessageID: req.MessageID,
	}
	data, err := wire.Encode(resp)
	if err != nil {
		return
	}
	s.send(data)
}

func (s *Session) sendSeparateResponse(req wire.Packet, out Outgoing) {
	mid := s.nextMID()
	resp := wire.Packet{
		Type:      wire.Confirmable,
		Code:      out.Code,
		MessageID: mid,
		Token:     req.Token,
		Options:   out.Options,
		Payload:   out.Payload,
	}
	data, err := wire.Encode(resp)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	s.mu.Lock()
	s.cache.put(mid, data)
	s.pending.add(mid, data, nil, s.cfg)
	s.mu.Unlock()
	s.send(data)
}

// SendNotification frames and transmits a server-initiated
// notification, per §4.5's notification steps 3-4. It is the method
// through which this Session satisfies observe.Sender, structurally
// (this package never imports the observe package).
func (s *Session) SendNotification(token []byte, confirmable bool, options []wire.Option, payload []byte) error {
	mid := s.nextMID()
	typ := wire.NonConfirmable
	if confirmable {
		typ = wire.Confirmable
	}
	pkt := wire.Packet{
		Type:      typ,
		Code:      wire.Content,
		MessageID: mid,
		Token:     token,
		Options:   options,
		Payload:   payload,
	}
	data, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	if confirmable {
		s.mu.Lock()
		s.pending.add(mid, data, token, s.cfg)
		s.mu.Unlock()
	}
	return s.send(data)
}

func (s *Session) nextMID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.outboundMID++
		if s.pending.byMID[s.outboundMID] == nil {
			return s.outboundMID
		}
	}
}

func (s *Session) send(data []byte) error {
	return s.transport.Send(s.peer, data)
}

// handleExpiry runs when the earliest pending Confirmable's deadline
// has passed: either retransmit it, or, past MAX_RETRANSMIT, report
// delivery failure (§4.2, §8's "exactly one of ACK/RST/exhaustion"
// invariant).
func (s *Session) handleExpiry() {
	s.mu.Lock()
	p, retry := s.pending.expire(s.cfg)
	s.mu.Unlock()
	if p == nil {
		return
	}
	if retry {
		s.send(p.payload)
		return
	}
	if p.notifyToken != nil {
		s.evictor.EvictNotification(s.peer.Identity, p.notifyToken)
	}
}
