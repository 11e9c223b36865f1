// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plgd-dev/go-coap/v2/message/codes"

	"github.com/coapframework/coapd/internal/wire"
)

// Sender is the narrow contract the engine needs to deliver a
// notification datagram: frame it and hand it to the transport. A
// *session.Session satisfies this structurally; this package never
// imports the session package (§4.5's engine is independent of the
// session layer, wired together only by the top-level server).
type Sender interface {
	SendNotification(token []byte, confirmable bool, options []wire.Option, payload []byte) error
}

// SenderLookup resolves a peer identity to the live Sender currently
// handling that peer's session, or false if no session is live (the
// peer has gone away since the subscription was recorded).
type SenderLookup interface {
	SenderFor(peerIdentity []byte) (Sender, bool)
}

// NotifyFunc invokes the notify-handler registered for path exactly
// once per mutation, per §4.5 step 2. It is supplied by the router,
// which is the only component that knows which handler is bound to
// which path.
type NotifyFunc func(ctx context.Context, path string) (code codes.Code, options []wire.Option, payload []byte, err error)

// Engine is the observe subsystem of §4.5: subscription lifecycle plus
// mutation-triggered notification fan-out.
type Engine struct {
	store    Store
	bus      Bus
	lookup   SenderLookup
	notify   NotifyFunc
	confirm  bool
	logger   *slog.Logger

	mu      sync.Mutex
	byToken map[string]string // key(identity, token) -> resource path, for EvictNotification
	lastSeq map[string]uint32 // tokenKey(identity, token) -> last Observe value actually delivered
}

// Options configures an Engine at construction.
type Options struct {
	Store Store
	Bus   Bus
	// Confirmable selects CON vs NON for outgoing notifications, the
	// "per configuration" knob §4.5 step 3 leaves to the caller.
	Confirmable bool
	Logger      *slog.Logger
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		store:   opts.Store,
		bus:     opts.Bus,
		confirm: opts.Confirmable,
		logger:  opts.Logger,
		byToken: make(map[string]string),
		lastSeq: make(map[string]uint32),
	}
}

// Bind supplies the two collaborators the engine cannot be built
// with (a circular dependency otherwise): where to look up a live
// session by identity, and how to invoke a path's notify-handler.
// Both are supplied once, after the router and session manager exist.
func (e *Engine) Bind(lookup SenderLookup, notify NotifyFunc) {
	e.lookup = lookup
	e.notify = notify
}

// Start subscribes the engine to its mutation bus and begins
// processing mutation events on the calling goroutine's behalf (the
// handler runs on whatever goroutine the Bus implementation chooses
// to invoke it on; LocalBus runs it on a single consumer goroutine and
// NATS delivers one subscription's messages one at a time, so events
// are handled in arrival order, per §5. The engine's mutex guards only
// its token and sequence maps).
func (e *Engine) Start(ctx context.Context) error {
	return e.bus.Subscribe(func(ev MutationEvent) {
		e.handleMutation(ctx, ev.Path)
	})
}

// Register implements §4.5's GET Observe=0 steps 2-3's bookkeeping
// half (step 1, invoking the get-handler, is the router's job before
// calling this). code must already be known 2.xx by the caller.
func (e *Engine) Register(path string, identity, token []byte) (*Subscription, error) {
	sub, err := e.store.Put(path, identity, token)
	if err != nil {
		return nil, ErrUnavailable
	}
	e.mu.Lock()
	e.byToken[tokenKey(identity, token)] = path
	e.mu.Unlock()
	return sub, nil
}

// Deregister implements the GET Observe=1 rule.
func (e *Engine) Deregister(path string, identity []byte) error {
	return e.store.Delete(path, identity)
}

// Trigger publishes a mutation event for path onto the bus, per §9's
// "mutation events as messages on an internal channel" design. It
// returns as soon as the event is enqueued; fan-out happens
// asynchronously via Start's subscription.
func (e *Engine) Trigger(ctx context.Context, path string) error {
	return e.bus.Publish(ctx, MutationEvent{Path: path})
}

func (e *Engine) handleMutation(ctx context.Context, path string) {
	subs, err := e.store.Iter(path)
	if err != nil || len(subs) == 0 {
		return
	}
	if e.notify == nil {
		return
	}

	code, options, payload, err := e.notify(ctx, path)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("notify-handler failed", "path", path, "error", err)
		}
		return
	}

	for _, sub := range subs {
		e.deliver(path, sub, code, options, payload)
	}
}

func (e *Engine) deliver(path string, sub Subscription, code codes.Code, options []wire.Option, payload []byte) {
	seq, err := e.store.BumpSeq(path, sub.PeerIdentity)
	if err != nil {
		// The subscription vanished between Iter and BumpSeq (a
		// concurrent deregistration); nothing to deliver.
		return
	}

	tk := tokenKey(sub.PeerIdentity, sub.Token)
	e.mu.Lock()
	e.byToken[tk] = path
	// §8's "consecutive delivered notifications carry strictly
	// increasing Observe values under the freshness predicate" is
	// guaranteed by construction as long as every Store implementation
	// bumps a subscription's seq atomically; fresher is the RFC 7641
	// §3.4 test that property is actually phrased in terms of, so it
	// is checked here rather than trusted blindly — a Store that ever
	// violates atomicity (e.g. a future backend without the same
	// locking discipline as MemoryStore/BoltStore) fails closed instead
	// of shipping an out-of-order notification.
	prev, seen := e.lastSeq[tk]
	e.lastSeq[tk] = seq
	e.mu.Unlock()
	if seen && !fresher(prev, seq) {
		if e.logger != nil {
			e.logger.Warn("dropping stale notification", "path", path, "prev_seq", prev, "seq", seq)
		}
		return
	}

	sender, ok := e.lookup.SenderFor(sub.PeerIdentity)
	if !ok {
		return
	}

	obsOpt := wire.Option{ID: wire.OptionObserve, Value: wire.EncodeUint(seq)}
	full := append([]wire.Option{obsOpt}, options...)
	if err := sender.SendNotification(sub.Token, e.confirm, full, payload); err != nil && e.logger != nil {
		e.logger.Warn("notification send failed", "path", path, "error", err)
	}
	_ = code // the response status of a notification is always 2.05 Content on this path; code is reserved for future non-2.xx notification support.
}

// EvictPeer implements session.EvictionNotifier: remove every
// subscription held by identity, the single reap point §9 describes.
func (e *Engine) EvictPeer(identity []byte) {
	e.store.DeleteAll(identity)
	e.mu.Lock()
	prefix := string(identity) + "\x00"
	for k := range e.byToken {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.byToken, k)
		}
	}
	for k := range e.lastSeq {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.lastSeq, k)
		}
	}
	e.mu.Unlock()
}

// EvictNotification implements session.EvictionNotifier: remove the
// single subscription the session identified by (identity, token),
// following an RST or retransmission-budget exhaustion.
func (e *Engine) EvictNotification(identity []byte, token []byte) {
	tk := tokenKey(identity, token)
	e.mu.Lock()
	path, ok := e.byToken[tk]
	delete(e.byToken, tk)
	delete(e.lastSeq, tk)
	e.mu.Unlock()
	if !ok {
		return
	}
	e.store.Delete(path, identity)
}

func tokenKey(identity, token []byte) string {
	return string(identity) + "\x00" + string(token)
}
