// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coaptest

import (
	"sync"

	"github.com/coapframework/coapd/internal/transport"
)

// Sent is one datagram a FakeTransport observed being sent to a peer.
type Sent struct {
	Peer transport.Peer
	Data []byte
}

// FakeTransport is an in-memory transport.Transport: no socket,
// inbound datagrams are injected with Deliver and outbound datagrams
// are captured for TakeSent to drain, so a full session.Manager (and
// therefore retransmission, deduplication and piggyback/separate-ACK
// framing) can be driven end to end in a test.
type FakeTransport struct {
	events chan transport.Event

	mu   sync.Mutex
	sent []Sent
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{events: make(chan transport.Event, 256)}
}

func (t *FakeTransport) Events() <-chan transport.Event { return t.events }

func (t *FakeTransport) Send(peer transport.Peer, data []byte) error {
	t.mu.Lock()
	t.sent = append(t.sent, Sent{Peer: peer, Data: append([]byte(nil), data...)})
	t.mu.Unlock()
	return nil
}

func (t *FakeTransport) Close() error {
	return nil
}

// Deliver injects an inbound datagram from peer, as if it had just
// been read off the wire.
func (t *FakeTransport) Deliver(peer transport.Peer, data []byte) {
	t.events <- transport.Event{Peer: peer, Data: data}
}

// Disconnect simulates the transport tearing peer down (as on a
// transport-level error) by injecting a Closed Event.
func (t *FakeTransport) Disconnect(peer transport.Peer) {
	t.events <- transport.Event{Peer: peer, Closed: true}
}

// TakeSent drains and returns everything sent since the last call.
func (t *FakeTransport) TakeSent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.sent
	t.sent = nil
	return out
}
