// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport implements §4.1 of the specification: binding a
// UDP socket (optionally wrapped in DTLS 1.2 PSK) and demultiplexing
// datagrams by peer identity. The DTLS handshake itself is delegated
// to github.com/pion/dtls/v2, consumed exactly as the specification's
// "Conn-shaped trait providing send/recv/identity retrieval" — this
// package never touches a DTLS record.
package transport

import (
	"net"
)

// Peer identifies the other end of a session. For plaintext UDP it is
// the remote socket address in canonical form; for DTLS-PSK it is the
// PSK identity hint the peer presented during the handshake. Two
// Peers with equal Identity are always the same session, even if the
// underlying network address differs across datagrams (DTLS) or not
// (plaintext never rebinds).
type Peer struct {
	Identity []byte
	addr     net.Addr
}

// String renders the peer identity for logging.
func (p Peer) String() string {
	return string(p.Identity)
}

// Event is either an inbound datagram for a peer or a peer teardown
// notification (Closed == true, Data == nil). Transport-level errors
// that are fatal to a single peer (undecryptable DTLS record,
// persistent send failure) surface as a teardown Event rather than an
// error return, so the session manager can reap subscriptions per
// §4.5's "implicit deregistration on session teardown" rule.
type Event struct {
	Peer   Peer
	Data   []byte
	Closed bool
}

// Transport is the contract the session manager drives: a stream of
// per-peer datagrams in, and addressed sends out.
type Transport interface {
	// Events returns the channel of inbound datagrams and teardown
	// notifications. Closed when the transport itself shuts down.
	Events() <-chan Event

	// Send transmits data to peer. A transient error is retried once
	// internally; a persistent error tears the peer down (a Closed
	// Event follows) and is also returned here. Sending to an unknown
	// peer returns an error.
	Send(peer Peer, data []byte) error

	// Close shuts down the listener and all peer connections.
	Close() error
}
