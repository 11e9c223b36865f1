// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/plgd-dev/go-coap/v2/message/codes"

	"github.com/coapframework/coapd/internal/wire"
)

// Outgoing is the response a Dispatcher produces for one inbound
// request: a status code, options and payload. The session manager
// owns framing it as an ACK or a separate CON/NON (§4.2); the
// Dispatcher never sees message IDs or confirmability.
type Outgoing struct {
	Code    codes.Code
	Options []wire.Option
	Payload []byte
}

// Dispatcher is the narrow contract the session manager drives for
// every inbound request: route it, run its handler (and any observe
// bookkeeping), and produce a response. Implemented by coap.Router.
//
// The returned channel receives exactly one Outgoing and is then
// closed-over (never read twice); the session manager races it
// against ACK_TIMEOUT/2 to decide piggyback vs. separate-response
// framing, per §4.2.
type Dispatcher interface {
	Dispatch(ctx context.Context, peerIdentity []byte, pkt wire.Packet) <-chan Outgoing
}

// EvictionNotifier is how the session manager reports the events that
// must reap observe subscriptions, per §4.5's implicit-deregistration
// rule. Implemented by observe.Engine; declared here so this package
// never imports the observe package.
type EvictionNotifier interface {
	// EvictPeer removes every subscription held by identity: called
	// when the transport reports the peer closed and when an idle
	// session is swept. An RST does not tear the session down; it only
	// reaches EvictNotification.
	EvictPeer(identity []byte)

	// EvictNotification removes the single subscription keyed by
	// (identity, token): called when a notification is RST by the
	// client, or exhausts its retransmission budget.
	EvictNotification(identity []byte, token []byte)
}
