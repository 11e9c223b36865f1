// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package coaptest provides in-process test doubles for exercising a
// built server without a real UDP socket: a session.Dispatcher
// recorder for handler/router-level assertions and a FakeTransport
// for full session/retransmission-level assertions. Grounded on
// ironzhang-coap/coaptest/recorder.go's ResponseRecorder — capture
// what would have gone on the wire instead of writing real bytes —
// generalized to this framework's two natural test seams.
package coaptest

import (
	"context"
	"time"

	"github.com/coapframework/coapd/internal/session"
	"github.com/coapframework/coapd/internal/wire"
)

// Recorder drives a session.Dispatcher (what *coap.Router implements)
// directly for a single request, bypassing the transport and session
// layers entirely. Use it for router-matching, extractor and handler
// assertions where retransmission framing is not the thing under
// test.
type Recorder struct {
	Dispatcher session.Dispatcher
}

func NewRecorder(d session.Dispatcher) *Recorder {
	return &Recorder{Dispatcher: d}
}

// Do dispatches pkt as if it had arrived from peerIdentity and waits
// up to timeout for the Outgoing response. The second return value is
// false if the dispatcher never answered within timeout.
func (r *Recorder) Do(ctx context.Context, peerIdentity []byte, pkt wire.Packet, timeout time.Duration) (session.Outgoing, bool) {
	ch := r.Dispatcher.Dispatch(ctx, peerIdentity, pkt)
	select {
	case out := <-ch:
		return out, true
	case <-time.After(timeout):
		return session.Outgoing{}, false
	}
}
