// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"

	"github.com/coapframework/coapd/internal/wire"
)

// ObserveFlag is the decoded intent of an inbound Observe option, the
// extractor from §4.4's table.
type ObserveFlag int

const (
	ObserveNone ObserveFlag = iota
	ObserveRegister
	ObserveDeregister
)

// RequestContext is the "abstract request context" of §4.4: every
// value the extractor set can pull from, plus the captures the router
// resolved and the server-wide state handlers were built against.
type RequestContext struct {
	ctx          context.Context
	peerIdentity []byte
	method       wire.Code
	path         string
	captures     map[string]string
	contentFmt   *uint32
	observe      ObserveFlag
	payload      []byte
	state        any
	maxPayload   int
}

func (rc *RequestContext) Context() context.Context { return rc.ctx }

// capture looks up a named path segment captured by the router.
func (rc *RequestContext) capture(name string) (string, bool) {
	v, ok := rc.captures[name]
	return v, ok
}
