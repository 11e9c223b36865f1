// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package observe implements §4.5 and §6's observer subsystem: the
// subscription registry, notification fan-out, and monotonic
// sequencing required by RFC 7641.
package observe

import (
	"errors"
	"time"
)

// Subscription is the record described in §3: one peer's standing
// interest in one resource path.
type Subscription struct {
	ResourcePath string
	PeerIdentity []byte
	Token        []byte
	Seq          uint32
	CreatedAt    time.Time
}

// key returns the canonical path\0identity byte string §4.5 and §6
// specify as the backend's key shape, making Iter a prefix scan.
func key(path string, identity []byte) string {
	b := make([]byte, 0, len(path)+1+len(identity))
	b = append(b, path...)
	b = append(b, 0)
	b = append(b, identity...)
	return string(b)
}

// ErrUnavailable is returned by a Store when a mutating operation
// cannot be completed; per §7 kind 5 the caller must fail closed
// rather than create or bump a subscription it cannot persist.
var ErrUnavailable = errors.New("observer store unavailable")

// Store is the backend contract of §4.5: put/delete/delete_all/iter/
// bump_seq, each atomic with respect to the others. Two backends are
// required — Memory and Bolt.
type Store interface {
	// Put creates or replaces the subscription for (path, identity).
	// A re-registration with a different token replaces the record
	// atomically, per §3's invariant.
	Put(path string, identity []byte, token []byte) (*Subscription, error)

	// Delete removes the subscription for (path, identity), if any.
	Delete(path string, identity []byte) error

	// DeleteAll removes every subscription held by identity, across
	// all paths — the single reap point on session teardown (§4.5,
	// §9 "Ownership of subscription records").
	DeleteAll(identity []byte) error

	// Iter returns every subscription currently registered for path.
	// The order is unspecified.
	Iter(path string) ([]Subscription, error)

	// BumpSeq atomically increments and returns the new sequence
	// number for (path, identity), wrapping modulo 2^24; the RFC 7641
	// §3.4 freshness comparison is made by the engine on delivery. Returns
	// ErrUnavailable (without mutating state) if no such subscription
	// exists.
	BumpSeq(path string, identity []byte) (uint32, error)

	// Close releases any resources held by the backend.
	Close() error
}
