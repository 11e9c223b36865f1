// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// dedupSet is the bounded recent_rx set from §3: inbound message IDs
// seen within EXCHANGE_LIFETIME, so a retransmitted CON/NON is
// recognized as a duplicate instead of re-executing its handler.
// Grounded on the GC-on-access bucket shape of
// ironzhang-coap/internal/gctable/table.go, simplified to a single
// bucket since it is already scoped to one session.
type dedupSet struct {
	seen      map[uint16]time.Time
	lifetime  time.Duration
	threshold int
}

func newDedupSet(lifetime time.Duration) *dedupSet {
	return &dedupSet{
		seen:      make(map[uint16]time.Time),
		lifetime:  lifetime,
		threshold: 64,
	}
}

// seenRecently reports whether mid was already observed within the
// dedup window, without recording it again.
func (d *dedupSet) seenRecently(mid uint16) bool {
	d.gc()
	t, ok := d.seen[mid]
	if !ok {
		return false
	}
	return time.Since(t) < d.lifetime
}

// record marks mid as seen now.
func (d *dedupSet) record(mid uint16) {
	d.seen[mid] = time.Now()
}

func (d *dedupSet) gc() {
	if len(d.seen) <= d.threshold {
		return
	}
	for mid, t := range d.seen {
		if time.Since(t) >= d.lifetime {
			delete(d.seen, mid)
		}
	}
	d.threshold = 2 * len(d.seen)
	if d.threshold < 64 {
		d.threshold = 64
	}
}
