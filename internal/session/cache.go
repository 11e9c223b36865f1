// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// responseCache holds the byte-identical response the session last
// sent for a given inbound Confirmable message_id, for EXCHANGE_LIFETIME,
// so a duplicate CON gets the cached bytes re-sent rather than the
// handler re-invoked (§4.2 deduplication, §8's byte-identical
// re-emission property). Grounded on ironzhang-coap/cache.go, trimmed
// to this session's single concern: keyed by message_id, not by
// request identity, since that's all CoAP-level dedup needs.
type responseCache struct {
	entries  map[uint16]cachedResponse
	lifetime time.Duration
}

type cachedResponse struct {
	data  []byte
	start time.Time
}

func newResponseCache(lifetime time.Duration) *responseCache {
	return &responseCache{entries: make(map[uint16]cachedResponse), lifetime: lifetime}
}

func (c *responseCache) get(mid uint16) ([]byte, bool) {
	e, ok := c.entries[mid]
	if !ok {
		return nil, false
	}
	if time.Since(e.start) > c.lifetime {
		delete(c.entries, mid)
		return nil, false
	}
	return e.data, true
}

func (c *responseCache) put(mid uint16, data []byte) {
	c.entries[mid] = cachedResponse{data: data, start: time.Now()}
	c.gc()
}

func (c *responseCache) gc() {
	if len(c.entries) < 128 {
		return
	}
	for mid, e := range c.entries {
		if time.Since(e.start) > c.lifetime {
			delete(c.entries, mid)
		}
	}
}
