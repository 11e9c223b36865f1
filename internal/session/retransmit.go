// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"container/heap"
	"math/rand"
	"time"
)

// pendingCON is an in-flight Confirmable message awaiting an ACK or
// RST, per §3's pending_con session state and §4.2's retransmission
// rules. notifyToken is set only for server-initiated notifications,
// so retransmission-budget exhaustion can be reported back to the
// observe engine for the right subscription.
type pendingCON struct {
	mid         uint16
	payload     []byte
	attempts    int
	deadline    time.Time
	notifyToken []byte
	index       int // heap.Interface bookkeeping
}

// retransmitHeap is a per-session min-heap keyed by deadline, as §9
// recommends, so the session loop waits on a single timer rather than
// one goroutine per Confirmable in flight.
type retransmitHeap struct {
	items []*pendingCON
	byMID map[uint16]*pendingCON
}

func newRetransmitHeap() *retransmitHeap {
	return &retransmitHeap{byMID: make(map[uint16]*pendingCON)}
}

func (h *retransmitHeap) Len() int { return len(h.items) }
func (h *retransmitHeap) Less(i, j int) bool {
	return h.items[i].deadline.Before(h.items[j].deadline)
}
func (h *retransmitHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
func (h *retransmitHeap) Push(x any) {
	p := x.(*pendingCON)
	p.index = len(h.items)
	h.items = append(h.items, p)
}
func (h *retransmitHeap) Pop() any {
	n := len(h.items)
	p := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return p
}

// add schedules a new pending Confirmable with attempts=0 at the
// first backoff deadline.
func (h *retransmitHeap) add(mid uint16, payload []byte, notifyToken []byte, cfg Config) *pendingCON {
	p := &pendingCON{
		mid:         mid,
		payload:     payload,
		notifyToken: notifyToken,
		deadline:    time.Now().Add(backoff(cfg, 0)),
	}
	heap.Push(h, p)
	h.byMID[mid] = p
	return p
}

// cancel removes the pending entry for mid, if any (ACK or RST
// received). Returns the removed entry, or nil if none was pending.
func (h *retransmitHeap) cancel(mid uint16) *pendingCON {
	p, ok := h.byMID[mid]
	if !ok {
		return nil
	}
	delete(h.byMID, mid)
	heap.Remove(h, p.index)
	return p
}

// peek returns the next deadline without removing it.
func (h *retransmitHeap) peek() (*pendingCON, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// expire is called when the head entry's deadline has passed. It
// either reschedules for another attempt (returning retry=true) or,
// once MAX_RETRANSMIT is exhausted, removes the entry and reports
// exhaustion.
func (h *retransmitHeap) expire(cfg Config) (p *pendingCON, retry bool) {
	p = h.items[0]
	p.attempts++
	if p.attempts > cfg.MaxRetransmit {
		delete(h.byMID, p.mid)
		heap.Remove(h, 0)
		return p, false
	}
	p.deadline = time.Now().Add(backoff(cfg, p.attempts))
	heap.Fix(h, 0)
	return p, true
}

// backoff computes ACK_TIMEOUT * 2^n * (1 + jitter) per §4.2, with
// jitter uniform in [0, ACK_RANDOM_FACTOR-1].
func backoff(cfg Config, n int) time.Duration {
	base := float64(cfg.AckTimeout) * pow2(n)
	jitter := 1.0
	if cfg.AckRandomFactor > 1 {
		jitter += rand.Float64() * (cfg.AckRandomFactor - 1)
	}
	return time.Duration(base * jitter)
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}
