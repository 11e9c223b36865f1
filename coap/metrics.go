// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/coapframework/coapd/internal/session"
	"github.com/coapframework/coapd/internal/wire"
)

// metricsMiddleware instruments a session.Dispatcher by tracking
// request count and latency, the same decorator shape as
// coap/api/metrics.go's metricsMiddleware — generalized from wrapping
// a pubsub-shaped Service to wrapping the Dispatcher this framework
// actually has.
type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	next    session.Dispatcher
}

// NewMetricsMiddleware wraps next with a Prometheus request counter
// labeled by method and response code, and a latency summary labeled
// by method.
func NewMetricsMiddleware(next session.Dispatcher, namespace, subsystem string) session.Dispatcher {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Number of CoAP requests dispatched.",
	}, []string{"method", "code"})

	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "CoAP request dispatch latency in seconds.",
	}, []string{"method"})

	return &metricsMiddleware{counter: counter, latency: latency, next: next}
}

func (m *metricsMiddleware) Dispatch(ctx context.Context, peerIdentity []byte, pkt wire.Packet) <-chan session.Outgoing {
	method := pkt.Code.String()
	start := time.Now()
	inner := m.next.Dispatch(ctx, peerIdentity, pkt)

	out := make(chan session.Outgoing, 1)
	go func() {
		resp := <-inner
		m.latency.With("method", method).Observe(time.Since(start).Seconds())
		m.counter.With("method", method, "code", strconv.Itoa(int(resp.Code))).Add(1)
		out <- resp
	}()
	return out
}
