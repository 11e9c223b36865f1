// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"context"
	"encoding/json"
	"fmt"

	broker "github.com/nats-io/nats.go"
)

// MutationEvent is the message §9 calls for: "mutation events as
// messages on an internal channel consumed by the observe engine,
// which in turn issues notification work items." Decoupling the
// request-handling goroutine from the fan-out goroutine this way
// means a slow notify-handler or a large subscriber set never adds
// latency to the POST/PUT/DELETE request that triggered it.
type MutationEvent struct {
	Path string `json:"path"`
}

// Bus is the internal publish/subscribe contract for mutation
// events, shaped after messaging.PubSub in the pack's messaging
// package but narrowed to this engine's one topic kind (a resource
// path, not an arbitrary channel/subtopic pair).
type Bus interface {
	Publish(ctx context.Context, ev MutationEvent) error
	Subscribe(handler func(MutationEvent)) error
	Close() error
}

// LocalBus is the zero-external-dependency default: a buffered Go
// channel fanning out to a single in-process consumer. It is the bus
// a framework instance uses when no broker is configured; with a
// broker URL set, a NATSBus is used instead.
type LocalBus struct {
	events chan MutationEvent
	done   chan struct{}
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalBus{events: make(chan MutationEvent, buffer), done: make(chan struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, ev MutationEvent) error {
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return fmt.Errorf("observe: bus closed")
	default:
		// Backpressure: a full local bus drops the mutation event
		// rather than blocking the request-handling goroutine that
		// published it. A dropped event only delays, never loses,
		// eventual consistency for resources with external polling.
		return nil
	}
}

func (b *LocalBus) Subscribe(handler func(MutationEvent)) error {
	go func() {
		for {
			select {
			case ev := <-b.events:
				handler(ev)
			case <-b.done:
				return
			}
		}
	}()
	return nil
}

func (b *LocalBus) Close() error {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	return nil
}

// NATSBus fans mutation events out over a NATS subject, so multiple
// framework instances sharing one persistent observer store (a Bolt
// file on shared storage, or one per instance pointed at the same
// resource set) can all learn of a mutation regardless of which
// instance's handler produced it. Grounded on
// pkg/messaging/nats/publisher.go's connection setup, trimmed to core
// NATS (no JetStream) since mutation events are transient
// work-triggers, not an event log that needs replay.
type NATSBus struct {
	conn    *broker.Conn
	subject string
}

const defaultMaxReconnects = -1

func NewNATSBus(url, subject string) (*NATSBus, error) {
	conn, err := broker.Connect(url, broker.MaxReconnects(defaultMaxReconnects))
	if err != nil {
		return nil, err
	}
	return &NATSBus{conn: conn, subject: subject}, nil
}

func (b *NATSBus) Publish(ctx context.Context, ev MutationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject, data)
}

func (b *NATSBus) Subscribe(handler func(MutationEvent)) error {
	_, err := b.conn.Subscribe(b.subject, func(msg *broker.Msg) {
		var ev MutationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
	return err
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
