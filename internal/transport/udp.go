// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UDPTransport is the plaintext transport: a single bound UDP socket
// demultiplexed by remote address. Per §4.1, peer_identity is the
// remote address in canonical (net.Addr.String()) form.
type UDPTransport struct {
	conn   *net.UDPConn
	logger *slog.Logger

	events chan Event

	mu    sync.RWMutex
	peers map[string]*net.UDPAddr
}

// ListenUDP binds addr and starts the read loop. A receive error on
// the main socket is fatal (§4.1): the transport closes and Events()
// is drained and closed.
func ListenUDP(addr string, logger *slog.Logger) (*UDPTransport, error) {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", uaddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	t := &UDPTransport{
		conn:   conn,
		logger: logger,
		events: make(chan Event, 256),
		peers:  make(map[string]*net.UDPAddr),
	}
	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) readLoop() {
	defer close(t.events)
	buf := make([]byte, 65535)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Error("udp transport read failed, terminating", "error", err)
			return
		}
		identity := []byte(addr.String())
		t.mu.Lock()
		t.peers[string(identity)] = addr
		t.mu.Unlock()

		data := append([]byte(nil), buf[:n]...)
		t.events <- Event{Peer: Peer{Identity: identity, addr: addr}, Data: data}
	}
}

func (t *UDPTransport) Events() <-chan Event {
	return t.events
}

// LocalAddr reports the address the transport is bound to.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Send(peer Peer, data []byte) error {
	addr, ok := peer.addr.(*net.UDPAddr)
	if !ok {
		t.mu.RLock()
		addr, ok = t.peers[string(peer.Identity)]
		t.mu.RUnlock()
		if !ok {
			return fmt.Errorf("transport: unknown peer %q", peer)
		}
	}
	_, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		// A transient error is retried once (§4.1); anything past
		// that is a persistent failure and tears the peer down, per
		// the Transport contract: a Closed Event follows rather than
		// relying on the caller to act on the returned error.
		time.Sleep(5 * time.Millisecond)
		_, err = t.conn.WriteToUDP(data, addr)
	}
	if err != nil {
		t.mu.Lock()
		delete(t.peers, string(peer.Identity))
		t.mu.Unlock()
		t.events <- Event{Peer: peer, Closed: true}
	}
	return err
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
