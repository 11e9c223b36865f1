// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
)

// PSKConfig is the DTLS configuration surface from §6: a PSK callback
// keyed by identity hint, the server's own hint, an allow-list of
// cipher suites and the extended-master-secret policy.
type PSKConfig struct {
	// LookupKey resolves an identity hint to its pre-shared key. A
	// miss returns ErrPSKIdentityNotFound.
	LookupKey func(identityHint []byte) ([]byte, error)

	IdentityHint []byte

	// CipherSuites defaults to
	// {TLS_PSK_WITH_AES_128_GCM_SHA256} when empty.
	CipherSuites []dtls.CipherSuiteID

	// ExtendedMasterSecret defaults to Require.
	ExtendedMasterSecret dtls.ExtendedMasterSecretType

	HandshakeTimeout time.Duration
}

// ErrPSKIdentityNotFound is returned by a LookupKey implementation
// when the presented identity hint is unknown.
var ErrPSKIdentityNotFound = errors.New("transport: psk identity not found")

// DTLSTransport is the secure transport: a DTLS 1.2 PSK listener where
// peer_identity is the PSK identity hint presented during the
// handshake (§4.1). Handshake failures drop the triggering datagram
// silently; a peer that later sends an undecryptable record is torn
// down.
type DTLSTransport struct {
	listener net.Listener
	logger   *slog.Logger

	events chan Event

	mu    sync.RWMutex
	conns map[string]net.Conn
}

// ListenDTLS binds addr, performs a per-peer DTLS 1.2 PSK handshake on
// first contact and demultiplexes decrypted application data by the
// identity hint the peer presented.
func ListenDTLS(addr string, cfg PSKConfig, logger *slog.Logger) (*DTLSTransport, error) {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}

	suites := cfg.CipherSuites
	if len(suites) == 0 {
		suites = []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_GCM_SHA256}
	}
	ems := cfg.ExtendedMasterSecret
	if ems == 0 {
		ems = dtls.RequireExtendedMasterSecret
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dtlsCfg := &dtls.Config{
		PSK: func(hint []byte) ([]byte, error) {
			if cfg.LookupKey == nil {
				return nil, ErrPSKIdentityNotFound
			}
			return cfg.LookupKey(hint)
		},
		PSKIdentityHint:       cfg.IdentityHint,
		CipherSuites:          suites,
		ExtendedMasterSecret:  ems,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), timeout)
		},
	}

	ln, err := dtls.Listen("udp", uaddr, dtlsCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: dtls listen %q: %w", addr, err)
	}

	t := &DTLSTransport{
		listener: ln,
		logger:   logger,
		events:   make(chan Event, 256),
		conns:    make(map[string]net.Conn),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *DTLSTransport) acceptLoop() {
	defer close(t.events)
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Handshake failure: drop silently and keep accepting,
			// per §4.1's "no response" rule for failed handshakes.
			t.logger.Debug("dtls handshake failed, dropping peer", "error", err)
			continue
		}
		dc, ok := conn.(*dtls.Conn)
		if !ok {
			conn.Close()
			continue
		}
		state := dc.ConnectionState()
		identity := append([]byte(nil), state.IdentityHint...)
		t.mu.Lock()
		t.conns[string(identity)] = dc
		t.mu.Unlock()
		go t.readLoop(Peer{Identity: identity}, dc)
	}
}

func (t *DTLSTransport) readLoop(peer Peer, conn net.Conn) {
	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.mu.Lock()
			delete(t.conns, string(peer.Identity))
			t.mu.Unlock()
			conn.Close()
			t.events <- Event{Peer: peer, Closed: true}
			return
		}
		data := append([]byte(nil), buf[:n]...)
		t.events <- Event{Peer: peer, Data: data}
	}
}

func (t *DTLSTransport) Events() <-chan Event {
	return t.events
}

func (t *DTLSTransport) Send(peer Peer, data []byte) error {
	t.mu.RLock()
	conn, ok := t.conns[string(peer.Identity)]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", peer)
	}
	_, err := conn.Write(data)
	if err != nil {
		time.Sleep(5 * time.Millisecond)
		_, err = conn.Write(data)
	}
	if err != nil {
		t.mu.Lock()
		delete(t.conns, string(peer.Identity))
		t.mu.Unlock()
		conn.Close()
		t.events <- Event{Peer: peer, Closed: true}
	}
	return err
}

func (t *DTLSTransport) Close() error {
	t.mu.Lock()
	for _, c := range t.conns {
		c.Close()
	}
	t.mu.Unlock()
	return t.listener.Close()
}
