// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coapframework/coapd/internal/transport"
)

func TestUDPTransportRoundTrip(t *testing.T) {
	srv, err := transport.ListenUDP("127.0.0.1:0", slog.Default())
	require.NoError(t, err)
	defer srv.Close()

	addr := srv.LocalAddr().(*net.UDPAddr)

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.WriteToUDP([]byte("ping"), addr)
	require.NoError(t, err)

	select {
	case ev := <-srv.Events():
		require.Equal(t, "ping", string(ev.Data))
		require.NotNil(t, ev.Peer.Identity)
		require.NoError(t, srv.Send(ev.Peer, []byte("pong")))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound event")
	}

	buf := make([]byte, 64)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf[:n]))
}

func TestUDPTransportUnknownPeerSendFails(t *testing.T) {
	srv, err := transport.ListenUDP("127.0.0.1:0", slog.Default())
	require.NoError(t, err)
	defer srv.Close()

	err = srv.Send(transport.Peer{Identity: []byte("ghost")}, []byte("x"))
	require.Error(t, err)
}
