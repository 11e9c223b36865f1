// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"context"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/stretchr/testify/require"

	"github.com/coapframework/coapd/internal/wire"
)

type fakeSender struct {
	notifications chan sentNotification
}

type sentNotification struct {
	token       []byte
	confirmable bool
	options     []wire.Option
	payload     []byte
}

func newFakeSender() *fakeSender {
	return &fakeSender{notifications: make(chan sentNotification, 8)}
}

func (f *fakeSender) SendNotification(token []byte, confirmable bool, options []wire.Option, payload []byte) error {
	f.notifications <- sentNotification{token: token, confirmable: confirmable, options: options, payload: payload}
	return nil
}

type fakeLookup struct {
	sender *fakeSender
}

func (l fakeLookup) SenderFor(identity []byte) (Sender, bool) {
	return l.sender, true
}

func observeSeq(t *testing.T, n sentNotification) uint32 {
	t.Helper()
	for _, o := range n.options {
		if o.ID == wire.OptionObserve {
			return wire.DecodeUint(o.Value)
		}
	}
	t.Fatal("no Observe option present")
	return 0
}

func newTestEngine(t *testing.T, notify NotifyFunc) (*Engine, *fakeSender, *LocalBus) {
	t.Helper()
	store := NewMemoryStore()
	bus := NewLocalBus(8)
	e := NewEngine(Options{Store: store, Bus: bus, Confirmable: true})
	sender := newFakeSender()
	e.Bind(fakeLookup{sender: sender}, notify)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Start(ctx))
	return e, sender, bus
}

func TestRegisterThenNotifyDeliversSeqOne(t *testing.T) {
	notify := func(ctx context.Context, path string) (codes.Code, []wire.Option, []byte, error) {
		return wire.Content, nil, []byte("42"), nil
	}
	e, sender, _ := newTestEngine(t, notify)

	sub, err := e.Register("/sensor", []byte("peer-a"), []byte{0xCA, 0xFE})
	require.NoError(t, err)
	require.Equal(t, uint32(0), sub.Seq)

	require.NoError(t, e.Trigger(context.Background(), "/sensor"))

	select {
	case n := <-sender.notifications:
		require.Equal(t, []byte{0xCA, 0xFE}, n.token)
		require.Equal(t, uint32(1), observeSeq(t, n))
		require.Equal(t, []byte("42"), n.payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestConsecutiveNotificationsIncreaseSeq(t *testing.T) {
	notify := func(ctx context.Context, path string) (codes.Code, []wire.Option, []byte, error) {
		return wire.Content, nil, []byte("v"), nil
	}
	e, sender, _ := newTestEngine(t, notify)
	_, err := e.Register("/sensor", []byte("peer-a"), []byte{0x01})
	require.NoError(t, err)

	var seqs []uint32
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Trigger(context.Background(), "/sensor"))
		select {
		case n := <-sender.notifications:
			seqs = append(seqs, observeSeq(t, n))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
	require.Equal(t, []uint32{1, 2, 3}, seqs)
}

func TestDeregisterStopsNotifications(t *testing.T) {
	notify := func(ctx context.Context, path string) (codes.Code, []wire.Option, []byte, error) {
		return wire.Content, nil, []byte("v"), nil
	}
	e, sender, _ := newTestEngine(t, notify)
	_, err := e.Register("/sensor", []byte("peer-a"), []byte{0x01})
	require.NoError(t, err)
	require.NoError(t, e.Deregister("/sensor", []byte("peer-a")))

	require.NoError(t, e.Trigger(context.Background(), "/sensor"))

	select {
	case n := <-sender.notifications:
		t.Fatalf("unexpected notification after deregister: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEvictNotificationRemovesOnlyThatSubscription(t *testing.T) {
	notify := func(ctx context.Context, path string) (codes.Code, []wire.Option, []byte, error) {
		return wire.Content, nil, []byte("v"), nil
	}
	e, sender, _ := newTestEngine(t, notify)
	_, err := e.Register("/sensor", []byte("peer-a"), []byte{0x01})
	require.NoError(t, err)
	_, err = e.Register("/sensor", []byte("peer-b"), []byte{0x02})
	require.NoError(t, err)

	e.EvictNotification([]byte("peer-a"), []byte{0x01})

	require.NoError(t, e.Trigger(context.Background(), "/sensor"))

	select {
	case n := <-sender.notifications:
		require.Equal(t, []byte{0x02}, n.token)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for surviving subscriber's notification")
	}
	select {
	case n := <-sender.notifications:
		t.Fatalf("unexpected second notification: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEvictPeerRemovesAllPathsForIdentity(t *testing.T) {
	notify := func(ctx context.Context, path string) (codes.Code, []wire.Option, []byte, error) {
		return wire.Content, nil, []byte("v"), nil
	}
	e, sender, _ := newTestEngine(t, notify)
	_, err := e.Register("/sensor", []byte("peer-a"), []byte{0x01})
	require.NoError(t, err)
	_, err = e.Register("/other", []byte("peer-a"), []byte{0x02})
	require.NoError(t, err)

	e.EvictPeer([]byte("peer-a"))

	require.NoError(t, e.Trigger(context.Background(), "/sensor"))
	require.NoError(t, e.Trigger(context.Background(), "/other"))

	select {
	case n := <-sender.notifications:
		t.Fatalf("unexpected notification after EvictPeer: %+v", n)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestFreshnessWraparound(t *testing.T) {
	require.True(t, fresher(seqModulus-1, 0))
	require.False(t, fresher(0, seqModulus-1))
	require.True(t, fresher(5, 6))
	require.False(t, fresher(6, 5))
}
