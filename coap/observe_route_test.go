// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coapframework/coapd/coaptest"
	"github.com/coapframework/coapd/internal/observe"
	"github.com/coapframework/coapd/internal/session"
	"github.com/coapframework/coapd/internal/wire"
)

type fakeSender struct {
	last chan []byte
}

func (f *fakeSender) SendNotification(token []byte, confirmable bool, options []wire.Option, payload []byte) error {
	f.last <- append([]byte(nil), token...)
	return nil
}

type fakeLookup struct{ s *fakeSender }

func (l fakeLookup) SenderFor(identity []byte) (observe.Sender, bool) { return l.s, true }

func buildObservableRouter(t *testing.T) (*Router, *fakeSender) {
	t.Helper()
	engine := observe.NewEngine(observe.Options{
		Store:       observe.NewMemoryStore(),
		Bus:         observe.NewLocalBus(8),
		Confirmable: true,
	})
	r := NewRouter(nil, engine)
	require.NoError(t, r.AddObserve("/sensor",
		Handler0(func() (Response, error) { return RawBody(Content, []byte("20")), nil }),
		Handler0(func() (Response, error) { return RawBody(Content, []byte("21")), nil }),
	))
	r.Build()

	sender := &fakeSender{last: make(chan []byte, 4)}
	engine.Bind(fakeLookup{s: sender}, r.notifyFuncFor())
	require.NoError(t, engine.Start(context.Background()))
	return r, sender
}

func observeGet(rec *coaptest.Recorder, flag uint32, token []byte) (session.Outgoing, bool) {
	pkt := wire.Packet{
		Type:  wire.Confirmable,
		Code:  wire.GET,
		Token: token,
		Options: []wire.Option{
			{ID: wire.OptionURIPath, Value: []byte("sensor")},
			{ID: wire.OptionObserve, Value: wire.EncodeUint(flag)},
		},
	}
	return rec.Do(context.Background(), []byte("peer-a"), pkt, time.Second)
}

func TestObserveRegistrationEchoesSeqZero(t *testing.T) {
	r, _ := buildObservableRouter(t)
	rec := coaptest.NewRecorder(r)

	out, ok := observeGet(rec, 0, []byte{0xCA, 0xFE})
	require.True(t, ok)
	require.Equal(t, Content, out.Code)

	found := false
	for _, o := range out.Options {
		if o.ID == wire.OptionObserve {
			found = true
			require.EqualValues(t, 0, wire.DecodeUint(o.Value))
		}
	}
	require.True(t, found, "expected an Observe option on registration response")
}

func TestObserveTriggerDeliversToSubscriberToken(t *testing.T) {
	r, sender := buildObservableRouter(t)
	rec := coaptest.NewRecorder(r)

	_, ok := observeGet(rec, 0, []byte{0xCA, 0xFE})
	require.True(t, ok)

	r.triggerIfObserved(context.Background(), "/sensor")

	select {
	case token := <-sender.last:
		require.Equal(t, []byte{0xCA, 0xFE}, token)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

type failingStore struct{ observe.Store }

func (failingStore) Put(path string, identity, token []byte) (*observe.Subscription, error) {
	return nil, observe.ErrUnavailable
}

func TestObserveRegistrationStoreFailureYieldsServiceUnavailable(t *testing.T) {
	engine := observe.NewEngine(observe.Options{
		Store:       failingStore{},
		Bus:         observe.NewLocalBus(8),
		Confirmable: true,
	})
	r := NewRouter(nil, engine)
	require.NoError(t, r.AddObserve("/sensor",
		Handler0(func() (Response, error) { return RawBody(Content, []byte("20")), nil }),
		Handler0(func() (Response, error) { return RawBody(Content, []byte("21")), nil }),
	))
	r.Build()
	rec := coaptest.NewRecorder(r)

	out, ok := observeGet(rec, 0, []byte{0xCA, 0xFE})
	require.True(t, ok)
	require.Equal(t, ServiceUnavailable, out.Code)
	require.Empty(t, out.Payload)
	for _, o := range out.Options {
		require.NotEqual(t, wire.OptionObserve, o.ID, "store-failure response must carry no Observe option")
	}
}

func TestObserveDeregistrationStopsNotifications(t *testing.T) {
	r, sender := buildObservableRouter(t)
	rec := coaptest.NewRecorder(r)

	_, ok := observeGet(rec, 0, []byte{0x01})
	require.True(t, ok)

	out, ok := observeGet(rec, 1, []byte{0x01})
	require.True(t, ok)
	for _, o := range out.Options {
		require.NotEqual(t, wire.OptionObserve, o.ID, "deregistration response must carry no Observe option")
	}

	r.triggerIfObserved(context.Background(), "/sensor")

	select {
	case token := <-sender.last:
		t.Fatalf("unexpected notification after deregistration: %v", token)
	case <-time.After(150 * time.Millisecond):
	}
}
