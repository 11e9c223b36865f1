// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "observers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bolt,
	}
}

func TestStorePutIterBumpSeq(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			sub, err := store.Put("/sensor", []byte("peer-a"), []byte{0xCA, 0xFE})
			require.NoError(t, err)
			require.Equal(t, uint32(0), sub.Seq)

			subs, err := store.Iter("/sensor")
			require.NoError(t, err)
			require.Len(t, subs, 1)
			require.Equal(t, []byte{0xCA, 0xFE}, subs[0].Token)

			seq, err := store.BumpSeq("/sensor", []byte("peer-a"))
			require.NoError(t, err)
			require.Equal(t, uint32(1), seq)

			seq, err = store.BumpSeq("/sensor", []byte("peer-a"))
			require.NoError(t, err)
			require.Equal(t, uint32(2), seq)
		})
	}
}

func TestStoreReRegistrationReplacesToken(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put("/sensor", []byte("peer-a"), []byte{0x01})
			require.NoError(t, err)
			_, err = store.BumpSeq("/sensor", []byte("peer-a"))
			require.NoError(t, err)

			sub, err := store.Put("/sensor", []byte("peer-a"), []byte{0x02})
			require.NoError(t, err)
			require.Equal(t, []byte{0x02}, sub.Token)
			require.Equal(t, uint32(0), sub.Seq)
		})
	}
}

func TestStoreDeleteAllRemovesOnlyThatIdentity(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put("/a", []byte("peer-1"), []byte{0x01})
			require.NoError(t, err)
			_, err = store.Put("/b", []byte("peer-1"), []byte{0x02})
			require.NoError(t, err)
			_, err = store.Put("/a", []byte("peer-2"), []byte{0x03})
			require.NoError(t, err)

			require.NoError(t, store.DeleteAll([]byte("peer-1")))

			subsA, err := store.Iter("/a")
			require.NoError(t, err)
			require.Len(t, subsA, 1)
			require.Equal(t, []byte("peer-2"), subsA[0].PeerIdentity)

			subsB, err := store.Iter("/b")
			require.NoError(t, err)
			require.Empty(t, subsB)
		})
	}
}

func TestStoreBumpSeqUnknownSubscription(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.BumpSeq("/nope", []byte("peer-a"))
			require.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestStoreDeletePrefixIsolation(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put("/sensor", []byte("peer-a"), []byte{0x01})
			require.NoError(t, err)
			_, err = store.Put("/sensors", []byte("peer-a"), []byte{0x02})
			require.NoError(t, err)

			require.NoError(t, store.Delete("/sensor", []byte("peer-a")))

			subs, err := store.Iter("/sensors")
			require.NoError(t, err)
			require.Len(t, subs, 1)
		})
	}
}
