// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package observe

import (
	"bytes"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltBucket holds every subscription record, keyed path\0identity,
// per §4.5/§6. Grounded on named-data-YaNFD's object.BoltStore, which
// uses the same single-bucket-plus-cursor-prefix-scan shape.
var boltBucket = []byte("subscriptions")

// boltRecordVersion is the leading byte of every persisted value, so
// the on-disk encoding can evolve without orphaning existing
// databases, per §6's "must be versioned" requirement.
const boltRecordVersion = 1

type boltRecord struct {
	Token     []byte `json:"token"`
	Seq       uint32 `json:"seq"`
	CreatedAt int64  `json:"created_at"`
}

// BoltStore is the persistent Store backend of §4.5.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(path string, identity []byte, token []byte) (*Subscription, error) {
	now := time.Now()
	rec := boltRecord{Token: token, Seq: 0, CreatedAt: now.UnixNano()}
	val, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	k := []byte(key(path, identity))
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(k, val)
	})
	if err != nil {
		return nil, ErrUnavailable
	}
	return &Subscription{
		ResourcePath: path,
		PeerIdentity: append([]byte(nil), identity...),
		Token:        append([]byte(nil), token...),
		Seq:          0,
		CreatedAt:    now,
	}, nil
}

func (s *BoltStore) Delete(path string, identity []byte) error {
	k := []byte(key(path, identity))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(k)
	})
	if err != nil {
		return ErrUnavailable
	}
	return nil
}

func (s *BoltStore) DeleteAll(identity []byte) error {
	suffix := append([]byte{0}, identity...)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		c := b.Cursor()
		var stale [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if bytes.HasSuffix(k, suffix) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ErrUnavailable
	}
	return nil
}

func (s *BoltStore) Iter(path string) ([]Subscription, error) {
	prefix := []byte(path + "\x00")
	var out []Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec, err := decodeRecord(v)
			if err != nil {
				continue
			}
			identity := append([]byte(nil), k[len(prefix):]...)
			out = append(out, Subscription{
				ResourcePath: path,
				PeerIdentity: identity,
				Token:        rec.Token,
				Seq:          rec.Seq,
				CreatedAt:    time.Unix(0, rec.CreatedAt),
			})
		}
		return nil
	})
	if err != nil {
		return nil, ErrUnavailable
	}
	return out, nil
}

func (s *BoltStore) BumpSeq(path string, identity []byte) (uint32, error) {
	k := []byte(key(path, identity))
	var newSeq uint32
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		v := b.Get(k)
		if v == nil {
			return ErrUnavailable
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		rec.Seq = nextSeq(rec.Seq)
		newSeq = rec.Seq
		val, err := encodeRecord(*rec)
		if err != nil {
			return err
		}
		return b.Put(k, val)
	})
	if err != nil {
		return 0, ErrUnavailable
	}
	return newSeq, nil
}

func encodeRecord(rec boltRecord) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1, 1+len(body))
	buf[0] = boltRecordVersion
	buf = append(buf, body...)
	return buf, nil
}

func decodeRecord(data []byte) (*boltRecord, error) {
	if len(data) < 1 {
		return nil, ErrUnavailable
	}
	// Only version 1 exists today; a future version would branch here
	// instead of reinterpreting the same JSON shape.
	var rec boltRecord
	if err := json.Unmarshal(data[1:], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
