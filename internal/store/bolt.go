package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltStore keeps one bucket per collection, keyed by document id, with
// JSON values. bbolt serializes write transactions, which makes Update atomic.
type boltStore struct {
	db *bolt.DB
}

func NewBolt(path string) (Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Get(_ context.Context, ref Ref) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ref.Collection))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(ref.ID))
		if data == nil {
			return ErrNotFound
		}
		var err error
		doc, err = decode(data)
		return err
	})
	return doc, err
}

func (s *boltStore) Set(_ context.Context, ref Ref, doc Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ref.Collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(ref.ID), data)
	})
}

func (s *boltStore) Update(ctx context.Context, ref Ref, fn UpdateFunc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists([]byte(ref.Collection))
		if err != nil {
			return err
		}

		var cur Document
		data := b.Get([]byte(ref.ID))
		exists := data != nil
		if exists {
			if cur, err = decode(data); err != nil {
				return err
			}
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}
		if data, err = encode(next); err != nil {
			return err
		}
		return b.Put([]byte(ref.ID), data)
	})
}

func (s *boltStore) Close() error { return s.db.Close() }
