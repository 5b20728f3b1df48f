package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "records"

// BoltOptions configures OpenBolt. The zero value is usable.
type BoltOptions struct {
	// Bucket overrides the bucket name records are kept in.
	Bucket string
}

// Bolt persists records in a single bbolt database file.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

func OpenBolt(path string, opts BoltOptions) (*Bolt, error) {
	bucket := opts.Bucket
	if bucket == "" {
		bucket = defaultBoltBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db, bucket: []byte(bucket)}, nil
}

func (b *Bolt) Get(key string) ([]byte, int64, error) {
	var value []byte
	var expiresAt int64
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.bucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		value, expiresAt = decodeEnvelope(raw)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return value, expiresAt, nil
}

func (b *Bolt) Put(key string, value []byte, expiresAt int64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), encodeEnvelope(value, expiresAt))
	})
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

func (b *Bolt) Keys(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *Bolt) PurgeExpired(now int64) ([]string, error) {
	var purged []string
	err := b.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			_, expiresAt := decodeEnvelope(v)
			if expiresAt > 0 && now > expiresAt {
				if err := c.Delete(); err != nil {
					return err
				}
				purged = append(purged, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
