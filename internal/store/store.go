// Package store implements a TTL key-value store for session records: a
// pluggable persistence backend, a line-protocol server with single-key
// optimistic transactions, and a dial-per-operation client.
package store

import (
	"encoding/binary"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("store: not found")
	ErrExpired    = errors.New("store: expired")
	ErrTxConflict = errors.New("store: tx conflict")
)

// NoTTL is returned by TTL for keys that exist but carry no expiry.
const NoTTL = time.Duration(-1)

// KV is the store capability consumed by record management: plain reads and
// writes, TTL maintenance, and watch-based optimistic transactions for
// creation. It is implemented by Client (over a socket) and Direct
// (in-process).
type KV interface {
	Get(key string) ([]byte, error)
	// GetEx atomically reads a key and pushes its TTL forward, one round trip.
	GetEx(key string, ttl time.Duration) ([]byte, error)
	Set(key string, value []byte) error
	SetWithTTL(key string, value []byte, ttl time.Duration) error
	TouchTTL(key string, ttl time.Duration) error
	Delete(key string) error
	// TTL reports the remaining time to live, or NoTTL for keys without one.
	TTL(key string) (time.Duration, error)
	Keys(prefix string) ([]string, error)
	// Watch opens a single-key optimistic transaction: the snapshot records
	// the key's state and version; Commit applies the buffered mutations only
	// if no other writer touched the key since, else ErrTxConflict.
	Watch(key string) (Txn, error)
}

// Txn is the transaction handle returned by Watch. Mutations are buffered
// client-side; nothing reaches the store until Commit.
type Txn interface {
	Exists() bool
	Value() []byte
	Set(value []byte)
	SetWithTTL(value []byte, ttl time.Duration)
	TouchTTL(ttl time.Duration)
	Delete()
	Commit() error
}

// Backend is the persistence contract. Values are stored alongside an
// absolute expiry in epoch seconds; zero means the key never expires.
// Expiry is recorded, not interpreted: deciding whether a key is live is the
// server's job, purging dead keys is PurgeExpired's.
type Backend interface {
	Get(key string) (value []byte, expiresAt int64, err error)
	Put(key string, value []byte, expiresAt int64) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	// PurgeExpired removes every key whose expiry is at or before now and
	// returns the removed keys.
	PurgeExpired(now int64) ([]string, error)
	Close() error
}

// Stored layout: 8 bytes big endian expiresAt || raw value.
func encodeEnvelope(value []byte, expiresAt int64) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)
	return buf
}

func decodeEnvelope(buf []byte) (value []byte, expiresAt int64) {
	if len(buf) < 8 {
		return nil, 0
	}
	expiresAt = int64(binary.BigEndian.Uint64(buf[:8]))
	value = append([]byte(nil), buf[8:]...)
	return value, expiresAt
}
