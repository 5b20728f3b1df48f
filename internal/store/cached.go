package store

import (
	lru "github.com/hashicorp/golang-lru"
)

type cachedEntry struct {
	value     []byte
	expiresAt int64
}

// Cached wraps a Backend with an LRU of decoded records, sparing disk
// backends a read per Get on hot keys. Writes go through to the inner
// backend before the cache is updated, so the cache never holds state the
// backend has not accepted.
type Cached struct {
	inner Backend
	lru   *lru.Cache
}

func NewCached(inner Backend, size int) (*Cached, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, lru: c}, nil
}

func (c *Cached) Get(key string) ([]byte, int64, error) {
	if v, ok := c.lru.Get(key); ok {
		ent := v.(cachedEntry)
		return append([]byte(nil), ent.value...), ent.expiresAt, nil
	}
	value, expiresAt, err := c.inner.Get(key)
	if err != nil {
		return nil, 0, err
	}
	c.lru.Add(key, cachedEntry{value: append([]byte(nil), value...), expiresAt: expiresAt})
	return value, expiresAt, nil
}

func (c *Cached) Put(key string, value []byte, expiresAt int64) error {
	if err := c.inner.Put(key, value, expiresAt); err != nil {
		return err
	}
	c.lru.Add(key, cachedEntry{value: append([]byte(nil), value...), expiresAt: expiresAt})
	return nil
}

func (c *Cached) Delete(key string) error {
	if err := c.inner.Delete(key); err != nil {
		return err
	}
	c.lru.Remove(key)
	return nil
}

func (c *Cached) Keys(prefix string) ([]string, error) {
	return c.inner.Keys(prefix)
}

func (c *Cached) PurgeExpired(now int64) ([]string, error) {
	purged, err := c.inner.PurgeExpired(now)
	for _, k := range purged {
		c.lru.Remove(k)
	}
	return purged, err
}

func (c *Cached) Close() error {
	return c.inner.Close()
}
