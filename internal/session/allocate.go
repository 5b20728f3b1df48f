package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/leonardcser/sessiond/internal/store"
)

// idEntropyBytes is the randomness per generated ID: 48 bytes encode to 64
// URL-safe characters with no padding.
const idEntropyBytes = 48

const (
	defaultMaxIDAttempts = 8
	allocateBackoffBase  = 5 * time.Millisecond
)

// ErrAllocationExhausted means every allocation attempt lost its race or
// collided. With 384-bit IDs that points at a broken generator or a
// contended custom one, not at bad luck.
var ErrAllocationExhausted = errors.New("session: allocation attempts exhausted")

// IDGenerator produces candidate record IDs. Generators do not need to
// guarantee uniqueness; allocation checks the store. They must be safe for
// concurrent use.
type IDGenerator func() (string, error)

// GenerateID is the default IDGenerator: 48 random bytes, base64url without
// padding.
func GenerateID() (string, error) {
	b := make([]byte, idEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// PrefixedIDGenerator namespaces GenerateID under a fixed prefix.
func PrefixedIDGenerator(prefix string) IDGenerator {
	return func() (string, error) {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		return prefix + id, nil
	}
}

// createUniqueID claims a fresh ID: generate a candidate, then insert the
// initial payload only if the key is still absent. A lost race or an
// occupied key burns one attempt; store failures abort immediately. Returns
// the claimed ID and the payload now stored under it.
func createUniqueID(kv store.KV, cfg *Config, initial *Payload, now int64) (string, *Payload, error) {
	gen := cfg.idGenerator()
	attempts := cfg.maxIDAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(allocateBackoff(attempt))
		}
		id, err := gen()
		if err != nil {
			return "", nil, err
		}
		p := cfg.initialPayload(initial, now)
		raw, err := cfg.serializer().Dumps(p)
		if err != nil {
			return "", nil, err
		}
		ok, err := insertIfAbsent(kv, id, raw, cfg)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return id, p, nil
		}
	}
	return "", nil, ErrAllocationExhausted
}

// initialPayload resolves what a fresh record starts out as: an explicit
// payload wins over the configured factory, which wins over an empty one.
func (c *Config) initialPayload(explicit *Payload, now int64) *Payload {
	if explicit != nil {
		return explicit
	}
	if c.NewPayloadFunc != nil {
		return c.NewPayloadFunc()
	}
	return EmptyPayload(c.Timeout, c.TrackExpiryInPayload, now)
}

// insertIfAbsent is one optimistic attempt: watch the key, bail if a record
// is already there, otherwise commit the payload. A commit conflict means
// another writer claimed the key mid-flight and counts as occupied.
func insertIfAbsent(kv store.KV, id string, raw []byte, cfg *Config) (bool, error) {
	tx, err := kv.Watch(id)
	if err != nil {
		return false, err
	}
	if tx.Exists() {
		return false, nil
	}
	if cfg.Timeout > 0 && cfg.SetStoreTTL {
		tx.SetWithTTL(raw, time.Duration(cfg.Timeout)*time.Second)
	} else {
		tx.Set(raw)
	}
	err = tx.Commit()
	if errors.Is(err, store.ErrTxConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// allocateBackoff grows linearly with a random jitter so simultaneous
// losers do not retry in lockstep.
func allocateBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * allocateBackoffBase
	return base + time.Duration(mrand.Int63n(int64(allocateBackoffBase)))
}
