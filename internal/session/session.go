// Package session manages ephemeral, uniquely identified records in a
// shared TTL key-value store. It owns three concerns: collision-checked ID
// allocation through optimistic store transactions, a compact versioned
// payload format, and a write policy that coalesces a unit of work's reads
// and writes into at most one store operation.
package session

import (
	"bytes"
	"errors"
	"sort"
	"time"

	"github.com/leonardcser/sessiond/internal/store"
)

var ErrInvalidated = errors.New("session: invalidated")

// Session is the working copy of one stored record. Reads and writes mutate
// the copy and raise pending flags; nothing reaches the store until Flush,
// DoPersist or DoRefresh. A Session belongs to one unit of work and is not
// safe for concurrent use.
type Session struct {
	id      string
	kv      store.KV
	cfg     *Config
	payload *Payload
	now     func() int64

	isNew           bool
	pendingRefresh  bool
	pendingPersist  bool
	refreshedAtLoad bool
	invalidated     bool

	// fingerprint is the working data as the store last saw it, kept only
	// when the config asks for change detection.
	fingerprint []byte
}

// ID returns the record identifier. Sessions from Lazy report an empty id
// until their first persist allocates one.
func (s *Session) ID() string { return s.id }

// New reports whether this session was created by this unit of work rather
// than loaded.
func (s *Session) New() bool { return s.isNew }

func (s *Session) Created() int64 { return s.payload.Created }

func (s *Session) Timeout() int64 { return s.payload.Timeout }

// Expires returns the absolute expiry recorded in the payload, 0 when
// expiry is not tracked there.
func (s *Session) Expires() int64 { return s.payload.Expires }

// PendingRefresh reports whether the session was read since the last write
// to the store.
func (s *Session) PendingRefresh() bool { return s.pendingRefresh }

// PendingPersist reports whether the session holds changes the store has
// not seen.
func (s *Session) PendingPersist() bool { return s.pendingPersist }

func (s *Session) Get(key string) (any, bool) {
	s.pendingRefresh = true
	v, ok := s.payload.Data[key]
	return v, ok
}

func (s *Session) Has(key string) bool {
	s.pendingRefresh = true
	_, ok := s.payload.Data[key]
	return ok
}

func (s *Session) Len() int {
	s.pendingRefresh = true
	return len(s.payload.Data)
}

func (s *Session) Keys() []string {
	s.pendingRefresh = true
	keys := make([]string, 0, len(s.payload.Data))
	for k := range s.payload.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the data values in key order.
func (s *Session) Values() []any {
	values := make([]any, 0, len(s.payload.Data))
	for _, k := range s.Keys() {
		values = append(values, s.payload.Data[k])
	}
	return values
}

// Items returns a shallow copy of the data. Mutating the copy does not
// touch the session; use Set.
func (s *Session) Items() map[string]any {
	s.pendingRefresh = true
	items := make(map[string]any, len(s.payload.Data))
	for k, v := range s.payload.Data {
		items[k] = v
	}
	return items
}

func (s *Session) Set(key string, value any) {
	s.payload.Data[key] = value
	s.pendingPersist = true
}

func (s *Session) Update(values map[string]any) {
	for k, v := range values {
		s.payload.Data[k] = v
	}
	s.pendingPersist = true
}

// SetDefault stores value under key unless the key is already present, and
// returns what the key holds afterwards.
func (s *Session) SetDefault(key string, value any) any {
	s.pendingPersist = true
	if existing, ok := s.payload.Data[key]; ok {
		return existing
	}
	s.payload.Data[key] = value
	return value
}

func (s *Session) Delete(key string) bool {
	_, ok := s.payload.Data[key]
	if ok {
		delete(s.payload.Data, key)
		s.pendingPersist = true
	}
	return ok
}

func (s *Session) Pop(key string) (any, bool) {
	v, ok := s.payload.Data[key]
	if ok {
		delete(s.payload.Data, key)
		s.pendingPersist = true
	}
	return v, ok
}

func (s *Session) Clear() {
	s.payload.Data = map[string]any{}
	s.pendingPersist = true
}

// AdjustTimeout changes the record lifetime from this write on. Zero stops
// TTL handling for the record.
func (s *Session) AdjustTimeout(seconds int64) {
	s.payload.Timeout = seconds
	s.pendingPersist = true
}

// EnsureID allocates and stores the record if this session does not have
// one yet, and returns the id. Sessions from New and Load already have
// theirs; for a session from Lazy this is the write that brings the record
// into existence, carrying whatever data accumulated so far.
func (s *Session) EnsureID() (string, error) {
	if s.invalidated {
		return "", ErrInvalidated
	}
	if s.id != "" {
		return s.id, nil
	}
	next := EncodePayload(s.payload, s.cfg.TimeoutTrigger, s.cfg.TrackExpiryInPayload, s.now())
	id, p, err := createUniqueID(s.kv, s.cfg, next, s.now())
	if err != nil {
		return "", err
	}
	s.id = id
	s.payload = p
	s.pendingPersist = false
	s.pendingRefresh = false
	if s.cfg.DetectChanges {
		s.fingerprint = s.dataFingerprint()
	}
	return id, nil
}

// Flush settles the pending flags with at most one store operation: a
// persist if anything changed, else a TTL refresh if anything was read,
// else nothing. Read-heavy sessions skip the refresh because their Load
// already bundled one. A lazy session that accumulated no changes stays
// entirely out of the store.
func (s *Session) Flush() error {
	if s.invalidated {
		return nil
	}
	persist := s.pendingPersist || (s.cfg.DetectChanges && s.dataChanged())
	if s.id == "" {
		if persist {
			_, err := s.EnsureID()
			return err
		}
		s.pendingRefresh = false
		return nil
	}
	if persist {
		if err := s.persist(); err != nil {
			return err
		}
		s.pendingPersist = false
		s.pendingRefresh = false
		return nil
	}
	if s.pendingRefresh {
		if !s.refreshedAtLoad {
			if err := s.refresh(); err != nil {
				return err
			}
		}
		s.pendingRefresh = false
	}
	return nil
}

// DoPersist writes the record now, regardless of the pending flags.
func (s *Session) DoPersist() error {
	if s.invalidated {
		return ErrInvalidated
	}
	if s.id == "" {
		_, err := s.EnsureID()
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.pendingPersist = false
	s.pendingRefresh = false
	return nil
}

// DoRefresh pushes the store TTL forward now, regardless of the pending
// flags. A lazy session without a record yet has nothing to refresh.
func (s *Session) DoRefresh() error {
	if s.invalidated {
		return ErrInvalidated
	}
	if s.id == "" {
		s.pendingRefresh = false
		return nil
	}
	if err := s.refresh(); err != nil {
		return err
	}
	s.pendingRefresh = false
	return nil
}

// Invalidate deletes the stored record and retires the session: pending
// flags drop, later Flush calls are no-ops, and immediate writes fail with
// ErrInvalidated. Allocate a new session to continue.
func (s *Session) Invalidate() error {
	if s.id != "" {
		if err := s.kv.Delete(s.id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	s.invalidated = true
	s.pendingPersist = false
	s.pendingRefresh = false
	s.payload.Data = map[string]any{}
	return nil
}

func (s *Session) persist() error {
	next := EncodePayload(s.payload, s.cfg.TimeoutTrigger, s.cfg.TrackExpiryInPayload, s.now())
	raw, err := s.cfg.serializer().Dumps(next)
	if err != nil {
		return err
	}
	if next.Timeout > 0 && s.cfg.SetStoreTTL {
		err = s.kv.SetWithTTL(s.id, raw, time.Duration(next.Timeout)*time.Second)
	} else {
		err = s.kv.Set(s.id, raw)
	}
	if err != nil {
		return err
	}
	s.payload = next
	if s.cfg.DetectChanges {
		s.fingerprint = s.dataFingerprint()
	}
	return nil
}

// dataFingerprint serializes just the working data. Serialization failure
// yields nil; the record is unusable then anyway, since persisting it would
// fail the same way.
func (s *Session) dataFingerprint() []byte {
	raw, err := s.cfg.serializer().Dumps(&Payload{Data: s.payload.Data})
	if err != nil {
		return nil
	}
	return raw
}

// dataChanged reports whether the working data drifted from what the store
// last saw, catching mutations made through references handed out by Get,
// which raise no flag of their own.
func (s *Session) dataChanged() bool {
	return !bytes.Equal(s.dataFingerprint(), s.fingerprint)
}

// refresh touches the store TTL. Records without one, and stores told not
// to keep one, have nothing to refresh. A record that vanished mid-unit is
// not an error; it expired and the next load will say so.
func (s *Session) refresh() error {
	if s.payload.Timeout <= 0 || !s.cfg.SetStoreTTL {
		return nil
	}
	err := s.kv.TouchTTL(s.id, time.Duration(s.payload.Timeout)*time.Second)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrExpired) {
		return nil
	}
	return err
}
