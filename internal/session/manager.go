package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/leonardcser/sessiond/internal/store"
)

var (
	ErrNotFound        = errors.New("session: not found")
	ErrExpired         = errors.New("session: expired")
	ErrInvalidPayload  = errors.New("session: invalid payload")
	ErrVersionMismatch = errors.New("session: payload version mismatch")
)

// Manager creates and loads sessions against one store with one Config.
// It is safe for concurrent use; the Sessions it hands out are not.
type Manager struct {
	kv     store.KV
	cfg    *Config
	signer TokenSigner
	now    func() int64
}

func NewManager(kv store.KV, cfg *Config) (*Manager, error) {
	if kv == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfiguration)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{kv: kv, cfg: cfg, signer: cfg.tokenSigner(), now: IntTime}, nil
}

// New allocates a fresh ID, stores its initial payload, and returns the
// session. The record exists in the store before New returns.
func (m *Manager) New() (*Session, error) {
	return m.newSession(nil)
}

// NewWithPayload allocates a fresh ID seeded with a caller-built payload
// instead of the configured initial payload. A nil Data map and a zero
// Version are filled in; everything else is stored as given.
func (m *Manager) NewWithPayload(p *Payload) (*Session, error) {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	if p.Version == 0 {
		p.Version = PayloadVersion
	}
	return m.newSession(p)
}

func (m *Manager) newSession(initial *Payload) (*Session, error) {
	id, p, err := createUniqueID(m.kv, m.cfg, initial, m.now())
	if err != nil {
		return nil, err
	}
	return m.session(id, p, true, false), nil
}

// Lazy returns a fresh session without storing anything: the id is
// allocated by the first persist (or an explicit EnsureID), so units of
// work that never write never touch the store.
func (m *Manager) Lazy() *Session {
	return m.session("", m.cfg.initialPayload(nil, m.now()), true, false)
}

func (m *Manager) session(id string, p *Payload, isNew, refreshedAtLoad bool) *Session {
	s := &Session{
		id:              id,
		kv:              m.kv,
		cfg:             m.cfg,
		payload:         p,
		now:             m.now,
		isNew:           isNew,
		refreshedAtLoad: refreshedAtLoad,
	}
	if m.cfg.DetectChanges {
		s.fingerprint = s.dataFingerprint()
	}
	return s
}

// Load fetches an existing record. In read-heavy mode the fetch also pushes
// the store TTL forward in the same round trip, and the returned session
// skips its trailing refresh.
func (m *Manager) Load(id string) (*Session, error) {
	readHeavy := m.cfg.SetStoreTTLReadHeavy && m.cfg.SetStoreTTL && m.cfg.Timeout > 0
	var raw []byte
	var err error
	if readHeavy {
		raw, err = m.kv.GetEx(id, time.Duration(m.cfg.Timeout)*time.Second)
	} else {
		raw, err = m.kv.Get(id)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, err
	}
	p, err := m.cfg.serializer().Loads(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrVersionMismatch, p.Version, PayloadVersion)
	}
	if m.cfg.TrackExpiryInPayload && p.Expires > 0 && m.now() > p.Expires {
		return nil, ErrExpired
	}
	return m.session(id, p, false, readHeavy), nil
}

// LoadOrNew loads id when possible and allocates otherwise. Only this
// record being unusable (missing, expired, undecodable, wrong version)
// falls back to New; store failures surface. An empty id allocates
// directly.
func (m *Manager) LoadOrNew(id string) (*Session, error) {
	if id != "" {
		s, err := m.Load(id)
		if err == nil {
			return s, nil
		}
		if !recoverable(err) {
			return nil, err
		}
	}
	return m.New()
}

func recoverable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrVersionMismatch)
}

// SignID wraps an ID into the token form handed to untrusted callers.
func (m *Manager) SignID(id string) (string, error) {
	return m.signer.Sign(id)
}

// UnsignID recovers the ID from a token produced by SignID.
func (m *Manager) UnsignID(token string) (string, error) {
	return m.signer.Unsign(token)
}
