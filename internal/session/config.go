package session

import (
	"errors"
	"fmt"
)

// DefaultTimeout is the record lifetime applied by DefaultConfig, in
// seconds.
const DefaultTimeout = 1200

var ErrConfiguration = errors.New("session: invalid configuration")

// TokenSigner wraps record IDs into tamper-evident tokens for handing to
// untrusted callers, and recovers the ID on the way back in.
type TokenSigner interface {
	Sign(id string) (string, error)
	Unsign(token string) (string, error)
}

// Config carries every knob a Manager honors. Exactly one of Secret and
// Signer must be set: Secret selects the built-in signer (HS256 JWTs),
// Signer supplies a custom one.
type Config struct {
	// Timeout is the record lifetime in seconds. Zero disables TTL
	// handling entirely: no store TTL, no t or x in payloads.
	Timeout int64

	// TimeoutTrigger throttles expiry recomputes: a write refreshes the
	// payload expiry only within the last TimeoutTrigger seconds before
	// it. Zero refreshes on every write.
	TimeoutTrigger int64

	// SetStoreTTL mirrors the record lifetime into a store-side TTL so
	// the store drops dead records on its own.
	SetStoreTTL bool

	// SetStoreTTLReadHeavy makes loads refresh the store TTL in the same
	// round trip as the read, and lets a read-only unit of work skip its
	// trailing refresh write.
	SetStoreTTLReadHeavy bool

	// TrackExpiryInPayload records the absolute expiry inside the payload
	// (the x field) so expiry outlives stores that forget TTLs.
	TrackExpiryInPayload bool

	// DetectChanges makes Flush compare the working data against what the
	// store last saw, so mutations made through references obtained from
	// Get still persist. Costs one serialization per flush.
	DetectChanges bool

	// Serializer overrides the payload codec. Nil means JSON.
	Serializer Serializer

	// IDGenerator overrides ID generation. Mutually exclusive with
	// KeyPrefix; wrap your generator yourself if you want both.
	IDGenerator IDGenerator

	// KeyPrefix namespaces generated IDs, e.g. "session:".
	KeyPrefix string

	// MaxIDAttempts caps the allocation loop. Zero means the default of 8.
	MaxIDAttempts int

	// NewPayloadFunc overrides the initial payload for fresh records.
	NewPayloadFunc func() *Payload

	Secret string
	Signer TokenSigner
}

// DefaultConfig returns the customary starting point: 20 minute lifetime,
// store-side TTL on, expiry tracked in the payload, change detection on.
// Secret or Signer is still the caller's to fill in.
func DefaultConfig() *Config {
	return &Config{
		Timeout:              DefaultTimeout,
		SetStoreTTL:          true,
		TrackExpiryInPayload: true,
		DetectChanges:        true,
	}
}

// Validate checks the configuration and normalizes dependent fields. A
// TimeoutTrigger is meaningless unless the payload tracks expiry, so it
// switches TrackExpiryInPayload on.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrConfiguration)
	}
	if c.TimeoutTrigger < 0 {
		return fmt.Errorf("%w: timeout trigger must not be negative", ErrConfiguration)
	}
	if c.MaxIDAttempts < 0 {
		return fmt.Errorf("%w: max id attempts must not be negative", ErrConfiguration)
	}
	if c.KeyPrefix != "" && c.IDGenerator != nil {
		return fmt.Errorf("%w: cannot combine a custom id generator with a key prefix", ErrConfiguration)
	}
	if (c.Secret == "") == (c.Signer == nil) {
		return fmt.Errorf("%w: exactly one of secret and signer must be set", ErrConfiguration)
	}
	if c.TimeoutTrigger > 0 && !c.TrackExpiryInPayload {
		c.TrackExpiryInPayload = true
	}
	return nil
}

func (c *Config) serializer() Serializer {
	if c.Serializer != nil {
		return c.Serializer
	}
	return JSONSerializer{}
}

func (c *Config) idGenerator() IDGenerator {
	if c.IDGenerator != nil {
		return c.IDGenerator
	}
	if c.KeyPrefix != "" {
		return PrefixedIDGenerator(c.KeyPrefix)
	}
	return GenerateID
}

func (c *Config) maxIDAttempts() int {
	if c.MaxIDAttempts > 0 {
		return c.MaxIDAttempts
	}
	return defaultMaxIDAttempts
}

func (c *Config) tokenSigner() TokenSigner {
	if c.Signer != nil {
		return c.Signer
	}
	return newJWTSigner(c.Secret)
}
