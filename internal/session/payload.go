package session

import (
	"time"
)

// PayloadVersion tags the wire schema of stored records. Readers reject
// payloads whose version differs from their own.
const PayloadVersion = 1

// Payload is one stored record. The single-letter JSON keys keep the
// serialized form compact; t and x are omitted when zero.
type Payload struct {
	Data    map[string]any `json:"m"`
	Created int64          `json:"c"`
	Version int            `json:"v"`
	Timeout int64          `json:"t,omitempty"`
	Expires int64          `json:"x,omitempty"`
}

// IntTime returns the current epoch time in whole seconds, rounded up so a
// freshly stamped payload never predates the wall clock.
func IntTime() int64 {
	now := time.Now()
	secs := now.Unix()
	if now.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// EmptyPayload builds a fresh record created at now. A positive timeout is
// recorded in t, and with expiry tracking on, x starts at now+timeout.
func EmptyPayload(timeout int64, trackExpiry bool, now int64) *Payload {
	p := &Payload{
		Data:    map[string]any{},
		Created: now,
		Version: PayloadVersion,
	}
	if timeout > 0 {
		p.Timeout = timeout
		if trackExpiry {
			p.Expires = now + timeout
		}
	}
	return p
}

// EncodePayload prepares a record for storage. The previously stored x is
// carried over; when the record has a timeout and the trigger window allows
// it, x is recomputed to now+timeout. Data is shared with the input, not
// copied.
func EncodePayload(p *Payload, trigger int64, trackExpiry bool, now int64) *Payload {
	out := &Payload{
		Data:    p.Data,
		Created: p.Created,
		Version: PayloadVersion,
	}
	if trackExpiry && p.Expires != 0 {
		out.Expires = p.Expires
	}
	if p.Timeout != 0 {
		out.Timeout = p.Timeout
		if trackExpiry && ShouldRecomputeExpiry(now, p.Expires, trigger) {
			out.Expires = now + p.Timeout
		}
	}
	return out
}
