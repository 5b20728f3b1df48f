package session

import (
	"fmt"
	"strconv"
	"strings"
)

// settingsTable enumerates every recognized flat-settings key with its
// coercion into Config. The table is the contract: integrators can read off
// exactly which keys exist and what each one parses as, and FromSettings
// rejects anything outside it.
var settingsTable = map[string]func(*Config, string) error{
	"timeout":                 func(c *Config, raw string) error { return coerceSeconds(raw, &c.Timeout) },
	"timeout_trigger":         func(c *Config, raw string) error { return coerceSeconds(raw, &c.TimeoutTrigger) },
	"set_store_ttl":           func(c *Config, raw string) error { return coerceBool(raw, &c.SetStoreTTL) },
	"set_store_ttl_readheavy": func(c *Config, raw string) error { return coerceBool(raw, &c.SetStoreTTLReadHeavy) },
	"track_expiry_in_payload": func(c *Config, raw string) error { return coerceBool(raw, &c.TrackExpiryInPayload) },
	"detect_changes":          func(c *Config, raw string) error { return coerceBool(raw, &c.DetectChanges) },
	"key_prefix":              func(c *Config, raw string) error { c.KeyPrefix = raw; return nil },
	"max_id_attempts":         func(c *Config, raw string) error { return coerceCount(raw, &c.MaxIDAttempts) },
	"secret":                  func(c *Config, raw string) error { c.Secret = raw; return nil },
}

// FromSettings builds a Config from flat string settings, the shape ini
// style host configuration arrives in. Keys left out keep their
// DefaultConfig value, and the result is validated before it is returned.
func FromSettings(settings map[string]string) (*Config, error) {
	cfg := DefaultConfig()
	for key, raw := range settings {
		coerce, ok := settingsTable[key]
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized setting %q", ErrConfiguration, key)
		}
		if err := coerce(cfg, raw); err != nil {
			return nil, fmt.Errorf("%w: setting %q: %v", ErrConfiguration, key, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func coerceBool(raw string, dst *bool) error {
	*dst = asBool(raw)
	return nil
}

// asBool treats 1/t/true/y/yes/on as true, case-insensitively, and
// everything else as false.
func asBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}

// coerceSeconds accepts a duration in whole seconds, with "None" and the
// empty string meaning unset, the spelling ini files use for a disabled
// timeout.
func coerceSeconds(raw string, dst *int64) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "None" {
		*dst = 0
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("%q is not an integer", raw)
	}
	*dst = n
	return nil
}

func coerceCount(raw string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%q is not an integer", raw)
	}
	*dst = n
	return nil
}
