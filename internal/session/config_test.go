package session

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Secret = "s3krit"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative timeout", func(c *Config) { c.Timeout = -1 }},
		{"negative trigger", func(c *Config) { c.TimeoutTrigger = -1 }},
		{"negative attempts", func(c *Config) { c.MaxIDAttempts = -1 }},
		{"generator and prefix", func(c *Config) {
			c.KeyPrefix = "session:"
			c.IDGenerator = GenerateID
		}},
		{"no secret no signer", func(c *Config) { c.Secret = "" }},
		{"secret and signer", func(c *Config) { c.Signer = newJWTSigner("other") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestConfigValidateTriggerForcesTracking(t *testing.T) {
	cfg := &Config{Timeout: 400, TimeoutTrigger: 60, Secret: "s3krit"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.TrackExpiryInPayload {
		t.Error("TimeoutTrigger set but TrackExpiryInPayload still false")
	}
}

func TestConfigZeroTimeoutIsValid(t *testing.T) {
	cfg := &Config{Secret: "s3krit"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(map[string]string{
		"timeout":                 "600",
		"timeout_trigger":         "30",
		"set_store_ttl":           "false",
		"set_store_ttl_readheavy": "yes",
		"track_expiry_in_payload": "on",
		"detect_changes":          "off",
		"key_prefix":              "session:",
		"max_id_attempts":         "5",
		"secret":                  "s3krit",
	})
	if err != nil {
		t.Fatalf("from settings: %v", err)
	}
	if cfg.Timeout != 600 || cfg.TimeoutTrigger != 30 {
		t.Errorf("timeout/trigger = %d/%d, want 600/30", cfg.Timeout, cfg.TimeoutTrigger)
	}
	if cfg.SetStoreTTL || !cfg.SetStoreTTLReadHeavy || !cfg.TrackExpiryInPayload {
		t.Errorf("bools = %v/%v/%v", cfg.SetStoreTTL, cfg.SetStoreTTLReadHeavy, cfg.TrackExpiryInPayload)
	}
	if cfg.DetectChanges {
		t.Error("detect_changes off did not stick")
	}
	if cfg.KeyPrefix != "session:" || cfg.MaxIDAttempts != 5 || cfg.Secret != "s3krit" {
		t.Errorf("prefix/attempts/secret = %q/%d/%q", cfg.KeyPrefix, cfg.MaxIDAttempts, cfg.Secret)
	}
}

func TestFromSettingsDefaults(t *testing.T) {
	cfg, err := FromSettings(map[string]string{"secret": "s3krit"})
	if err != nil {
		t.Fatalf("from settings: %v", err)
	}
	want := DefaultConfig()
	if cfg.Timeout != want.Timeout || cfg.SetStoreTTL != want.SetStoreTTL ||
		cfg.TrackExpiryInPayload != want.TrackExpiryInPayload {
		t.Errorf("absent keys did not keep defaults: %+v", cfg)
	}
}

func TestFromSettingsNone(t *testing.T) {
	cfg, err := FromSettings(map[string]string{
		"timeout":         "None",
		"timeout_trigger": "",
		"secret":          "s3krit",
	})
	if err != nil {
		t.Fatalf("from settings: %v", err)
	}
	if cfg.Timeout != 0 || cfg.TimeoutTrigger != 0 {
		t.Errorf("timeout/trigger = %d/%d, want 0/0", cfg.Timeout, cfg.TimeoutTrigger)
	}
}

func TestFromSettingsErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"unrecognized key": {"secret": "s", "lifetime": "600"},
		"bad integer":      {"secret": "s", "timeout": "soon"},
		"missing secret":   {"timeout": "600"},
	}
	for name, settings := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromSettings(settings); !errors.Is(err, ErrConfiguration) {
				t.Errorf("FromSettings(%v) = %v, want ErrConfiguration", settings, err)
			}
		})
	}
}

func TestAsBool(t *testing.T) {
	for _, truthy := range []string{"1", "t", "TRUE", "y", "Yes", "on"} {
		if !asBool(truthy) {
			t.Errorf("asBool(%q) = false, want true", truthy)
		}
	}
	for _, falsy := range []string{"", "0", "false", "off", "no", "whatever"} {
		if asBool(falsy) {
			t.Errorf("asBool(%q) = true, want false", falsy)
		}
	}
}
