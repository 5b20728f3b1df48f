package main

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/naoina/toml"
)

type daemonConfig struct {
	Network           string `toml:"network"`
	Addr              string `toml:"addr"`
	Backend           string `toml:"backend"`
	Data              string `toml:"data"`
	Bucket            string `toml:"bucket"`
	CacheSize         int    `toml:"cache_size"`
	DefaultTTLSeconds int64  `toml:"default_ttl_seconds"`
	SweepSeconds      int64  `toml:"sweep_interval_seconds"`
	Debug             bool   `toml:"debug"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Network:      "unix",
		Addr:         defaultSocketPath(),
		Backend:      "memory",
		Data:         defaultDataPath(),
		SweepSeconds: 60,
	}
}

// loadDaemonConfig overlays the TOML file at path onto cfg. Fields the file
// does not mention keep their current values.
func loadDaemonConfig(path string, cfg *daemonConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewDecoder(bufio.NewReader(f)).Decode(cfg)
}

func defaultSocketPath() string {
	if s := os.Getenv("SESSIOND_SOCK"); s != "" {
		return s
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "sessiond", "sessiond.sock")
}

func defaultDataPath() string {
	if s := os.Getenv("SESSIOND_DATA"); s != "" {
		return s
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "sessiond", "data")
}
