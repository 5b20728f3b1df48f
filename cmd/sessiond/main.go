package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/leonardcser/sessiond/internal/logger"
	"github.com/leonardcser/sessiond/internal/store"
)

var (
	app        = kingpin.New("sessiond", "TTL key-value store daemon for session records.")
	configPath = app.Flag("config", "TOML config file.").String()
	network    = app.Flag("network", "Listen network: unix or tcp.").Default("unix").Action(flagSet("network")).Enum("unix", "tcp")
	addr       = app.Flag("addr", "Socket path (unix) or host:port (tcp).").Default(defaultSocketPath()).Action(flagSet("addr")).String()
	backend    = app.Flag("backend", "Storage backend: memory, bolt or leveldb.").Default("memory").Action(flagSet("backend")).Enum("memory", "bolt", "leveldb")
	dataPath   = app.Flag("data", "Data file (bolt) or directory (leveldb).").Default(defaultDataPath()).Action(flagSet("data")).String()
	bucket     = app.Flag("bucket", "Bolt bucket name.").Action(flagSet("bucket")).String()
	cacheSize  = app.Flag("cache-size", "LRU entries cached in front of disk backends; 0 disables.").Default("0").Action(flagSet("cache-size")).Int()
	defaultTTL = app.Flag("default-ttl", "TTL for records stored without one; 0 keeps them forever.").Default("0s").Action(flagSet("default-ttl")).Duration()
	sweepEvery = app.Flag("sweep-interval", "How often expired records are purged.").Default("1m").Action(flagSet("sweep-interval")).Duration()
	debug      = app.Flag("debug", "Enable debug logging.").Action(flagSet("debug")).Bool()
)

// explicitFlags records which flags the user actually passed, so they can
// win over the config file while plain defaults lose to it.
var explicitFlags = map[string]bool{}

func flagSet(name string) kingpin.Action {
	return func(*kingpin.ParseContext) error {
		explicitFlags[name] = true
		return nil
	}
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger.InitFromEnv()
	defer logger.Close()

	cfg := defaultDaemonConfig()
	if *configPath != "" {
		if err := loadDaemonConfig(*configPath, &cfg); err != nil {
			logger.Errorf("load config %s: %v", *configPath, err)
			logger.Close()
			os.Exit(1)
		}
	}
	applyFlags(&cfg)
	logger.SetDebug(cfg.Debug)

	if err := run(cfg); err != nil {
		logger.Errorf("sessiond: %v", err)
		logger.Close()
		os.Exit(1)
	}
}

func applyFlags(cfg *daemonConfig) {
	if explicitFlags["network"] {
		cfg.Network = *network
	}
	if explicitFlags["addr"] {
		cfg.Addr = *addr
	}
	if explicitFlags["backend"] {
		cfg.Backend = *backend
	}
	if explicitFlags["data"] {
		cfg.Data = *dataPath
	}
	if explicitFlags["bucket"] {
		cfg.Bucket = *bucket
	}
	if explicitFlags["cache-size"] {
		cfg.CacheSize = *cacheSize
	}
	if explicitFlags["default-ttl"] {
		cfg.DefaultTTLSeconds = int64(*defaultTTL / time.Second)
	}
	if explicitFlags["sweep-interval"] {
		cfg.SweepSeconds = int64(*sweepEvery / time.Second)
	}
	if explicitFlags["debug"] {
		cfg.Debug = *debug
	}
}

func run(cfg daemonConfig) error {
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	srv := store.NewServer(b, store.ServerOptions{
		DefaultTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second,
	})

	l, err := listen(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("sessiond listening on %s %s (backend=%s)", cfg.Network, cfg.Addr, cfg.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, l) })
	g.Go(func() error { return srv.Sweep(gctx, time.Duration(cfg.SweepSeconds)*time.Second) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Infof("sessiond stopped")
	return nil
}

func openBackend(cfg daemonConfig) (store.Backend, error) {
	var b store.Backend
	var err error
	switch cfg.Backend {
	case "memory":
		b = store.NewMemory()
	case "bolt":
		b, err = store.OpenBolt(cfg.Data, store.BoltOptions{Bucket: cfg.Bucket})
	case "leveldb":
		b, err = store.OpenLevelDB(cfg.Data)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 && cfg.Backend != "memory" {
		return store.NewCached(b, cfg.CacheSize)
	}
	return b, nil
}

func listen(cfg daemonConfig) (net.Listener, error) {
	if cfg.Network == "unix" {
		// Ensure socket dir exists and remove stale socket
		_ = os.MkdirAll(filepath.Dir(cfg.Addr), 0o755)
		_ = os.Remove(cfg.Addr)
		l, err := net.Listen("unix", cfg.Addr)
		if err != nil {
			return nil, err
		}
		_ = os.Chmod(cfg.Addr, 0o600)
		return l, nil
	}
	return net.Listen(cfg.Network, cfg.Addr)
}
