package session

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/leonardcser/sessiond/internal/store"
)

// startStore runs a real store server on a unix socket and returns a client
// for it along with the socket path.
func startStore(t *testing.T) (*store.Client, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "store.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := store.NewServer(store.NewMemory(), store.ServerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return store.NewClient("unix", sock), sock
}

func TestSessionLifecycleOverSocket(t *testing.T) {
	client, sock := startStore(t)

	cfg := &Config{
		Timeout:              100,
		SetStoreTTL:          true,
		TrackExpiryInPayload: true,
		Secret:               "s3krit",
	}
	mgr, err := NewManager(client, cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	s, err := mgr.New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ttl, err := client.TTL(s.ID())
	if err != nil || ttl <= 0 || ttl > 100*time.Second {
		t.Fatalf("store ttl after new = %v, %v, want within (0, 100s]", ttl, err)
	}

	// The freshly created record reads back as an empty payload at the
	// current schema version.
	raw, err := client.Get(s.ID())
	if err != nil {
		t.Fatalf("get fresh record: %v", err)
	}
	fresh, err := cfg.serializer().Loads(raw)
	if err != nil {
		t.Fatalf("loads fresh record: %v", err)
	}
	if len(fresh.Data) != 0 || fresh.Version != PayloadVersion || fresh.Timeout != 100 {
		t.Fatalf("fresh payload = %+v, want empty data at version %d", fresh, PayloadVersion)
	}

	s.Set("user", "alice")
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	loaded, err := mgr.Load(s.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v, ok := loaded.Get("user"); !ok || v != "alice" {
		t.Fatalf("loaded user = %v/%v", v, ok)
	}
	if loaded.Created() != s.Created() || loaded.Timeout() != 100 {
		t.Errorf("loaded payload = created %d timeout %d", loaded.Created(), loaded.Timeout())
	}
	if err := loaded.Flush(); err != nil {
		t.Fatalf("flush refresh: %v", err)
	}

	// Another manager on the same store sees the same record.
	second, err := NewManager(store.NewClient("unix", sock), cfg)
	if err != nil {
		t.Fatalf("second manager: %v", err)
	}
	again, err := second.Load(s.ID())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if v, _ := again.Get("user"); v != "alice" {
		t.Errorf("second manager user = %v", v)
	}

	if err := loaded.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := mgr.Load(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load after invalidate = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAllocationOverSocket(t *testing.T) {
	client, _ := startStore(t)
	mgr, err := NewManager(client, testConfig())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	const workers = 4
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		go func() {
			s, err := mgr.New()
			if err != nil {
				t.Errorf("new: %v", err)
				ids <- ""
				return
			}
			ids <- s.ID()
		}()
	}
	seen := map[string]bool{}
	for i := 0; i < workers; i++ {
		id := <-ids
		if id == "" {
			continue
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	keys, err := client.Keys("")
	if err != nil || len(keys) != workers {
		t.Errorf("stored records = %d (%v), want %d", len(keys), err, workers)
	}
}
