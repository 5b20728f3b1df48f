package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/leonardcser/sessiond/internal/session"
	"github.com/leonardcser/sessiond/internal/store"
)

var (
	app = kingpin.New("sessionctl", "Admin client for sessiond.")

	network = app.Flag("network", "Daemon network: unix or tcp.").Default("unix").Enum("unix", "tcp")
	addr    = app.Flag("addr", "Socket path (unix) or host:port (tcp).").Default(defaultSocketPath()).String()
	wait    = app.Flag("wait", "How long to wait for the daemon to come up.").Default("5s").Duration()
	secret  = app.Flag("secret", "Signing secret for id tokens.").Default("sessionctl").String()

	timeout    = app.Flag("timeout", "Record lifetime in seconds; 0 disables TTL handling.").Default("1200").Int64()
	trigger    = app.Flag("timeout-trigger", "Seconds before expiry within which writes refresh it.").Default("0").Int64()
	noStoreTTL = app.Flag("no-store-ttl", "Do not keep a store-side TTL.").Bool()
	noTrack    = app.Flag("no-track-expiry", "Do not record the expiry inside the payload.").Bool()
	readHeavy  = app.Flag("readheavy", "Refresh the TTL during loads instead of after reads.").Bool()
	prefix     = app.Flag("prefix", "Key prefix for new record ids.").Default("session:").String()

	cmdNew = app.Command("new", "Allocate a session record and print its id and token.")

	cmdGet = app.Command("get", "Print a session record.")
	getID  = cmdGet.Arg("id", "Record id.").Required().String()

	cmdSet   = app.Command("set", "Set one data key and persist.")
	setID    = cmdSet.Arg("id", "Record id.").Required().String()
	setKey   = cmdSet.Arg("key", "Data key.").Required().String()
	setValue = cmdSet.Arg("value", "Value; JSON is decoded, anything else stays a string.").Required().String()

	cmdDel = app.Command("del", "Delete one data key and persist.")
	delID  = cmdDel.Arg("id", "Record id.").Required().String()
	delKey = cmdDel.Arg("key", "Data key.").Required().String()

	cmdInvalidate = app.Command("invalidate", "Delete the whole record.")
	invID         = cmdInvalidate.Arg("id", "Record id.").Required().String()

	cmdTouch = app.Command("touch", "Refresh the record's store TTL.")
	touchID  = cmdTouch.Arg("id", "Record id.").Required().String()

	cmdTTL = app.Command("ttl", "Print the record's remaining store TTL.")
	ttlID  = cmdTTL.Arg("id", "Record id.").Required().String()

	cmdList    = app.Command("list", "List record ids.")
	listPrefix = cmdList.Flag("match", "Only ids with this prefix.").String()

	cmdStats = app.Command("stats", "Print store counters.")
	cmdPing  = app.Command("ping", "Check the daemon is reachable.")

	cmdResolve   = app.Command("resolve", "Recover the record id from a signed token.")
	resolveToken = cmdResolve.Arg("token", "Signed token.").Required().String()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// resolve verifies a token locally; it needs the secret, not the daemon.
	if cmd == cmdResolve.FullCommand() {
		if err := runResolve(store.NewClient(*network, *addr), *resolveToken); err != nil {
			fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case cmdNew.FullCommand():
		err = runNew(client)
	case cmdGet.FullCommand():
		err = runGet(client, *getID)
	case cmdSet.FullCommand():
		err = runSet(client, *setID, *setKey, *setValue)
	case cmdDel.FullCommand():
		err = runDel(client, *delID, *delKey)
	case cmdInvalidate.FullCommand():
		err = runInvalidate(client, *invID)
	case cmdTouch.FullCommand():
		err = runTouch(client, *touchID)
	case cmdTTL.FullCommand():
		err = runTTL(client, *ttlID)
	case cmdList.FullCommand():
		err = runList(client, *listPrefix)
	case cmdStats.FullCommand():
		err = runStats(client)
	case cmdPing.FullCommand():
		err = runPing(client)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
}

// connect probes the daemon before any command runs, retrying until --wait
// runs out so commands issued right after daemon startup do not fail on a
// socket that is not listening yet.
func connect() (*store.Client, error) {
	client := store.NewClient(*network, *addr)
	err := client.Ping()
	if err == nil {
		return client, nil
	}
	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		if err = client.Ping(); err == nil {
			return client, nil
		}
	}
	return nil, fmt.Errorf("sessiond at %s %s is not reachable: %v", *network, *addr, err)
}

// sessionConfig builds the manager configuration from the global flags.
func sessionConfig() *session.Config {
	cfg := session.DefaultConfig()
	cfg.Timeout = *timeout
	cfg.TimeoutTrigger = *trigger
	cfg.SetStoreTTL = !*noStoreTTL
	cfg.TrackExpiryInPayload = !*noTrack
	cfg.SetStoreTTLReadHeavy = *readHeavy
	cfg.KeyPrefix = *prefix
	cfg.Secret = *secret
	return cfg
}

func newManager(client *store.Client) (*session.Manager, error) {
	return session.NewManager(client, sessionConfig())
}

func runNew(client *store.Client) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.New()
	if err != nil {
		return err
	}
	token, err := mgr.SignID(s.ID())
	if err != nil {
		return err
	}
	fmt.Printf("id:    %s\ntoken: %s\n", s.ID(), token)
	return nil
}

func runGet(client *store.Client, id string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.Load(id)
	if err != nil {
		return err
	}
	fmt.Println(formatSession(s))
	return nil
}

func formatSession(s *session.Session) string {
	out := map[string]any{
		"id":      s.ID(),
		"created": s.Created(),
		"data":    s.Items(),
	}
	if s.Timeout() > 0 {
		out["timeout"] = s.Timeout()
	}
	if s.Expires() > 0 {
		out["expires"] = s.Expires()
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", out)
	}
	return string(raw)
}

func runSet(client *store.Client, id, key, value string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.Load(id)
	if err != nil {
		return err
	}
	s.Set(key, parseValue(value))
	return s.Flush()
}

func runDel(client *store.Client, id, key string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.Load(id)
	if err != nil {
		return err
	}
	if !s.Delete(key) {
		return fmt.Errorf("record %s has no key %q", id, key)
	}
	return s.Flush()
}

func runInvalidate(client *store.Client, id string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.Load(id)
	if err != nil {
		return err
	}
	return s.Invalidate()
}

func runTouch(client *store.Client, id string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	s, err := mgr.Load(id)
	if err != nil {
		return err
	}
	return s.DoRefresh()
}

func runTTL(client *store.Client, id string) error {
	ttl, err := client.TTL(id)
	if err != nil {
		return err
	}
	if ttl == store.NoTTL {
		fmt.Println("none")
		return nil
	}
	fmt.Printf("%ds\n", int64(ttl.Seconds()))
	return nil
}

func runList(client *store.Client, prefix string) error {
	keys, err := client.Keys(prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runStats(client *store.Client) error {
	stats, err := client.Stats()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(stats))
	for k := range stats {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("%-14s %d\n", k, stats[k])
	}
	return nil
}

func runPing(client *store.Client) error {
	if err := client.Ping(); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runResolve(client *store.Client, token string) error {
	mgr, err := newManager(client)
	if err != nil {
		return err
	}
	id, err := mgr.UnsignID(token)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// parseValue decodes JSON when it can, so numbers and booleans keep their
// type; anything else is stored as the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
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
