package store

import (
	"encoding/json"
	"errors"
	"net"
	"time"
)

// applier executes a single protocol request. Client sends it over a
// socket; Direct hands it straight to a Server.
type applier interface {
	apply(req *Request) (*Response, error)
}

// responseError turns a failed response back into the error the server saw.
// Sentinels travel as their message text and are restored by comparison.
func responseError(resp *Response) error {
	switch resp.Error {
	case ErrNotFound.Error():
		return ErrNotFound
	case ErrExpired.Error():
		return ErrExpired
	case ErrTxConflict.Error():
		return ErrTxConflict
	}
	return errors.New(resp.Error)
}

// Client implements KV over a Unix domain or TCP socket, dialing one
// connection per operation.
type Client struct {
	kvOps
	network string
	addr    string

	// DialTimeout bounds each operation's connection attempt.
	DialTimeout time.Duration
}

func NewClient(network, addr string) *Client {
	c := &Client{network: network, addr: addr, DialTimeout: 500 * time.Millisecond}
	c.kvOps = kvOps{ap: c}
	return c
}

func (c *Client) withConn(fn func(conn net.Conn) error) error {
	conn, err := net.DialTimeout(c.network, c.addr, c.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Client) apply(req *Request) (*Response, error) {
	var resp Response
	err := c.withConn(func(conn net.Conn) error {
		enc := json.NewEncoder(conn)
		dec := json.NewDecoder(conn)
		if err := enc.Encode(req); err != nil {
			return err
		}
		return dec.Decode(&resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// kvOps implements KV on top of an applier. Client and Direct embed it so
// both speak the exact same protocol.
type kvOps struct {
	ap applier
}

func (o kvOps) Get(key string) ([]byte, error) {
	resp, err := o.ap.apply(&Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	return append([]byte(nil), resp.Value...), nil
}

func (o kvOps) GetEx(key string, ttl time.Duration) ([]byte, error) {
	resp, err := o.ap.apply(&Request{Op: OpGetEx, Key: key, TTLSeconds: ttlSeconds(ttl)})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	return append([]byte(nil), resp.Value...), nil
}

func (o kvOps) Set(key string, value []byte) error {
	resp, err := o.ap.apply(&Request{Op: OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

func (o kvOps) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return o.Set(key, value)
	}
	resp, err := o.ap.apply(&Request{Op: OpSetEx, Key: key, Value: value, TTLSeconds: ttlSeconds(ttl)})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

func (o kvOps) TouchTTL(key string, ttl time.Duration) error {
	resp, err := o.ap.apply(&Request{Op: OpTouch, Key: key, TTLSeconds: ttlSeconds(ttl)})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

func (o kvOps) Delete(key string) error {
	resp, err := o.ap.apply(&Request{Op: OpDelete, Key: key})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

func (o kvOps) TTL(key string) (time.Duration, error) {
	resp, err := o.ap.apply(&Request{Op: OpTTL, Key: key})
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, responseError(resp)
	}
	if resp.TTLSeconds < 0 {
		return NoTTL, nil
	}
	return time.Duration(resp.TTLSeconds) * time.Second, nil
}

func (o kvOps) Keys(prefix string) ([]string, error) {
	resp, err := o.ap.apply(&Request{Op: OpKeys, Prefix: prefix})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	return resp.Keys, nil
}

// Watch snapshots a key's state and version and opens a transaction against
// it. A missing or expired key yields a valid transaction whose snapshot
// reports the key as absent.
func (o kvOps) Watch(key string) (Txn, error) {
	resp, err := o.ap.apply(&Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		serr := responseError(resp)
		if !errors.Is(serr, ErrNotFound) && !errors.Is(serr, ErrExpired) {
			return nil, serr
		}
		return &Tx{ap: o.ap, key: key, version: resp.Version}, nil
	}
	return &Tx{
		ap:      o.ap,
		key:     key,
		version: resp.Version,
		exists:  true,
		value:   append([]byte(nil), resp.Value...),
	}, nil
}

func (o kvOps) Stats() (map[string]uint64, error) {
	resp, err := o.ap.apply(&Request{Op: OpStats})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	return resp.Stats, nil
}

func (o kvOps) Ping() error {
	resp, err := o.ap.apply(&Request{Op: OpPing})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs <= 0 && ttl > 0 {
		secs = 1
	}
	return secs
}
