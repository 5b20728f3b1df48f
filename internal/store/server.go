package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leonardcser/sessiond/internal/logger"
)

// ServerOptions tunes a Server. The zero value runs on the wall clock with
// no default TTL.
type ServerOptions struct {
	// DefaultTTL applies to plain sets that name no TTL of their own.
	// Zero keeps such records until deleted.
	DefaultTTL time.Duration
}

// Server owns a Backend and applies protocol requests to it. Every key
// carries a version counter that advances on each mutation; transactions
// use it to detect concurrent writers. Versions live in memory, so a
// restart invalidates watches taken against the previous process.
type Server struct {
	backend Backend
	opts    ServerOptions

	mu       sync.RWMutex
	versions map[string]uint64

	stats serverStats
	now   func() time.Time
}

func NewServer(backend Backend, opts ServerOptions) *Server {
	return &Server{
		backend:  backend,
		opts:     opts,
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

// Apply executes one request against the backend. It is the single entry
// point shared by socket connections and in-process callers.
func (s *Server) Apply(req *Request) *Response {
	switch req.Op {
	case OpGet:
		return s.get(req)
	case OpGetEx:
		return s.getEx(req)
	case OpSet:
		return s.set(req)
	case OpSetEx:
		return s.setEx(req)
	case OpTouch:
		return s.touch(req)
	case OpDelete:
		return s.del(req)
	case OpTTL:
		return s.ttl(req)
	case OpKeys:
		return s.keys(req)
	case OpTx:
		return s.tx(req)
	case OpStats:
		return &Response{OK: true, Stats: s.stats.snapshot()}
	case OpPing:
		return &Response{OK: true}
	default:
		return &Response{OK: false, Error: "unknown op"}
	}
}

// readLocked fetches a key and interprets its expiry. Expired records are
// reported as such but left in place; the sweeper removes them. Requires mu
// held in read or write mode.
func (s *Server) readLocked(key string) ([]byte, int64, error) {
	value, expiresAt, err := s.backend.Get(key)
	if err != nil {
		return nil, 0, err
	}
	if expiresAt > 0 && s.now().Unix() > expiresAt {
		return nil, expiresAt, ErrExpired
	}
	return value, expiresAt, nil
}

// setLocked writes value with a TTL in seconds; 0 falls back to the server
// default and negative means no expiry either way.
func (s *Server) setLocked(key string, value []byte, ttlSeconds int64) error {
	if ttlSeconds == 0 && s.opts.DefaultTTL > 0 {
		ttlSeconds = int64(s.opts.DefaultTTL / time.Second)
	}
	var expiresAt int64
	if ttlSeconds > 0 {
		expiresAt = s.now().Unix() + ttlSeconds
	}
	if err := s.backend.Put(key, value, expiresAt); err != nil {
		return err
	}
	s.versions[key]++
	return nil
}

func (s *Server) touchLocked(key string, ttlSeconds int64) error {
	value, _, err := s.readLocked(key)
	if err != nil {
		return err
	}
	if err := s.backend.Put(key, value, s.now().Unix()+ttlSeconds); err != nil {
		return err
	}
	s.versions[key]++
	return nil
}

// deleteLocked removes a key. The version advances only when a live record
// actually went away; clearing an already dead key changes nothing a
// watcher could observe.
func (s *Server) deleteLocked(key string) error {
	_, _, err := s.readLocked(key)
	live := err == nil
	if err != nil && err != ErrNotFound && err != ErrExpired {
		return err
	}
	if err := s.backend.Delete(key); err != nil {
		return err
	}
	if live {
		s.versions[key]++
	}
	return nil
}

func (s *Server) get(req *Request) *Response {
	s.mu.RLock()
	value, _, err := s.readLocked(req.Key)
	ver := s.versions[req.Key]
	s.mu.RUnlock()
	s.stats.gets.Add(1)
	if err != nil {
		return &Response{OK: false, Error: err.Error(), Version: ver}
	}
	return &Response{OK: true, Value: value, Version: ver}
}

func (s *Server) getEx(req *Request) *Response {
	if req.TTLSeconds <= 0 {
		return &Response{OK: false, Error: "getex requires a positive ttl"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.gets.Add(1)
	value, _, err := s.readLocked(req.Key)
	if err != nil {
		return &Response{OK: false, Error: err.Error(), Version: s.versions[req.Key]}
	}
	if err := s.backend.Put(req.Key, value, s.now().Unix()+req.TTLSeconds); err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	s.versions[req.Key]++
	s.stats.touches.Add(1)
	return &Response{OK: true, Value: value, Version: s.versions[req.Key]}
}

func (s *Server) set(req *Request) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setLocked(req.Key, req.Value, req.TTLSeconds); err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	s.stats.sets.Add(1)
	return &Response{OK: true, Version: s.versions[req.Key]}
}

func (s *Server) setEx(req *Request) *Response {
	if req.TTLSeconds <= 0 {
		return &Response{OK: false, Error: "setex requires a positive ttl"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setLocked(req.Key, req.Value, req.TTLSeconds); err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	s.stats.sets.Add(1)
	return &Response{OK: true, Version: s.versions[req.Key]}
}

func (s *Server) touch(req *Request) *Response {
	if req.TTLSeconds <= 0 {
		return &Response{OK: false, Error: "touch requires a positive ttl"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.touchLocked(req.Key, req.TTLSeconds); err != nil {
		return &Response{OK: false, Error: err.Error(), Version: s.versions[req.Key]}
	}
	s.stats.touches.Add(1)
	return &Response{OK: true, Version: s.versions[req.Key]}
}

func (s *Server) del(req *Request) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteLocked(req.Key); err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	s.stats.deletes.Add(1)
	return &Response{OK: true}
}

func (s *Server) ttl(req *Request) *Response {
	s.mu.RLock()
	_, expiresAt, err := s.readLocked(req.Key)
	s.mu.RUnlock()
	if err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	if expiresAt == 0 {
		return &Response{OK: true, TTLSeconds: -1}
	}
	return &Response{OK: true, TTLSeconds: expiresAt - s.now().Unix()}
}

func (s *Server) keys(req *Request) *Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names, err := s.backend.Keys(req.Prefix)
	if err != nil {
		return &Response{OK: false, Error: err.Error()}
	}
	var live []string
	for _, k := range names {
		if _, _, err := s.readLocked(k); err == nil {
			live = append(live, k)
		}
	}
	return &Response{OK: true, Keys: live}
}

// tx applies the buffered ops if and only if the key's version still equals
// the one the watcher saw. Ops run in order with no rollback; a failed op
// reports its error and the ops after it are skipped.
func (s *Server) tx(req *Request) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[req.Key] != req.Version {
		s.stats.txConflicts.Add(1)
		return &Response{OK: false, Error: ErrTxConflict.Error(), Version: s.versions[req.Key]}
	}
	for _, op := range req.Ops {
		var err error
		switch op.Op {
		case OpSet:
			err = s.setLocked(req.Key, op.Value, op.TTLSeconds)
		case OpSetEx:
			if op.TTLSeconds <= 0 {
				err = errors.New("setex requires a positive ttl")
			} else {
				err = s.setLocked(req.Key, op.Value, op.TTLSeconds)
			}
		case OpTouch:
			if op.TTLSeconds <= 0 {
				err = errors.New("touch requires a positive ttl")
			} else {
				err = s.touchLocked(req.Key, op.TTLSeconds)
			}
		case OpDelete:
			err = s.deleteLocked(req.Key)
		default:
			err = fmt.Errorf("unknown tx op %q", op.Op)
		}
		if err != nil {
			return &Response{OK: false, Error: err.Error(), Version: s.versions[req.Key]}
		}
	}
	s.stats.txCommits.Add(1)
	return &Response{OK: true, Version: s.versions[req.Key]}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Errorf("accept: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	id := uuid.NewString()
	s.stats.connections.Add(1)
	logger.Debugf("conn %s open", id)
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF {
				logger.Debugf("conn %s read: %v", id, err)
			}
			return
		}
		if err := enc.Encode(s.Apply(&req)); err != nil {
			logger.Debugf("conn %s write: %v", id, err)
			return
		}
	}
}

// Sweep purges expired records every interval until ctx is cancelled.
func (s *Server) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.purge()
		}
	}
}

// purge drops expired records and advances their versions so that watches
// taken against them fail instead of resurrecting dead state.
func (s *Server) purge() {
	s.mu.Lock()
	purged, err := s.backend.PurgeExpired(s.now().Unix())
	for _, k := range purged {
		s.versions[k]++
	}
	s.mu.Unlock()
	if err != nil {
		logger.Errorf("purge expired: %v", err)
		return
	}
	if len(purged) > 0 {
		s.stats.purged.Add(uint64(len(purged)))
		logger.Debugf("purged %d expired records", len(purged))
	}
}

type serverStats struct {
	gets, sets, touches, deletes atomic.Uint64
	txCommits, txConflicts       atomic.Uint64
	purged, connections          atomic.Uint64
}

func (st *serverStats) snapshot() map[string]uint64 {
	return map[string]uint64{
		"gets":         st.gets.Load(),
		"sets":         st.sets.Load(),
		"touches":      st.touches.Load(),
		"deletes":      st.deletes.Load(),
		"tx_commits":   st.txCommits.Load(),
		"tx_conflicts": st.txConflicts.Load(),
		"purged":       st.purged.Load(),
		"connections":  st.connections.Load(),
	}
}
