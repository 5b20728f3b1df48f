package store

import (
	"errors"
	"time"
)

// Tx is the single-key optimistic transaction produced by Watch. It holds
// the snapshot taken at watch time plus the mutations buffered since.
// Commit sends everything in one request; the server rejects it with
// ErrTxConflict if another writer advanced the key's version in between.
type Tx struct {
	ap      applier
	key     string
	version uint64
	exists  bool
	value   []byte
	ops     []TxOp
	done    bool
}

// Exists reports whether the key held a live record at watch time.
func (t *Tx) Exists() bool {
	return t.exists
}

// Value returns the record value snapshotted at watch time, nil when the
// key was absent.
func (t *Tx) Value() []byte {
	return t.value
}

func (t *Tx) Set(value []byte) {
	t.ops = append(t.ops, TxOp{Op: OpSet, Value: value})
}

func (t *Tx) SetWithTTL(value []byte, ttl time.Duration) {
	t.ops = append(t.ops, TxOp{Op: OpSetEx, Value: value, TTLSeconds: ttlSeconds(ttl)})
}

func (t *Tx) TouchTTL(ttl time.Duration) {
	t.ops = append(t.ops, TxOp{Op: OpTouch, TTLSeconds: ttlSeconds(ttl)})
}

func (t *Tx) Delete() {
	t.ops = append(t.ops, TxOp{Op: OpDelete})
}

// Commit applies the buffered ops. Committing with no ops buffered simply
// discards the watch. A transaction commits at most once.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("store: tx already committed")
	}
	t.done = true
	if len(t.ops) == 0 {
		return nil
	}
	resp, err := t.ap.apply(&Request{Op: OpTx, Key: t.key, Version: t.version, Ops: t.ops})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}
