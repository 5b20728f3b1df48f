package store

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB persists records in a goleveldb database directory. It trades the
// single-file simplicity of Bolt for better sustained write throughput.
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key string) ([]byte, int64, error) {
	raw, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	value, expiresAt := decodeEnvelope(raw)
	return value, expiresAt, nil
}

func (l *LevelDB) Put(key string, value []byte, expiresAt int64) error {
	return l.db.Put([]byte(key), encodeEnvelope(value, expiresAt), nil)
}

func (l *LevelDB) Delete(key string) error {
	return l.db.Delete([]byte(key), nil)
}

func (l *LevelDB) Keys(prefix string) ([]string, error) {
	var keys []string
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (l *LevelDB) PurgeExpired(now int64) ([]string, error) {
	var purged []string
	batch := new(leveldb.Batch)
	iter := l.db.NewIterator(nil, nil)
	for iter.Next() {
		_, expiresAt := decodeEnvelope(iter.Value())
		if expiresAt > 0 && now > expiresAt {
			key := append([]byte(nil), iter.Key()...)
			batch.Delete(key)
			purged = append(purged, string(key))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if batch.Len() > 0 {
		if err := l.db.Write(batch, nil); err != nil {
			return nil, err
		}
	}
	return purged, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
