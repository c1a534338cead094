package contract

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBState persists the ledger in an embedded goleveldb database.
// LevelDB's iteration order gives ListPrefix its key ordering for free.
type LevelDBState struct {
	db *leveldb.DB
}

var _ State = (*LevelDBState)(nil)

func OpenLevelDB(path string) (*LevelDBState, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDBState{db: db}, nil
}

func (s *LevelDBState) Get(key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *LevelDBState) Put(key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

func (s *LevelDBState) ListPrefix(prefix string) ([]Entry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var entries []Entry
	for iter.Next() {
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		entries = append(entries, Entry{Key: string(iter.Key()), Value: val})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *LevelDBState) Close() error { return s.db.Close() }
