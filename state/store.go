// Package state persists render bookkeeping between runs: the newest chunk
// timestamp rendered per region and layer, and tiles that were still queued
// when the process stopped.
package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

var ErrClosed = errors.New("state store closed")

const (
	timestampPrefix = "ts/"
	pendingPrefix   = "pending/"
)

// PendingTile is a tile that was scheduled but not rendered.
type PendingTile struct {
	Map   string `json:"map"`
	Layer string `json:"layer"`
	X     int    `json:"x"`
	Z     int    `json:"z"`
}

func (p PendingTile) key() []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%d.%d", pendingPrefix, p.Map, p.Layer, p.X, p.Z))
}

type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	return open(opts)
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) use() (func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	return s.mu.RUnlock, nil
}

func timestampKey(layer, region string) []byte {
	return []byte(timestampPrefix + layer + "/" + region)
}

func (s *Store) RegionTimestamp(layer, region string) (int32, bool, error) {
	release, err := s.use()
	if err != nil {
		return 0, false, err
	}
	defer release()

	var ts int32
	var found bool
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(timestampKey(layer, region))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("corrupt timestamp for %s/%s", layer, region)
			}
			ts = int32(binary.BigEndian.Uint32(val))
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to read region timestamp: %w", err)
	}
	return ts, found, nil
}

func (s *Store) SetRegionTimestamp(layer, region string, ts int32) error {
	release, err := s.use()
	if err != nil {
		return err
	}
	defer release()

	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, uint32(ts))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(timestampKey(layer, region), val)
	})
	if err != nil {
		return fmt.Errorf("failed to store region timestamp: %w", err)
	}
	return nil
}

// ClearLayer forgets every region timestamp of layer, forcing a full render.
func (s *Store) ClearLayer(layer string) error {
	release, err := s.use()
	if err != nil {
		return err
	}
	defer release()

	return s.db.DropPrefix([]byte(timestampPrefix + layer + "/"))
}

// SavePending records tiles to be rendered on the next start.
func (s *Store) SavePending(tiles []PendingTile) error {
	if len(tiles) == 0 {
		return nil
	}

	release, err := s.use()
	if err != nil {
		return err
	}
	defer release()

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, tile := range tiles {
		data, err := json.Marshal(tile)
		if err != nil {
			return err
		}
		if err := wb.Set(tile.key(), data); err != nil {
			return fmt.Errorf("failed to save pending tile: %w", err)
		}
	}
	return wb.Flush()
}

// TakePending returns and removes all saved pending tiles.
func (s *Store) TakePending() ([]PendingTile, error) {
	release, err := s.use()
	if err != nil {
		return nil, err
	}
	defer release()

	tiles := []PendingTile{}
	prefix := []byte(pendingPrefix)
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tile PendingTile
				if err := json.Unmarshal(val, &tile); err != nil {
					return err
				}
				tiles = append(tiles, tile)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending tiles: %w", err)
	}

	if err := s.db.DropPrefix(prefix); err != nil {
		return nil, fmt.Errorf("failed to clear pending tiles: %w", err)
	}
	return tiles, nil
}
