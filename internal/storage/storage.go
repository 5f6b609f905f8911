package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Storage keys
const (
	keyOptions     = "options"
	keyStats       = "stats"
	keyProbePrefix = "tb/"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Stats records engine usage across sessions.
type Stats struct {
	Games         int       `json:"games"`
	Searches      int       `json:"searches"`
	Nodes         uint64    `json:"nodes"`
	TablebaseHits int       `json:"tablebase_hits"`
	LongestSearch int64     `json:"longest_search_ms"`
	LastGameID    string    `json:"last_game_id"`
	LastPlayed    time.Time `json:"last_played"`
}

// SearchRecord describes one finished search.
type SearchRecord struct {
	Nodes     uint64
	Elapsed   time.Duration
	Tablebase bool
}

// Store wraps BadgerDB for persistent storage.
type Store struct {
	db *badger.DB
}

// badgerLogger routes badger's logging into zerolog, one level quieter.
type badgerLogger struct {
	zl zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.zl.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.zl.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.zl.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.zl.Trace().Msgf(f, v...) }

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log.With().Str("component", "badger").Logger()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenDefault opens the database below dataDir, or the platform data
// directory when dataDir is empty.
func OpenDefault(dataDir string) (*Store, error) {
	dbDir, err := GetDatabaseDir(dataDir)
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) get(key []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(fn)
	})
}

func (s *Store) set(key, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// SaveOptions stores v as JSON.
func (s *Store) SaveOptions(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	return s.set([]byte(keyOptions), data)
}

// LoadOptions decodes the stored options into v. When nothing is stored v
// keeps its current values.
func (s *Store) LoadOptions(v any) error {
	err := s.get([]byte(keyOptions), func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// LoadStats loads usage statistics, returns empty stats if not found
func (s *Store) LoadStats() (*Stats, error) {
	stats := &Stats{}
	err := s.get([]byte(keyStats), func(val []byte) error {
		return json.Unmarshal(val, stats)
	})
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	return stats, err
}

// SaveStats saves usage statistics
func (s *Store) SaveStats(stats *Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.set([]byte(keyStats), data)
}

// RecordGame counts a new game identified by id.
func (s *Store) RecordGame(id string) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.Games++
	stats.LastGameID = id
	stats.LastPlayed = time.Now()
	return s.SaveStats(stats)
}

// RecordSearch adds a finished search to the statistics.
func (s *Store) RecordSearch(rec SearchRecord) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.Searches++
	stats.Nodes += rec.Nodes
	if rec.Tablebase {
		stats.TablebaseHits++
	}
	stats.LongestSearch = max(stats.LongestSearch, rec.Elapsed.Milliseconds())
	stats.LastPlayed = time.Now()
	return s.SaveStats(stats)
}

func probeKey(key uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(keyProbePrefix), key)
}

// GetProbe returns the cached tablebase result stored under key.
func (s *Store) GetProbe(key uint64) ([]byte, error) {
	var out []byte
	err := s.get(probeKey(key), func(val []byte) error {
		out = append([]byte(nil), val...)
		return nil
	})
	return out, err
}

// PutProbe stores a tablebase result under key.
func (s *Store) PutProbe(key uint64, value []byte) error {
	return s.set(probeKey(key), value)
}
