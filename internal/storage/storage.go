// Package storage provides BadgerDB-backed persistence for the search
// core's cross-process state: a snapshot of the transposition table so a
// restarted process can resume a game with a warm table (spec.md §5: "the
// transposition table... may be passed between successive searches"), and
// a durable cache in front of the tablebase prober's network probes
// (spec.md §4.6) so a position already resolved once never re-crosses the
// network after a restart.
package storage

import (
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/tablebase"
)

const (
	ttPrefix = "tt:"
	tbPrefix = "tb:"
)

// TTRecord is a storable transposition-table entry. Storage keeps its own
// copy of this shape rather than importing engine.Entry: engine is the
// caller of this package (it persists its table through Storage), so the
// reverse import would cycle.
type TTRecord struct {
	Score int32
	Depth int32
	Flag  uint8
	Moves []board.Move
}

// Storage wraps a BadgerDB instance for the search core's two persistence
// concerns: transposition-table snapshots and tablebase probe caching.
type Storage struct {
	db *badger.DB
}

// Open opens (creating if necessary) a BadgerDB database at dir.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// OpenDefault opens the database at the platform-standard data directory.
func OpenDefault() (*Storage, error) {
	dir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dir)
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveTranspositionTable persists every record in entries, overwriting
// whatever snapshot was previously stored under its hash. Records saved
// earlier under hashes absent from entries are left in place, so a later
// LoadTranspositionTable returns the union of every saved snapshot.
func (s *Storage) SaveTranspositionTable(entries map[uint64]TTRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for hash, rec := range entries {
		if err := wb.Set(ttKey(hash), encodeTTRecord(rec)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadTranspositionTable reads back every record previously saved with
// SaveTranspositionTable, keyed by position hash.
func (s *Storage) LoadTranspositionTable() (map[uint64]TTRecord, error) {
	out := make(map[uint64]TTRecord)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ttPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(ttPrefix)); it.ValidForPrefix([]byte(ttPrefix)); it.Next() {
			item := it.Item()
			hash := keyHash(item.Key())
			err := item.Value(func(val []byte) error {
				rec, decErr := decodeTTRecord(val)
				if decErr != nil {
					return decErr
				}
				out[hash] = rec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements tablebase.PersistentCache: the probe result previously
// stored for hash, if any.
func (s *Storage) Get(hash uint64) (tablebase.ProbeResult, bool) {
	var result tablebase.ProbeResult
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tbKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result = decodeProbeResult(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return tablebase.ProbeResult{}, false
	}
	return result, found
}

// Put implements tablebase.PersistentCache: remembers result for hash
// across process restarts.
func (s *Storage) Put(hash uint64, result tablebase.ProbeResult) {
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tbKey(hash), encodeProbeResult(result))
	})
}

func ttKey(hash uint64) []byte {
	key := make([]byte, len(ttPrefix)+8)
	copy(key, ttPrefix)
	binary.BigEndian.PutUint64(key[len(ttPrefix):], hash)
	return key
}

func tbKey(hash uint64) []byte {
	key := make([]byte, len(tbPrefix)+8)
	copy(key, tbPrefix)
	binary.BigEndian.PutUint64(key[len(tbPrefix):], hash)
	return key
}

// keyHash extracts the trailing 8-byte position hash common to every key
// shape this package writes.
func keyHash(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// encodeTTRecord lays out a TTRecord as: score(4) depth(4) flag(1)
// moveCount(2) moves(2 bytes each). All multi-byte fields big-endian.
func encodeTTRecord(rec TTRecord) []byte {
	buf := make([]byte, 11+2*len(rec.Moves))
	binary.BigEndian.PutUint32(buf[0:4], uint32(rec.Score))
	binary.BigEndian.PutUint32(buf[4:8], uint32(rec.Depth))
	buf[8] = rec.Flag
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(rec.Moves)))
	off := 11
	for _, m := range rec.Moves {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(m))
		off += 2
	}
	return buf
}

func decodeTTRecord(buf []byte) (TTRecord, error) {
	if len(buf) < 11 {
		return TTRecord{}, errors.New("storage: truncated transposition record")
	}
	rec := TTRecord{
		Score: int32(binary.BigEndian.Uint32(buf[0:4])),
		Depth: int32(binary.BigEndian.Uint32(buf[4:8])),
		Flag:  buf[8],
	}
	count := int(binary.BigEndian.Uint16(buf[9:11]))
	off := 11
	if len(buf) < off+2*count {
		return TTRecord{}, errors.New("storage: truncated transposition record moves")
	}
	rec.Moves = make([]board.Move, count)
	for i := 0; i < count; i++ {
		rec.Moves[i] = board.Move(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
	}
	return rec, nil
}

// encodeProbeResult lays out a tablebase.ProbeResult as: found(1) wdl(1,
// signed) dtz(4).
func encodeProbeResult(r tablebase.ProbeResult) []byte {
	buf := make([]byte, 6)
	if r.Found {
		buf[0] = 1
	}
	buf[1] = byte(int8(r.WDL))
	binary.BigEndian.PutUint32(buf[2:6], uint32(r.DTZ))
	return buf
}

func decodeProbeResult(buf []byte) tablebase.ProbeResult {
	if len(buf) < 6 {
		return tablebase.ProbeResult{}
	}
	return tablebase.ProbeResult{
		Found: buf[0] == 1,
		WDL:   tablebase.WDL(int8(buf[1])),
		DTZ:   int(int32(binary.BigEndian.Uint32(buf[2:6]))),
	}
}
