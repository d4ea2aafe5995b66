package engine

import (
	"github.com/hailam/chessplay/internal/board"
)

// TTFlag classifies how a stored score bounds the true minimax value.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // the true value of the node
	TTLowerBound               // a beta-cutoff occurred; the true value is >= Score
	TTUpperBound               // no move improved alpha; the true value is <= Score
)

// InfiniteDepth marks an entry resolved by tablebase lookup rather than
// search, so it is never treated as shallower than a requested depth.
const InfiniteDepth = 1 << 30

// Entry is a single stored search result, keyed by position hash. Moves
// holds every move examined at this node, best first by the search's
// own assigned value; a later iterative-deepening pass reuses this
// order instead of falling back to static priority.
type Entry struct {
	Score int
	Depth int
	Moves []board.Move
	Flag  TTFlag
}

// BestMove returns the first move of the stored ordering, or NoMove if
// the entry carries no moves (as tablebase-resolved entries may not).
func (e Entry) BestMove() board.Move {
	if len(e.Moves) == 0 {
		return board.NoMove
	}
	return e.Moves[0]
}

// TranspositionTable maps position hashes to their last stored result.
// There is no replacement scheme and no eviction: a later Store for a
// hash always overwrites whatever was there. This matches the table's
// role in a single search as memoized work, not a fixed-size hash table
// with a generational replacement policy.
type TranspositionTable struct {
	table map[uint64]Entry

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates an empty transposition table. sizeMB only
// sizes the initial map allocation; the table itself grows unbounded.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	hint := sizeMB * 1024 * 1024 / 64
	if hint < 1024 {
		hint = 1024
	}
	return &TranspositionTable{
		table: make(map[uint64]Entry, hint),
	}
}

// Probe looks up a position in the transposition table.
func (tt *TranspositionTable) Probe(hash uint64) (Entry, bool) {
	tt.probes++
	e, ok := tt.table[hash]
	if ok {
		tt.hits++
	}
	return e, ok
}

// Store records a position's search result, overwriting any prior entry
// for the same hash — insertion-only overwrite, last write wins.
func (tt *TranspositionTable) Store(hash uint64, depth, score int, flag TTFlag, moves []board.Move) {
	tt.table[hash] = Entry{
		Score: score,
		Depth: depth,
		Moves: moves,
		Flag:  flag,
	}
}

// Snapshot returns a copy of every stored entry, for persisting the
// table across process restarts (spec.md §5).
func (tt *TranspositionTable) Snapshot() map[uint64]Entry {
	out := make(map[uint64]Entry, len(tt.table))
	for hash, entry := range tt.table {
		out[hash] = entry
	}
	return out
}

// Restore merges a previously saved snapshot into the table, overwriting
// any entries that collide by hash.
func (tt *TranspositionTable) Restore(entries map[uint64]Entry) {
	for hash, entry := range entries {
		tt.table[hash] = entry
	}
}

// Clear empties the table.
func (tt *TranspositionTable) Clear() {
	tt.table = make(map[uint64]Entry)
	tt.hits = 0
	tt.probes = 0
}

// Len returns the number of entries currently stored in the table.
func (tt *TranspositionTable) Len() int {
	return len(tt.table)
}

// HashFull returns the permille (parts per thousand) of a nominal 1
// million slot table that is filled, for UCI "info hashfull" reporting.
func (tt *TranspositionTable) HashFull() int {
	const nominal = 1_000_000
	used := len(tt.table)
	if used > nominal {
		used = nominal
	}
	return used * 1000 / nominal
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// calcNodeType classifies a stored score against the bounds in force
// when negamax was entered, before this call's own widening of alpha.
func calcNodeType(score, alphaOriginal, beta int) TTFlag {
	if score >= beta {
		return TTLowerBound
	}
	if score <= alphaOriginal {
		return TTUpperBound
	}
	return TTExact
}

// PrincipalVariation follows entry.Moves[0] from pos, pushing moves and
// looking up the resulting position in tt, until the key is absent. It
// is used for logging and testing only — not by the search itself.
func PrincipalVariation(tt *TranspositionTable, pos *board.Position, maxLen int) []board.Move {
	work := pos.Copy()
	pv := make([]board.Move, 0, maxLen)
	for len(pv) < maxLen {
		entry, ok := tt.Probe(work.Hash)
		if !ok || len(entry.Moves) == 0 {
			break
		}
		move := entry.Moves[0]
		undo := work.MakeMove(move)
		if !undo.Valid {
			break
		}
		pv = append(pv, move)
	}
	return pv
}
