// Package engine implements the chess AI search engine: iterative
// deepening alpha-beta negamax with quiescence (search.go), the
// transposition table it memoizes into (transposition.go), static move
// ordering (ordering.go), the material+PST evaluation (eval.go), and the
// time manager that bounds a search by wall clock (timeman.go). Engine
// is the glue that wires these together with the opening book and
// tablebase catalogue probes (spec.md §2's "data flow for one search").
package engine

import (
	"time"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/book"
	"github.com/hailam/chessplay/internal/storage"
	"github.com/hailam/chessplay/internal/tablebase"
)

// SearchInfo reports progress after each completed iterative-deepening
// depth, the way spec.md §6 describes per-depth UCI output.
type SearchInfo struct {
	Depth int
	Score int
	Nodes uint64
	Time  time.Duration
	PV    []board.Move
}

// SearchLimits bounds a non-UCI search: used by tests and by any
// embedder that wants a fixed depth or a plain move-time budget rather
// than the full clock-driven TimeManager path.
type SearchLimits struct {
	Depth    int           // 0 = no limit (bounded by MaxPly)
	MoveTime time.Duration // 0 = run until depth limit or a decision is reached
	Infinite bool          // run until Stop() is called
}

// Engine owns one Searcher and its transposition table across
// successive searches in the same game (spec.md §5: the table "may be
// passed between successive searches"), and wires the opening book and
// tablebase prober into it.
type Engine struct {
	tt       *TranspositionTable
	searcher *Searcher

	book      *book.Book
	probeBook bool

	tablebase    tablebase.Prober
	probeEndgame bool

	store *storage.Storage

	OnInfo func(SearchInfo)
}

// NewEngine creates a new engine with a fresh transposition table sized
// for roughly ttSizeMB megabytes (an initial map-size hint only; the
// table has no eviction and grows as needed, per spec.md §3).
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	return &Engine{
		tt:       tt,
		searcher: NewSearcher(tt),
	}
}

// SetStorage attaches a persistence layer for transposition-table
// snapshots (SaveSnapshot/LoadSnapshot). A nil store (the default)
// disables persistence without affecting search.
func (e *Engine) SetStorage(s *storage.Storage) {
	e.store = s
}

// LoadBook loads an opening book from a Polyglot file and enables
// opening-book probing.
func (e *Engine) LoadBook(filename string) error {
	b, err := book.LoadPolyglot(filename)
	if err != nil {
		return err
	}
	e.book = b
	e.probeBook = true
	return nil
}

// SetBook attaches an already-loaded opening book.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
	e.probeBook = b != nil
}

// SetOwnBook toggles whether the engine consults its opening book,
// independent of whether one is loaded (spec.md §4.4.1 step 2's
// "opening-probes enabled" flag, exposed as UCI's OwnBook option).
func (e *Engine) SetOwnBook(enabled bool) {
	e.probeBook = enabled
}

// HasBook returns true if an opening book is loaded.
func (e *Engine) HasBook() bool {
	return e.book != nil
}

// SetTablebase sets the tablebase prober and enables endgame probing.
func (e *Engine) SetTablebase(tb tablebase.Prober) {
	e.tablebase = tb
	e.probeEndgame = tb != nil
}

// SetEndgameProbes toggles whether negamax consults the tablebase,
// independent of whether one is configured (spec.md §4.4.2 step 6's
// "endgame-probes enabled" flag, exposed as UCI's EndgameProbes option).
func (e *Engine) SetEndgameProbes(enabled bool) {
	e.probeEndgame = enabled
}

// HasTablebase returns true if a tablebase prober is configured and
// reports itself available.
func (e *Engine) HasTablebase() bool {
	return e.tablebase != nil && e.tablebase.Available()
}

// TranspositionTable exposes the shared table, for callers (tests,
// logging) that want to inspect it directly.
func (e *Engine) TranspositionTable() *TranspositionTable {
	return e.tt
}

func (e *Engine) wireSearcher() {
	e.searcher.SetBook(e.book, e.probeBook)
	e.searcher.SetTablebase(e.tablebase, e.probeEndgame)
}

// Search runs a search with a generous default time budget, for simple
// embedding where a caller just wants "the best move" without tuning
// limits itself.
func (e *Engine) Search(pos *board.Position) board.Move {
	return e.SearchWithLimits(pos, SearchLimits{MoveTime: 3 * time.Second})
}

// SearchWithLimits runs iterative deepening directly against limits,
// without a UCI clock: used by tests and by embedders with their own
// time-budgeting policy. Reports per-depth progress through OnInfo if
// set.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	e.wireSearcher()

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	onDepth := e.depthCallback(pos, time.Now())

	if limits.Infinite || limits.MoveTime <= 0 {
		e.searcher.IterativeDeepen(pos, maxDepth, onDepth)
		return e.searcher.Decision()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.searcher.IterativeDeepen(pos, maxDepth, onDepth)
	}()

	timer := time.NewTimer(limits.MoveTime)
	select {
	case <-timer.C:
	case <-done:
		if !timer.Stop() {
			<-timer.C
		}
	}
	e.searcher.Stop()
	<-done

	return e.searcher.Decision()
}

// SearchWithUCILimits runs a search governed by the UCI "go" command's
// time controls, via a TimeManager implementing spec.md §4.5's
// allocate_time/perform_search contract. ply is the current game ply;
// the clock that applies is picked from pos's side to move, not from ply.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) board.Move {
	e.wireSearcher()

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	start := time.Now()
	onDepth := e.depthCallback(pos, start)

	return tm.PerformSearch(e.searcher, pos, maxDepth, onDepth)
}

// depthCallback builds the onDepth hook passed to IterativeDeepen: it
// reports SearchInfo through OnInfo after each completed depth,
// reconstructing the principal variation from the transposition table
// (spec.md §4.3's PV extraction, "used for logging... only").
func (e *Engine) depthCallback(pos *board.Position, start time.Time) func(DepthDecision, uint64) {
	return func(d DepthDecision, nodes uint64) {
		if e.OnInfo == nil {
			return
		}
		pv := PrincipalVariation(e.tt, pos, d.Depth)
		e.OnInfo(SearchInfo{
			Depth: d.Depth,
			Score: d.Score,
			Nodes: nodes,
			Time:  time.Since(start),
			PV:    pv,
		})
	}
}

// Stop signals the current search's cooperative stop flag (spec.md §5).
func (e *Engine) Stop() {
	e.searcher.Stop()
}

// Clear empties the transposition table, for UCI's "ucinewgame".
func (e *Engine) Clear() {
	e.tt.Clear()
}

// Perft counts leaf nodes at depth, for the "perft" debug command and
// for move-generator sanity tests (spec.md §8 property 5).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}
	return nodes
}

// Evaluate returns the static evaluation of a position (spec.md §4.1).
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// SaveSnapshot persists the current transposition table through the
// attached storage, so a later process can resume with a warm table
// (spec.md §5). A no-op when no storage is attached.
func (e *Engine) SaveSnapshot() error {
	if e.store == nil {
		return nil
	}
	snapshot := e.tt.Snapshot()
	records := make(map[uint64]storage.TTRecord, len(snapshot))
	for hash, entry := range snapshot {
		records[hash] = storage.TTRecord{
			Score: int32(entry.Score),
			Depth: int32(entry.Depth),
			Flag:  uint8(entry.Flag),
			Moves: entry.Moves,
		}
	}
	return e.store.SaveTranspositionTable(records)
}

// LoadSnapshot restores a previously saved transposition table through
// the attached storage, warming the table before the first search of a
// resumed game. A no-op when no storage is attached.
func (e *Engine) LoadSnapshot() error {
	if e.store == nil {
		return nil
	}
	records, err := e.store.LoadTranspositionTable()
	if err != nil {
		return err
	}
	entries := make(map[uint64]Entry, len(records))
	for hash, rec := range records {
		entries[hash] = Entry{
			Score: int(rec.Score),
			Depth: int(rec.Depth),
			Flag:  TTFlag(rec.Flag),
			Moves: rec.Moves,
		}
	}
	e.tt.Restore(entries)
	return nil
}

// ScoreToString renders a centipawn score as a human-readable string,
// collapsing mate scores to "Mate in N"/"Mated in N".
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100
	return sign + itoa(pawns) + "." + itoa(centipawns)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
