package engine

import (
	"context"
	"log"
	"math/rand"
	"sync/atomic"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/book"
	"github.com/hailam/chessplay/internal/tablebase"
)

// Search constants. MateScore is the evaluation's terminal utility
// magnitude (spec §3): a search that returns a score at or beyond this
// value has proven a forced mate.
const (
	Infinity  = 1 << 20
	MateScore = 100000
	MaxPly    = 256
)

// MaxTablebasePieces bounds the endgame-probe gate in negamax (spec
// §4.4.2 step 6). The Prober interface's own MaxPieces may be larger —
// the search only consults it in the regime this module is specified to
// cover, regardless of what the underlying prober could answer.
const MaxTablebasePieces = 4

// DepthDecision is one entry of a searcher's decision log: the best move
// and score produced by a fully completed iterative-deepening depth.
// Kept as an audit trail the way spec §3 describes the searcher's
// "decision stack".
type DepthDecision struct {
	Depth int
	Move  board.Move
	Score int
}

// Searcher runs iterative-deepening alpha-beta negamax search with
// quiescence extension against a shared transposition table. A Searcher
// is exclusively owned by one search at a time (spec §5); it is not
// safe for concurrent Search/IterativeDeepen calls.
type Searcher struct {
	pos       *board.Position
	tt        *TranspositionTable
	book      *book.Book
	tablebase tablebase.Prober

	probeBook    bool
	probeEndgame bool

	nodes    uint64
	stopFlag atomic.Bool

	decision    board.Move
	decisionLog []DepthDecision
}

// NewSearcher creates a searcher over the given transposition table.
func NewSearcher(tt *TranspositionTable) *Searcher {
	return &Searcher{tt: tt}
}

// SetBook attaches an opening book and toggles whether IterativeDeepen
// consults it (spec §4.4.1 step 2's "opening-probes enabled" flag).
func (s *Searcher) SetBook(b *book.Book, enabled bool) {
	s.book = b
	s.probeBook = enabled
}

// SetTablebase attaches a tablebase prober and toggles whether negamax
// consults it (spec §4.4.2 step 6's "endgame-probes enabled" flag).
func (s *Searcher) SetTablebase(tb tablebase.Prober, enabled bool) {
	s.tablebase = tb
	s.probeEndgame = enabled
}

// Stop sets the cooperative stop signal. One-way: never cleared within a
// single search invocation (spec §5).
func (s *Searcher) Stop() { s.stopFlag.Store(true) }

// Stopped reports whether the stop signal is set.
func (s *Searcher) Stopped() bool { return s.stopFlag.Load() }

// Nodes returns the number of nodes visited by the most recent search.
func (s *Searcher) Nodes() uint64 { return s.nodes }

// Decision returns the last committed best move: the move from the last
// iterative-deepening depth that completed before the stop signal was
// observed (spec invariant 4), or an opening-book move if one was used.
func (s *Searcher) Decision() board.Move { return s.decision }

// DecisionLog returns a copy of the per-depth decision audit trail.
func (s *Searcher) DecisionLog() []DepthDecision {
	return append([]DepthDecision(nil), s.decisionLog...)
}

func (s *Searcher) reset() {
	s.stopFlag.Store(false)
	s.nodes = 0
	s.decision = board.NoMove
	s.decisionLog = nil
}

// IterativeDeepen implements spec §4.4.1: it runs alpha-beta search at
// increasing depths starting from 1, calling onDepth after each fully
// completed depth with that depth's (move, score, nodes so far). It
// returns when the stop signal is observed, when maxDepth is exceeded,
// or when a depth's score proves a forced mate (|score| >= MateScore).
// onDepth may be nil.
func (s *Searcher) IterativeDeepen(pos *board.Position, maxDepth int, onDepth func(DepthDecision, uint64)) {
	s.pos = pos
	s.reset()

	if s.probeBook && s.book != nil && DetermineGameStage(pos) == Opening {
		if moves := s.book.LegalMoves(pos); len(moves) > 0 {
			move := moves[rand.Intn(len(moves))]
			s.decision = move
			s.decisionLog = append(s.decisionLog, DepthDecision{Move: move})
			s.Stop()
			return
		}
	}

	// Guarantee a non-null decision even if the stop signal arrives
	// before depth 1 finishes (spec §4.4.1 step 3).
	legal := pos.GenerateLegalMoves()
	if legal.Len() > 0 {
		s.decision = legal.Get(0)
	}

	for depth := 1; depth <= maxDepth; depth++ {
		move, score := s.AlphaBetaSearch(depth)
		if s.stopFlag.Load() {
			return
		}

		decision := DepthDecision{Depth: depth, Move: move, Score: score}
		if move != board.NoMove {
			s.decision = move
		}
		s.decisionLog = append(s.decisionLog, decision)
		if onDepth != nil {
			onDepth(decision, s.nodes)
		}

		if score >= MateScore || score <= -MateScore {
			return
		}
	}
}

// AlphaBetaSearch implements spec §4.4.2's αβ_search: it runs negamax
// over the full window and returns the best move recorded in the
// transposition table for pos alongside the root score.
func (s *Searcher) AlphaBetaSearch(depth int) (board.Move, int) {
	score := s.negamax(depth, -Infinity, Infinity)
	entry, ok := s.tt.Probe(s.pos.Hash)
	if !ok {
		return board.NoMove, score
	}
	return entry.BestMove(), score
}

func sideSign(pos *board.Position) int {
	if pos.SideToMove == board.White {
		return 1
	}
	return -1
}

// negamax implements spec §4.4.2 exactly: TT probe and bound narrowing,
// cooperative stop check, terminal and tablebase short-circuits,
// quiescence at the horizon, and fail-hard child exploration that
// re-sorts and stores the examined moves for the next iteration's reuse.
func (s *Searcher) negamax(depth, alpha, beta int) int {
	alphaOriginal := alpha

	entry, found := s.tt.Probe(s.pos.Hash)
	var reuseMoves []board.Move
	if found {
		reuseMoves = entry.Moves
		if entry.Depth >= depth {
			switch entry.Flag {
			case TTExact:
				return entry.Score
			case TTLowerBound:
				if entry.Score > alpha {
					alpha = entry.Score
				}
			case TTUpperBound:
				if entry.Score < beta {
					beta = entry.Score
				}
			}
		}
	}

	sign := sideSign(s.pos)

	s.nodes++
	if s.stopFlag.Load() {
		return Evaluate(s.pos) * sign
	}

	if s.pos.GameOver() {
		return Evaluate(s.pos) * sign
	}

	if s.probeEndgame && s.tablebase != nil && s.tablebase.Available() &&
		tablebase.CountPieces(s.pos) <= MaxTablebasePieces {
		if score, ok := s.probeTablebase(); ok {
			return score
		}
	}

	if depth <= 0 {
		return s.quiesce(alpha, beta)
	}

	var ordered []ScoredMove
	if len(reuseMoves) > 0 {
		ordered = make([]ScoredMove, len(reuseMoves))
		for i, m := range reuseMoves {
			ordered[i] = ScoredMove{Move: m, AssignedValue: sentinelAssignedValue}
		}
	} else {
		ordered = Prioritized(s.pos)
	}

	if len(ordered) == 0 {
		if s.pos.InCheck() {
			return -MateScore
		}
		return 0
	}

	examined := make([]ScoredMove, 0, len(ordered))
	stoppedMidNode := false

	for _, sm := range ordered {
		undo := s.pos.MakeMove(sm.Move)
		if !undo.Valid {
			s.pos.UnmakeMove(sm.Move, undo)
			continue
		}

		v := -s.negamax(depth-1, -beta, -alpha)
		s.pos.UnmakeMove(sm.Move, undo)

		sm.AssignedValue = v
		examined = append(examined, sm)

		if s.stopFlag.Load() {
			stoppedMidNode = true
			break
		}

		if v >= beta {
			alpha = beta
			break
		}
		if v > alpha {
			alpha = v
		}
	}

	if !stoppedMidNode {
		sortByAssignedValueDesc(examined)
		moves := make([]board.Move, len(examined))
		for i, sm := range examined {
			moves[i] = sm.Move
		}
		s.tt.Store(s.pos.Hash, depth, alpha, calcNodeType(alpha, alphaOriginal, beta), moves)
	}

	return alpha
}

func sortByAssignedValueDesc(moves []ScoredMove) {
	for i := 1; i < len(moves); i++ {
		for j := i; j > 0 && moves[j].AssignedValue > moves[j-1].AssignedValue; j-- {
			moves[j], moves[j-1] = moves[j-1], moves[j]
		}
	}
}

// probeTablebase implements spec §4.4.2 step 6 and §4.6: it probes the
// tablebase, and on success stores a resolved (infinite-depth) entry and
// returns its signed score. A probe that finds nothing (a network error
// or an out-of-range position) returns control to the normal search
// without logging; a panic from the probe or move-selection path is
// recovered here, logged, and likewise falls back to the normal search,
// so neither is fatal (spec §7).
func (s *Searcher) probeTablebase() (score int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: tablebase probe failed, falling back to search: %v", r)
			score, ok = 0, false
		}
	}()

	result := s.tablebase.Probe(s.pos)
	if !result.Found {
		return 0, false
	}

	// SimpleWDL is already relative to the side to move at s.pos, the
	// same convention negamax returns scores in elsewhere (e.g. the
	// Evaluate(s.pos) * sign terminal case), so no further sign
	// adjustment is applied here: spec.md §4.6's score = 100000 * wdl *
	// sign formula is defined against a White-relative wdl, and
	// (wdl*sign)*sign collapses to wdl for this side-to-move-relative wdl.
	wdl := tablebase.SimpleWDL(result.WDL)
	signed := MateScore * wdl

	var moves []board.Move
	if wdl != 0 {
		winning := wdl > 0
		if move, found := tablebase.SelectEndgameMove(context.Background(), s.tablebase, s.pos, winning); found {
			moves = []board.Move{move}
		}
	}

	s.tt.Store(s.pos.Hash, InfiniteDepth, signed, TTExact, moves)
	return signed, true
}

// quiesce implements spec §4.4.3: a minimal quiescence that explores
// only the single highest-priority capture at each node, extending the
// horizon just enough to avoid tactical blunders from a fixed-depth cut.
func (s *Searcher) quiesce(alpha, beta int) int {
	sign := sideSign(s.pos)

	s.nodes++
	if s.stopFlag.Load() {
		return Evaluate(s.pos) * sign
	}

	standPat := Evaluate(s.pos) * sign
	if standPat > beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	move, ok := BestCapture(s.pos)
	if !ok {
		return alpha
	}

	undo := s.pos.MakeMove(move)
	if !undo.Valid {
		s.pos.UnmakeMove(move, undo)
		return alpha
	}
	v := -s.quiesce(-beta, -alpha)
	s.pos.UnmakeMove(move, undo)

	if v >= beta {
		return beta
	}
	if v > alpha {
		alpha = v
	}
	return alpha
}
