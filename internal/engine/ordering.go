package engine

import (
	"sort"

	"github.com/hailam/chessplay/internal/board"
)

// kingValueForOrdering is the nominal king value used only in the
// move-ordering priority formula below; it is unrelated to the
// evaluation's material weights.
const kingValueForOrdering = float64(KingValue)

// sentinelAssignedValue is strictly below any achievable negamax score,
// so a move never explored at a node still sorts last.
const sentinelAssignedValue = -100001

// ScoredMove pairs a move with its static ordering priority. AssignedValue
// is filled in by the search as each move is explored at a node, then used
// to re-sort the list for storage in the transposition table so the next
// iterative-deepening pass reuses a refined order (spec's PV-first reuse).
type ScoredMove struct {
	Move          board.Move
	Priority      float64
	AssignedValue int
}

// priority assigns a static ordering score to a move in the given
// position: checks first, then captures ranked by MVV-LVA with a
// fractional tiebreak between captures of equal victim, then pawn
// advances, then everything else.
func priority(pos *board.Position, m board.Move) float64 {
	if givesCheck(pos, m) {
		return 21
	}

	if m.IsCapture(pos) {
		var victimValue float64
		if m.IsEnPassant() {
			victimValue = float64(PawnValue)
		} else {
			victim := pos.PieceAt(m.To())
			victimValue = float64(pieceValues[victim.Type()])
		}

		attacker := pos.PieceAt(m.From())
		aggressorValue := float64(pieceValues[attacker.Type()])

		return victimValue + (kingValueForOrdering-aggressorValue)/kingValueForOrdering
	}

	if isPawnAdvance(pos, m) {
		return 1
	}

	return 0
}

// isPawnAdvance reports whether m is a non-capturing pawn push.
func isPawnAdvance(pos *board.Position, m board.Move) bool {
	piece := pos.PieceAt(m.From())
	return piece.Type() == board.Pawn && !m.IsCapture(pos)
}

// givesCheck reports whether making m leaves the opponent in check.
func givesCheck(pos *board.Position, m board.Move) bool {
	undo := pos.MakeMove(m)
	if !undo.Valid {
		return false
	}
	check := pos.InCheck()
	pos.UnmakeMove(m, undo)
	return check
}

// Prioritized returns every legal move in pos annotated with its static
// priority and sorted from highest to lowest priority.
func Prioritized(pos *board.Position) []ScoredMove {
	moves := pos.GenerateLegalMoves()
	scored := make([]ScoredMove, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		scored[i] = ScoredMove{Move: m, Priority: priority(pos, m), AssignedValue: sentinelAssignedValue}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Priority > scored[j].Priority
	})
	return scored
}

// PrioritizedWithTTMove is like Prioritized but places ttMove first,
// ahead of every other ordering consideration, when it is present among
// the legal moves.
func PrioritizedWithTTMove(pos *board.Position, ttMove board.Move) []ScoredMove {
	scored := Prioritized(pos)
	if ttMove == board.NoMove {
		return scored
	}
	for i, sm := range scored {
		if sm.Move == ttMove {
			copy(scored[1:i+1], scored[0:i])
			scored[0] = sm
			break
		}
	}
	return scored
}

// QuiescenceMoves returns the captures available in pos, sorted by
// MVV-LVA priority from highest to lowest.
func QuiescenceMoves(pos *board.Position) []ScoredMove {
	moves := pos.GenerateCaptures()
	scored := make([]ScoredMove, 0, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if !m.IsCapture(pos) {
			continue
		}
		scored = append(scored, ScoredMove{Move: m, Priority: priority(pos, m), AssignedValue: sentinelAssignedValue})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Priority > scored[j].Priority
	})
	return scored
}

// BestCapture returns the single highest-priority capture available in
// pos, and false if no captures are available.
func BestCapture(pos *board.Position) (board.Move, bool) {
	moves := QuiescenceMoves(pos)
	if len(moves) == 0 {
		return board.NoMove, false
	}
	return moves[0].Move, true
}
