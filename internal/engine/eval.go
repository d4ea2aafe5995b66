// Package engine implements the chess AI search engine.
package engine

import (
	"fmt"

	"github.com/hailam/chessplay/internal/board"
)

// Evaluation constants
const (
	PawnValue   = 100
	KnightValue = 320
	BishopValue = 330
	RookValue   = 500
	QueenValue  = 900
	KingValue   = 20000
)

// Piece values array for quick lookup
var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, KingValue, 0}

// Piece-Square Tables (PST) for positional evaluation.
// Values are from White's perspective, laid out rank 8 first (index 0 is
// a8), so White's squares are flipped with Square.Mirror() before lookup
// and Black's squares index the table directly.

var pawnPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPST = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopPST = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookPST = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenPST = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

// kingMiddleGamePST is shared by the Opening and MiddleGame stages: the
// original evaluator maps both to the identical KING_MIDDLEGAME table,
// not two distinct tables.
var kingMiddleGamePST = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingEndgamePST = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

var psts = [...][64]int{
	board.Pawn:   pawnPST,
	board.Knight: knightPST,
	board.Bishop: bishopPST,
	board.Rook:   rookPST,
	board.Queen:  queenPST,
}

// GameStage classifies a position by how much material remains, the way
// the piece-square tables pick a king table.
type GameStage int

const (
	Opening GameStage = iota
	MiddleGame
	EndGame
)

// DetermineGameStage classifies pos by fullmove number and piece count:
// still early and nearly full-strength is Opening, heavily reduced
// material is EndGame, everything else is MiddleGame. Crude on purpose —
// it exists only to pick a king PST and to gate the opening-book probe,
// not to drive any positional judgment of its own.
func DetermineGameStage(pos *board.Position) GameStage {
	pieceCount := pos.AllOccupied.PopCount()
	switch {
	case pos.FullMoveNumber < 10 && pieceCount > 14:
		return Opening
	case pieceCount < 12:
		return EndGame
	default:
		return MiddleGame
	}
}

func kingTable(stage GameStage) *[64]int {
	switch stage {
	case EndGame:
		return &kingEndgamePST
	default:
		return &kingMiddleGamePST
	}
}

// Feature computes one term of the evaluation, from White's point of
// view, in centipawns.
type Feature func(pos *board.Position) int

// LinearEvaluation sums a list of weighted features, mirroring the
// additive design of a simple linear position evaluator: every feature
// returns a White-relative centipawn score, scaled by its weight, and
// summed. A mismatch between the number of features and weights is a
// construction-time bug, not a runtime condition to recover from, so it
// panics immediately rather than silently truncating either list.
type LinearEvaluation struct {
	features []Feature
	weights  []float64
	names    []string
}

// NewLinearEvaluation creates an evaluator with no features registered.
func NewLinearEvaluation() *LinearEvaluation {
	return &LinearEvaluation{}
}

// AddFeature registers a weighted feature. Every caller passes the weight
// explicitly; 1.0 leaves a term unscaled.
func (e *LinearEvaluation) AddFeature(name string, f Feature, weight float64) {
	e.features = append(e.features, f)
	e.weights = append(e.weights, weight)
	e.names = append(e.names, name)
	e.checkConsistency()
}

func (e *LinearEvaluation) checkConsistency() {
	if len(e.features) != len(e.weights) {
		panic(fmt.Sprintf("engine: evaluation feature/weight mismatch: %d features, %d weights", len(e.features), len(e.weights)))
	}
}

// Calculate returns the terminal utility for a finished game, or the
// weighted sum of every registered feature otherwise.
func (e *LinearEvaluation) Calculate(pos *board.Position) int {
	if pos.GameOver() {
		return utility(pos)
	}

	total := 0.0
	for i, f := range e.features {
		total += float64(f(pos)) * e.weights[i]
	}
	return int(total)
}

// utility scores a finished game from White's perspective: a large
// constant for a decisive checkmate, zero for any drawn terminal state.
func utility(pos *board.Position) int {
	if pos.IsCheckmate() {
		if pos.SideToMove == board.White {
			return -MateScore
		}
		return MateScore
	}
	return 0
}

// materialHeuristic sums signed piece values across the board.
func materialHeuristic(pos *board.Position) int {
	score := 0
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		for pt := board.Pawn; pt <= board.King; pt++ {
			score += sign * pieceValues[pt] * pos.Pieces[c][pt].PopCount()
		}
	}
	return score
}

// pieceSquareHeuristic sums each piece's table value, mirrored for
// White, using the king table selected by the position's game stage.
func pieceSquareHeuristic(pos *board.Position) int {
	stage := DetermineGameStage(pos)
	king := kingTable(stage)

	score := 0
	for c := board.White; c <= board.Black; c++ {
		sign := 1
		if c == board.Black {
			sign = -1
		}
		for pt := board.Pawn; pt <= board.King; pt++ {
			bb := pos.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				pstSq := sq.Mirror()
				if c == board.Black {
					pstSq = sq
				}
				if pt == board.King {
					score += sign * king[pstSq]
				} else {
					score += sign * psts[pt][pstSq]
				}
			}
		}
	}
	return score
}

// defaultEvaluation is the evaluator used by the search: material plus
// piece-square tables, each weighted 1.0, registered in that order.
var defaultEvaluation = newDefaultEvaluation()

func newDefaultEvaluation() *LinearEvaluation {
	e := NewLinearEvaluation()
	e.AddFeature("material", materialHeuristic, 1.0)
	e.AddFeature("piece_square_tables", pieceSquareHeuristic, 1.0)
	return e
}

// Evaluate returns the static evaluation of the position from White's
// perspective, in centipawns.
func Evaluate(pos *board.Position) int {
	return defaultEvaluation.Calculate(pos)
}
