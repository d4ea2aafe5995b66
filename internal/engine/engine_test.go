package engine

import (
	"testing"
	"time"

	"github.com/hailam/chessplay/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	move := eng.SearchWithLimits(pos, SearchLimits{Depth: 4, MoveTime: 2 * time.Second})
	if move == board.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

func TestSearchRepeatedAcrossPositions(t *testing.T) {
	eng := NewEngine(16)

	fens := []string{
		board.StartFEN,
		"rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		"rnbqkbnr/ppp1pppp/8/3p4/3P4/8/PPP1PPPP/RNBQKBNR w KQkq d6 0 2",
	}

	for i, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("position %d: ParseFEN: %v", i, err)
		}

		move := eng.SearchWithLimits(pos, SearchLimits{Depth: 6, MoveTime: 500 * time.Millisecond})
		if move == board.NoMove {
			t.Errorf("position %d: search returned NoMove", i)
		}
	}
}

func TestSearchMultiplePositionTypes(t *testing.T) {
	eng := NewEngine(16)

	positions := []string{
		board.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", // Italian Game
		"8/8/8/4k3/8/4K3/4P3/8 w - - 0 1",                                   // KP endgame
	}

	for i, fen := range positions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("failed to parse position %d: %v", i, err)
		}

		move := eng.SearchWithLimits(pos, SearchLimits{Depth: 5, MoveTime: 300 * time.Millisecond})
		if move == board.NoMove && pos.GenerateLegalMoves().Len() > 0 {
			t.Errorf("position %d: search returned NoMove for a non-terminal position", i)
		} else if move != board.NoMove {
			t.Logf("position %d: best move = %s", i, move.String())
		}
	}
}

func TestSearchStopIsCooperative(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	move := eng.SearchWithLimits(pos, SearchLimits{MoveTime: 50 * time.Millisecond})
	if move == board.NoMove {
		t.Error("a tightly time-bounded search must still return a committed decision")
	}
}

func TestEvaluateSymmetric(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()
	if eng.Evaluate(pos) != 0 {
		t.Errorf("starting position should evaluate to 0 by symmetry, got %d", eng.Evaluate(pos))
	}
}

func TestPerftStartingPosition(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()

	// Well-known perft node counts for the starting position.
	want := map[int]uint64{
		1: 20,
		2: 400,
		3: 8902,
	}

	for depth, expected := range want {
		got := eng.Perft(pos, depth)
		if got != expected {
			t.Errorf("perft(%d) = %d, want %d", depth, got, expected)
		}
	}
}

func TestSnapshotRoundTripsThroughTranspositionTable(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()

	eng.SearchWithLimits(pos, SearchLimits{Depth: 3, MoveTime: time.Second})
	if eng.TranspositionTable().Len() == 0 {
		t.Fatal("expected search to populate the transposition table")
	}

	snapshot := eng.TranspositionTable().Snapshot()
	fresh := NewTranspositionTable(1)
	fresh.Restore(snapshot)

	if fresh.Len() != eng.TranspositionTable().Len() {
		t.Errorf("restored table has %d entries, want %d", fresh.Len(), eng.TranspositionTable().Len())
	}
}

func TestClearEmptiesTable(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()

	eng.SearchWithLimits(pos, SearchLimits{Depth: 3, MoveTime: time.Second})
	if eng.TranspositionTable().Len() == 0 {
		t.Fatal("expected search to populate the transposition table")
	}

	eng.Clear()
	if eng.TranspositionTable().Len() != 0 {
		t.Errorf("expected empty table after Clear, got %d entries", eng.TranspositionTable().Len())
	}
}
