package tablebase

import (
	"context"
	"testing"

	"github.com/hailam/chessplay/internal/board"
)

func TestNoopProber(t *testing.T) {
	prober := NoopProber{}

	if prober.Available() {
		t.Error("NoopProber should not be available")
	}

	if prober.MaxPieces() != 0 {
		t.Errorf("NoopProber MaxPieces should be 0, got %d", prober.MaxPieces())
	}

	pos := board.NewPosition()
	result := prober.Probe(pos)
	if result.Found {
		t.Error("NoopProber should not find anything")
	}

	rootResult := prober.ProbeRoot(pos)
	if rootResult.Found {
		t.Error("NoopProber ProbeRoot should not find anything")
	}
}

func TestCountPieces(t *testing.T) {
	pos := board.NewPosition()
	count := CountPieces(pos)

	// Starting position has 32 pieces
	if count != 32 {
		t.Errorf("Starting position should have 32 pieces, got %d", count)
	}
}

func TestWDLToScore(t *testing.T) {
	tests := []struct {
		wdl      WDL
		ply      int
		positive bool // Should score be positive (winning)?
	}{
		{WDLWin, 0, true},
		{WDLWin, 10, true},
		{WDLCursedWin, 0, true},
		{WDLDraw, 0, false},
		{WDLBlessedLoss, 0, false},
		{WDLLoss, 0, false},
	}

	for _, tc := range tests {
		score := WDLToScore(tc.wdl, tc.ply)
		isPositive := score > 0

		if tc.positive && !isPositive {
			t.Errorf("WDL %d at ply %d should give positive score, got %d", tc.wdl, tc.ply, score)
		}
		if !tc.positive && tc.wdl != WDLDraw && isPositive {
			t.Errorf("WDL %d at ply %d should give non-positive score, got %d", tc.wdl, tc.ply, score)
		}
	}
}

func TestSimpleWDL(t *testing.T) {
	cases := []struct {
		wdl  WDL
		want int
	}{
		{WDLWin, 1},
		{WDLCursedWin, 1},
		{WDLDraw, 0},
		{WDLBlessedLoss, -1},
		{WDLLoss, -1},
	}
	for _, tc := range cases {
		if got := SimpleWDL(tc.wdl); got != tc.want {
			t.Errorf("SimpleWDL(%d) = %d, want %d", tc.wdl, got, tc.want)
		}
	}
}

func TestSelectEndgameMoveProberFindsNothing(t *testing.T) {
	pos, err := board.ParseFEN("8/8/8/4k3/8/8/8/4K3 b - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	prober := NoopProber{}
	if _, ok := SelectEndgameMove(context.Background(), prober, pos, true); ok {
		t.Error("expected no move selectable when the prober finds nothing")
	}
}

// hashDTZProber reports the child position's hash, modulo 1000, as its
// DTZ. It exists only so SelectEndgameMove's comparator (minimize when
// winning, maximize when losing) can be checked against an independently
// computed expectation.
type hashDTZProber struct{}

func (hashDTZProber) Probe(pos *board.Position) ProbeResult {
	return ProbeResult{Found: true, WDL: WDLWin, DTZ: int(pos.Hash % 1000)}
}
func (hashDTZProber) ProbeRoot(pos *board.Position) RootResult { return RootResult{Found: false} }
func (hashDTZProber) MaxPieces() int                           { return 6 }
func (hashDTZProber) Available() bool                          { return true }

func TestSelectEndgameMoveComparator(t *testing.T) {
	pos, err := board.ParseFEN("8/8/8/4k3/8/8/8/4K2R w K - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	legal := pos.GenerateLegalMoves()
	if legal.Len() == 0 {
		t.Fatal("expected at least one legal move")
	}

	wantMin, wantMax := -1, -1
	bestMinDTZ, bestMaxDTZ := 0, 0
	for i := 0; i < legal.Len(); i++ {
		m := legal.Get(i)
		child := pos.Copy()
		undo := child.MakeMove(m)
		if !undo.Valid {
			child.UnmakeMove(m, undo)
			continue
		}
		dtz := int(child.Hash % 1000)
		if wantMin == -1 || dtz < bestMinDTZ {
			wantMin, bestMinDTZ = i, dtz
		}
		if wantMax == -1 || dtz > bestMaxDTZ {
			wantMax, bestMaxDTZ = i, dtz
		}
	}

	prober := hashDTZProber{}

	winMove, ok := SelectEndgameMove(context.Background(), prober, pos, true)
	if !ok {
		t.Fatal("expected a move when winning")
	}
	if winMove != legal.Get(wantMin) {
		t.Errorf("winning selection = %v, want the minimal-DTZ move %v", winMove, legal.Get(wantMin))
	}

	loseMove, ok := SelectEndgameMove(context.Background(), prober, pos, false)
	if !ok {
		t.Fatal("expected a move when losing")
	}
	if loseMove != legal.Get(wantMax) {
		t.Errorf("losing selection = %v, want the maximal-DTZ move %v", loseMove, legal.Get(wantMax))
	}
}
