package engine

import (
	"testing"
	"time"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/tablebase"
)

// fixedWDLProber is a tablebase.Prober stub that reports the same WDL
// for every position, for exercising probeTablebase's sign handling
// without a live network call.
type fixedWDLProber struct {
	wdl tablebase.WDL
}

func (p fixedWDLProber) Probe(pos *board.Position) tablebase.ProbeResult {
	return tablebase.ProbeResult{Found: true, WDL: p.wdl}
}

func (p fixedWDLProber) ProbeRoot(pos *board.Position) tablebase.RootResult {
	return tablebase.RootResult{Found: true, WDL: p.wdl}
}

func (p fixedWDLProber) MaxPieces() int { return 6 }
func (p fixedWDLProber) Available() bool { return true }

// TestPerftDepths covers spec property 5: move-generator sanity via the
// well-known starting-position node counts.
func TestPerftDepths(t *testing.T) {
	eng := NewEngine(1)
	pos := board.NewPosition()

	want := map[int]uint64{1: 20, 2: 400, 3: 8902, 4: 197281}
	for depth, expected := range want {
		if got := eng.Perft(pos, depth); got != expected {
			t.Errorf("perft(%d) = %d, want %d", depth, got, expected)
		}
	}
}

// TestProbeTablebaseIsSignCorrectForBlackToMove guards against
// double-applying sideSign to a WDL value that tablebase.SimpleWDL
// already reports relative to the side to move: a side-to-move-winning
// result must score as a win for whichever side is on move, not just
// for White.
func TestProbeTablebaseIsSignCorrectForBlackToMove(t *testing.T) {
	// Black to move, Black is the side tablebase.WDLWin reports as winning.
	pos, err := board.ParseFEN("8/6k1/2r5/8/8/2K5/6P1/8 b - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(1))
	s.pos = pos
	s.SetTablebase(fixedWDLProber{wdl: tablebase.WDLWin}, true)

	score, ok := s.probeTablebase()
	if !ok {
		t.Fatal("expected probeTablebase to resolve")
	}
	if score != MateScore {
		t.Errorf("probeTablebase() = %d for a side-to-move win, want %d (the negamax convention: positive means the side to move is winning)", score, MateScore)
	}
}

// TestQuiescenceValueScenarioS5 is the literal end-to-end scenario S5:
// from the given position, quiesce(-10^6, 10^6) must equal 565.
func TestQuiescenceValueScenarioS5(t *testing.T) {
	pos, err := board.ParseFEN("rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(1))
	s.pos = pos

	if got := s.quiesce(-1000000, 1000000); got != 565 {
		t.Errorf("quiesce(-1e6, 1e6) = %d, want 565", got)
	}
}

// TestTerminalShortCircuitScenarioS6 is the literal end-to-end scenario
// S6: from a checkmated position, the search commits no decision (the
// initial legal-move list is empty, so the guaranteed non-null seed
// never fires, and negamax's terminal branch returns without storing a
// move in the transposition table).
func TestTerminalShortCircuitScenarioS6(t *testing.T) {
	// Fool's mate: White to move, checkmated.
	pos, err := board.ParseFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	if pos.GenerateLegalMoves().Len() != 0 {
		t.Fatal("expected a checkmated position with no legal moves")
	}

	s := NewSearcher(NewTranspositionTable(1))
	s.IterativeDeepen(pos, 5, nil)

	if s.Decision() != board.NoMove {
		t.Errorf("expected no committed decision from a checkmated position, got %v", s.Decision())
	}
}

// TestMateInThreeScenarioS3 is the literal end-to-end scenario S3.
func TestMateInThreeScenarioS3(t *testing.T) {
	pos, err := board.ParseFEN("r7/3bb1kp/q4p1N/1pnPp1np/2p4Q/2P5/1PB3P1/2B2RK1 w - - 1 0")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(32))
	s.IterativeDeepen(pos, 5, nil)

	want := mustParseUCIMove(t, pos, "h4g5")
	if s.Decision() != want {
		t.Errorf("decision = %v, want %v (h4g5)", s.Decision(), want)
	}
}

// TestMateInTwoScenarioS4 is the literal end-to-end scenario S4.
func TestMateInTwoScenarioS4(t *testing.T) {
	pos, err := board.ParseFEN("8/2k2p2/2b3p1/P1p1Np2/1p3b2/1P1K4/5r2/R3R3 b - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(32))
	s.IterativeDeepen(pos, 3, nil)

	want := mustParseUCIMove(t, pos, "c6b5")
	if s.Decision() != want {
		t.Errorf("decision = %v, want %v (c6b5)", s.Decision(), want)
	}
}

// TestMonotoneMateDepth covers spec property 8: on a forced-mate
// position, the absolute score reaches 100000 by the mate depth.
func TestMonotoneMateDepth(t *testing.T) {
	pos, err := board.ParseFEN("8/2k2p2/2b3p1/P1p1Np2/1p3b2/1P1K4/5r2/R3R3 b - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	s := NewSearcher(NewTranspositionTable(32))
	s.IterativeDeepen(pos, 3, nil)

	log := s.DecisionLog()
	if len(log) == 0 {
		t.Fatal("expected a non-empty decision log")
	}
	last := log[len(log)-1]
	if abs(last.Score) < MateScore {
		t.Errorf("final depth score %d does not reach mate magnitude %d", last.Score, MateScore)
	}
}

// TestCancellationYieldsLastCompletedDecision covers spec property 7:
// after Stop is signaled, the search returns promptly with the decision
// from the last fully completed depth, never NoMove for a non-terminal
// position.
func TestCancellationYieldsLastCompletedDecision(t *testing.T) {
	pos := board.NewPosition()
	s := NewSearcher(NewTranspositionTable(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.IterativeDeepen(pos, MaxPly, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("search did not terminate promptly after Stop")
	}

	if s.Decision() == board.NoMove {
		t.Error("expected a committed decision from a non-terminal position after cancellation")
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// mustParseUCIMove resolves a UCI long-algebraic move string against
// pos's legal moves, the way internal/uci's parser does.
func mustParseUCIMove(t *testing.T, pos *board.Position, s string) board.Move {
	t.Helper()
	from, err := board.ParseSquare(s[0:2])
	if err != nil {
		t.Fatalf("ParseSquare(%s): %v", s[0:2], err)
	}
	to, err := board.ParseSquare(s[2:4])
	if err != nil {
		t.Fatalf("ParseSquare(%s): %v", s[2:4], err)
	}

	moves := pos.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if m.From() == from && m.To() == to {
			return m
		}
	}
	t.Fatalf("no legal move %s in position", s)
	return board.NoMove
}
