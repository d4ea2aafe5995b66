package tablebase

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/chessplay/internal/board"
)

// maxConcurrentProbes bounds how many moves SelectEndgameMove probes at
// once, so a position with many legal moves doesn't open one network
// request per move against a remote prober.
const maxConcurrentProbes = 8

// SimpleWDL folds the five-valued WDL scale down to the sign the search
// cares about: a plain +1/0/-1 from the perspective of the side to move
// in the probed position. Cursed wins and blessed losses are safety
// margins against the fifty-move rule, not a distinct outcome the search
// should plan around, so both fold to their nearer simple value.
func SimpleWDL(wdl WDL) int {
	switch wdl {
	case WDLWin, WDLCursedWin:
		return 1
	case WDLLoss, WDLBlessedLoss:
		return -1
	default:
		return 0
	}
}

// candidateResult is one legal move's probed outcome, from the mover's
// opponent's perspective (i.e. the position after the move is made).
type candidateResult struct {
	move board.Move
	dtz  int
	ok   bool
}

// SelectEndgameMove probes every legal move from pos concurrently and
// picks the one that plays the won or lost position correctly: when
// winning it minimizes the opponent's reported DTZ (drives fastest
// toward a zeroing move that locks in progress), and when losing it
// maximizes the opponent's DTZ (delays the zeroing move as long as
// possible, the only defense against an already-lost position). This is
// the corrected comparator; naively maximizing DTZ regardless of which
// side is winning picks the slowest win and the fastest loss.
func SelectEndgameMove(ctx context.Context, prober Prober, pos *board.Position, winning bool) (board.Move, bool) {
	legal := pos.GenerateLegalMoves()
	if legal.Len() == 0 {
		return board.NoMove, false
	}

	moves := make([]board.Move, legal.Len())
	for i := 0; i < legal.Len(); i++ {
		moves[i] = legal.Get(i)
	}

	results := make([]candidateResult, len(moves))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)

	var mu sync.Mutex
	for i, m := range moves {
		i, m := i, m
		g.Go(func() error {
			child := pos.Copy()
			undo := child.MakeMove(m)
			if !undo.Valid {
				child.UnmakeMove(m, undo)
				return nil
			}
			result := prober.Probe(child)
			mu.Lock()
			results[i] = candidateResult{move: m, dtz: result.DTZ, ok: result.Found}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	best := board.NoMove
	bestDTZ := 0
	haveBest := false
	for _, r := range results {
		if !r.ok {
			continue
		}
		if !haveBest {
			best, bestDTZ, haveBest = r.move, r.dtz, true
			continue
		}
		if winning && r.dtz < bestDTZ {
			best, bestDTZ = r.move, r.dtz
		} else if !winning && r.dtz > bestDTZ {
			best, bestDTZ = r.move, r.dtz
		}
	}

	return best, haveBest
}
