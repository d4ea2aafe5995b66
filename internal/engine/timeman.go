package engine

import (
	"time"

	"github.com/hailam/chessplay/internal/board"
)

// DefaultMovesToGo is the moves-to-go estimate used when a UCI "go"
// command gives no movestogo for a sudden-death time control. The
// original Klausfish TimeManager defaults to the same value
// (source/time_management.py's TimeManager.__init__).
const DefaultMovesToGo = 40

// Clock models spec.md §3's clock: a base time budget plus Fischer
// (unconditional) and Bronstein (conditional) increments and delay, with
// an optional chained next-phase clock keyed by the move number it takes
// over at. Only BaseTime/UnconditionalInc/ConditionalInc/MovesToGo feed
// AllocateTime's formula; Delay and Next are carried for completeness of
// the data model but the core's single-phase UCI integration does not
// exercise phase transitions.
type Clock struct {
	BaseTime         time.Duration
	UnconditionalInc time.Duration
	ConditionalInc   time.Duration
	Delay            time.Duration
	MovesToGo        int

	Next       *Clock
	NextAtMove int
}

// AllocateTime implements spec.md §4.5's allocate_time formula exactly:
// base_alloc = floor(available/moves_to_go) + unconditional_inc + conditional_inc,
// capped at half the available time.
func (c *Clock) AllocateTime() time.Duration {
	mtg := c.MovesToGo
	if mtg <= 0 {
		mtg = DefaultMovesToGo
	}

	baseAlloc := c.BaseTime/time.Duration(mtg) + c.UnconditionalInc + c.ConditionalInc
	cap := c.BaseTime / 2
	if baseAlloc < cap {
		return baseAlloc
	}
	return cap
}

// Spend deducts amount from the clock's base time, the way a real clock
// ticks down once a move has been played.
func (c *Clock) Spend(amount time.Duration) {
	c.BaseTime -= amount
}

// UCILimits carries the UCI "go" command's time-control parameters,
// bridging the protocol layer (internal/uci) to a Clock.
type UCILimits struct {
	Time      [2]time.Duration // indexed by board.Color: wtime, btime
	Inc       [2]time.Duration // winc, binc
	MovesToGo int
	MoveTime  time.Duration
	Depth     int
	Nodes     uint64
	Infinite  bool
}

// TimeManager translates a clock and a UCI "go" command into a wall-clock
// search budget, runs a Searcher for exactly that budget, and harvests
// the resulting decision (spec.md §4.5).
type TimeManager struct {
	clock       *Clock
	optimumTime time.Duration
	maximumTime time.Duration
	startTime   time.Time
	done        bool
}

// NewTimeManager creates a time manager with no search yet performed.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init prepares the manager for one "go" command. us is the side to move
// (selects which of limits.Time/Inc applies); ply is unused by the
// spec's formula but kept for API parity with callers that also want it
// for logging.
func (tm *TimeManager) Init(limits UCILimits, us board.Color, ply int) {
	tm.startTime = time.Now()
	tm.done = false

	if limits.MoveTime > 0 {
		tm.clock = nil
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	if limits.Infinite || limits.Time[us] <= 0 {
		tm.clock = nil
		tm.optimumTime = time.Hour
		tm.maximumTime = time.Hour
		return
	}

	tm.clock = &Clock{
		BaseTime:         limits.Time[us],
		UnconditionalInc: limits.Inc[us],
		MovesToGo:        limits.MovesToGo,
	}
	tm.optimumTime = tm.clock.AllocateTime()
	tm.maximumTime = tm.optimumTime
}

// AllocateTime returns the budget computed for the current "go" command.
func (tm *TimeManager) AllocateTime() time.Duration {
	return tm.optimumTime
}

// Elapsed returns the time elapsed since PerformSearch started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// ShouldStop reports whether the allocated budget has been exceeded.
func (tm *TimeManager) ShouldStop() bool {
	return tm.Elapsed() >= tm.maximumTime
}

// Done reports whether the most recent PerformSearch has finished.
func (tm *TimeManager) Done() bool {
	return tm.done
}

// PerformSearch implements spec.md §4.5's perform_search: it allocates a
// time budget, decrements the clock by that amount, starts s searching p
// in a goroutine, waits up to the budget for the searcher to either
// finish on its own (depth exhausted, forced mate, opening-book move) or
// be stopped, and returns the harvested decision. Matches §5's "fixed
// delay scheduler" description: the start event fires immediately, the
// stop event fires after the allocated budget, whichever of the two
// search-termination paths (timer or natural completion) comes first.
func (tm *TimeManager) PerformSearch(s *Searcher, pos *board.Position, maxDepth int, onDepth func(DepthDecision, uint64)) board.Move {
	tm.done = false

	budget := tm.optimumTime
	if tm.clock != nil {
		budget = tm.clock.AllocateTime()
		tm.clock.Spend(budget)
		tm.optimumTime = budget
		tm.maximumTime = budget
	}
	tm.startTime = time.Now()

	searchDone := make(chan struct{})
	go func() {
		defer close(searchDone)
		s.IterativeDeepen(pos, maxDepth, onDepth)
	}()

	timer := time.NewTimer(budget)
	select {
	case <-timer.C:
	case <-searchDone:
		if !timer.Stop() {
			<-timer.C
		}
	}

	s.Stop()
	<-searchDone
	tm.done = true

	return s.Decision()
}
