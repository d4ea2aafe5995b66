// Package uci implements the Universal Chess Interface protocol
// (spec.md §6): a line-oriented stdin/stdout command loop that drives
// one engine.Engine through a game.
package uci

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/engine"
	"github.com/hailam/chessplay/internal/storage"
	"github.com/hailam/chessplay/internal/tablebase"
)

// UCI drives one engine.Engine through the Universal Chess Interface
// protocol: it owns the current position and the in-flight search, and
// translates "go"/"setoption" into calls on the engine ("stop" is
// accepted and ignored).
type UCI struct {
	engine   *engine.Engine
	position *board.Position
	ply      int

	store *storage.Storage

	searching     bool
	searchDone    chan struct{}
	stopRequested atomic.Bool
}

// New creates a UCI protocol handler over eng. store, if non-nil, is
// consulted as the tablebase's durable probe cache once EndgameProbes is
// enabled; New does not attach it to eng (see Engine.SetStorage).
func New(eng *engine.Engine, store *storage.Storage) *UCI {
	return &UCI{
		engine:   eng,
		position: board.NewPosition(),
		store:    store,
	}
}

// Run reads commands from stdin until "quit" or EOF.
func (u *UCI) Run() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			// Deliberate no-op: spec.md §6 treats "stop" as advisory only;
			// the cooperative search already yields through its own depth
			// budget, and committing to an early cutover here would race
			// the in-flight decision log.
		case "quit":
			u.handleQuit()
		case "setoption":
			u.handleSetOption(args)
		case "d":
			fmt.Println(u.position.String())
			fmt.Printf("Evaluation: %s\n", engine.ScoreToString(u.engine.Evaluate(u.position)))
		case "perft":
			u.handlePerft(args)
		default:
			fmt.Printf("Error (unknown command): %s\n", line)
		}
	}
}

func (u *UCI) handleUCI() {
	fmt.Println("id name ChessPlay")
	fmt.Println("id author ChessPlay Team")
	fmt.Println()
	fmt.Println("option name Hash type spin default 64 min 1 max 4096")
	fmt.Println("option name OwnBook type check default false")
	fmt.Println("option name BookFile type string default <empty>")
	fmt.Println("option name EndgameProbes type check default false")
	fmt.Println("uciok")
}

func (u *UCI) handleNewGame() {
	u.engine.Clear()
	u.position = board.NewPosition()
	u.ply = 0
}

// handlePosition parses and sets up a position:
//
//	position startpos
//	position startpos moves e2e4 e7e5
//	position fen <fen>
//	position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	var moveStart int

	switch args[0] {
	case "startpos":
		u.position = board.NewPosition()
		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	case "fen":
		fenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				fenEnd = i + 1
				break
			}
		}
		fenStr := strings.Join(args[1:fenEnd], " ")
		pos, err := board.ParseFEN(fenStr)
		if err != nil {
			fmt.Printf("Error (invalid fen): %v\n", err)
			return
		}
		u.position = pos

		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	default:
		return
	}

	u.ply = 0
	if moveStart < len(args) {
		for _, moveStr := range args[moveStart:] {
			move := u.parseMove(moveStr)
			if move == board.NoMove {
				fmt.Printf("Error (invalid move): %s\n", moveStr)
				return
			}
			u.position.MakeMove(move)
			u.ply++
		}
	}
}

// parseMove resolves a UCI long-algebraic move string (e.g. "e2e4",
// "e7e8q") against the position's legal moves.
func (u *UCI) parseMove(moveStr string) board.Move {
	if len(moveStr) < 4 {
		return board.NoMove
	}

	fromFile := int(moveStr[0] - 'a')
	fromRank := int(moveStr[1] - '1')
	toFile := int(moveStr[2] - 'a')
	toRank := int(moveStr[3] - '1')

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 ||
		toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return board.NoMove
	}

	from := board.NewSquare(fromFile, fromRank)
	to := board.NewSquare(toFile, toRank)

	var promo board.PieceType
	if len(moveStr) == 5 {
		switch moveStr[4] {
		case 'q':
			promo = board.Queen
		case 'r':
			promo = board.Rook
		case 'b':
			promo = board.Bishop
		case 'n':
			promo = board.Knight
		}
	}

	moves := u.position.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if m.From() != from || m.To() != to {
			continue
		}
		if promo != 0 {
			if m.IsPromotion() && m.Promotion() == promo {
				return m
			}
			continue
		}
		if !m.IsPromotion() {
			return m
		}
	}

	return board.NoMove
}

// handleGo parses a "go" command and runs the engine against it. Per
// spec.md §6's reconciled behavior, an odd number of arguments (a
// dangling flag with no value, or an unrecognized bare token) is treated
// as "go infinite" rather than rejected.
func (u *UCI) handleGo(args []string) {
	limits, ok := parseGoLimits(args)
	if !ok {
		limits = engine.UCILimits{Infinite: true}
	}

	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(info)
	}

	u.searching = true
	u.stopRequested.Store(false)
	u.searchDone = make(chan struct{})

	pos := u.position.Copy()
	ply := u.ply

	go func() {
		defer close(u.searchDone)

		bestMove := u.engine.SearchWithUCILimits(pos, limits, ply)
		u.searching = false

		if bestMove == board.NoMove {
			fmt.Println("bestmove 0000")
			return
		}
		fmt.Printf("bestmove %s\n", bestMove.String())
	}()
}

// parseGoLimits parses "go" command arguments into engine.UCILimits. It
// reports ok=false if args has an odd count of tokens that doesn't
// resolve to a clean flag/value pairing (e.g. a trailing flag with no
// value), signaling the caller to fall back to an infinite search.
func parseGoLimits(args []string) (engine.UCILimits, bool) {
	var limits engine.UCILimits

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "infinite":
			limits.Infinite = true
		case "depth":
			if i+1 >= len(args) {
				return limits, false
			}
			limits.Depth, _ = strconv.Atoi(args[i+1])
			i++
		case "nodes":
			if i+1 >= len(args) {
				return limits, false
			}
			limits.Nodes, _ = strconv.ParseUint(args[i+1], 10, 64)
			i++
		case "movetime":
			if i+1 >= len(args) {
				return limits, false
			}
			ms, _ := strconv.Atoi(args[i+1])
			limits.MoveTime = time.Duration(ms) * time.Millisecond
			i++
		case "wtime":
			if i+1 >= len(args) {
				return limits, false
			}
			ms, _ := strconv.Atoi(args[i+1])
			limits.Time[board.White] = time.Duration(ms) * time.Millisecond
			i++
		case "btime":
			if i+1 >= len(args) {
				return limits, false
			}
			ms, _ := strconv.Atoi(args[i+1])
			limits.Time[board.Black] = time.Duration(ms) * time.Millisecond
			i++
		case "winc":
			if i+1 >= len(args) {
				return limits, false
			}
			ms, _ := strconv.Atoi(args[i+1])
			limits.Inc[board.White] = time.Duration(ms) * time.Millisecond
			i++
		case "binc":
			if i+1 >= len(args) {
				return limits, false
			}
			ms, _ := strconv.Atoi(args[i+1])
			limits.Inc[board.Black] = time.Duration(ms) * time.Millisecond
			i++
		case "movestogo":
			if i+1 >= len(args) {
				return limits, false
			}
			limits.MovesToGo, _ = strconv.Atoi(args[i+1])
			i++
		default:
			return limits, false
		}
	}

	return limits, true
}

// sendInfo emits an "info depth ... score cp/mate ... nodes ... pv ..."
// line per completed iterative-deepening depth (spec.md §6).
func (u *UCI) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))

	switch {
	case info.Score > engine.MateScore-100:
		mateIn := (engine.MateScore - info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	case info.Score < -engine.MateScore+100:
		mateIn := -(engine.MateScore + info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	default:
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))
	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}
	parts = append(parts, fmt.Sprintf("hashfull %d", u.engine.TranspositionTable().HashFull()))

	if len(info.PV) > 0 {
		strs := make([]string, len(info.PV))
		for i, m := range info.PV {
			strs[i] = m.String()
		}
		parts = append(parts, "pv "+strings.Join(strs, " "))
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))
}

func (u *UCI) handleQuit() {
	u.engine.Stop()
	if u.searching {
		<-u.searchDone
	}
	if u.store != nil {
		if err := u.engine.SaveSnapshot(); err != nil {
			fmt.Printf("info string failed to save transposition snapshot: %v\n", err)
		}
		u.store.Close()
	}
	os.Exit(0)
}

// handleSetOption processes "setoption name <name> value <value>".
func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName, readingValue := false, false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName, readingValue = true, false
		case "value":
			readingName, readingValue = false, true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "hash":
		// The table has no fixed-size backing array to resize (spec.md
		// §3); accepted for protocol compatibility and otherwise ignored.
	case "ownbook":
		u.engine.SetOwnBook(strings.ToLower(value) == "true")
	case "bookfile":
		if value != "" {
			if err := u.engine.LoadBook(value); err != nil {
				fmt.Printf("Error (failed to load book): %v\n", err)
			}
		}
	case "endgameprobes":
		enabled := strings.ToLower(value) == "true"
		if enabled && !u.engine.HasTablebase() {
			var cache tablebase.PersistentCache
			if u.store != nil {
				cache = u.store
			}
			u.engine.SetTablebase(tablebase.NewHybridProber(cache))
		}
		u.engine.SetEndgameProbes(enabled)
	}
}

func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)

	fmt.Printf("Nodes: %d\n", nodes)
	fmt.Printf("Time: %v\n", elapsed)
	if elapsed > 0 {
		nps := float64(nodes) / elapsed.Seconds()
		fmt.Printf("NPS: %.0f\n", nps)
	}
}
