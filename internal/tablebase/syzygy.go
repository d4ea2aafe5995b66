package tablebase

import (
	"strings"

	"github.com/hailam/chessplay/internal/board"
)

// PersistentCache is a durable backing store for tablebase probe
// results, consulted ahead of the in-memory CachedProber so results
// survive process restarts. Implemented by internal/storage against
// badger.
type PersistentCache interface {
	Get(hash uint64) (ProbeResult, bool)
	Put(hash uint64, result ProbeResult)
}

// HybridProber layers a durable cache, an in-memory cache, and the
// Lichess API prober, each consulted in turn. There is no local Syzygy
// file reader in this tree: probing always resolves through the network
// client, persisted so a position already seen doesn't re-cross the
// network.
type HybridProber struct {
	persistent PersistentCache
	online     *CachedProber
}

// NewHybridProber creates a prober backed by the Lichess API with an
// in-memory cache in front of it, and persistent as an optional durable
// cache consulted before the network (nil disables persistence).
func NewHybridProber(persistent PersistentCache) *HybridProber {
	return &HybridProber{
		persistent: persistent,
		online:     NewCachedLichessProber(),
	}
}

func (hp *HybridProber) Probe(pos *board.Position) ProbeResult {
	if hp.persistent != nil {
		if result, ok := hp.persistent.Get(pos.Hash); ok {
			return result
		}
	}

	result := hp.online.Probe(pos)

	if hp.persistent != nil && result.Found {
		hp.persistent.Put(pos.Hash, result)
	}

	return result
}

func (hp *HybridProber) ProbeRoot(pos *board.Position) RootResult {
	return hp.online.ProbeRoot(pos)
}

func (hp *HybridProber) MaxPieces() int {
	return 7 // Lichess's tablebase API serves up to 7-piece endgames.
}

func (hp *HybridProber) Available() bool {
	return true
}

// CacheHitRate returns the in-memory cache hit rate.
func (hp *HybridProber) CacheHitRate() float64 {
	return hp.online.HitRate()
}

// ClearCache clears the in-memory cache.
func (hp *HybridProber) ClearCache() {
	hp.online.Clear()
}

// positionToMaterial converts a position to a material key like "KQvKR".
// Nothing in this package calls it; the caches key on the position hash
// alone.
func positionToMaterial(pos *board.Position) string {
	var white, black strings.Builder

	for pt := board.Queen; pt >= board.Pawn; pt-- {
		count := (pos.Pieces[board.White][pt]).PopCount()
		for i := 0; i < count; i++ {
			white.WriteByte(pieceChar(pt))
		}
	}

	for pt := board.Queen; pt >= board.Pawn; pt-- {
		count := (pos.Pieces[board.Black][pt]).PopCount()
		for i := 0; i < count; i++ {
			black.WriteByte(pieceChar(pt))
		}
	}

	return "K" + white.String() + "vK" + black.String()
}

func pieceChar(pt board.PieceType) byte {
	switch pt {
	case board.Queen:
		return 'Q'
	case board.Rook:
		return 'R'
	case board.Bishop:
		return 'B'
	case board.Knight:
		return 'N'
	case board.Pawn:
		return 'P'
	default:
		return '?'
	}
}
