// Command chessplay-uci runs the search core as a UCI engine speaking
// over stdin/stdout.
package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hailam/chessplay/internal/engine"
	"github.com/hailam/chessplay/internal/storage"
	"github.com/hailam/chessplay/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	bookPath   = flag.String("book", "", "path to a Polyglot opening book")
	hashMB     = flag.Int("hash", 64, "transposition table size hint in MB")
)

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	eng := engine.NewEngine(*hashMB)

	store, err := storage.OpenDefault()
	if err != nil {
		log.Printf("Warning: persistent storage unavailable: %v", err)
		store = nil
	}
	if store != nil {
		eng.SetStorage(store)
		if err := eng.LoadSnapshot(); err != nil {
			log.Printf("Warning: failed to load transposition snapshot: %v", err)
		}
	}

	if *bookPath != "" {
		if err := eng.LoadBook(*bookPath); err != nil {
			log.Printf("Warning: failed to load opening book %s: %v", *bookPath, err)
		}
	}

	protocol := uci.New(eng, store)
	protocol.Run()
}
