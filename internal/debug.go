package internal

import (
	"log/slog"
	"runtime"
	"sync"
)

const (
	// LevelTrace is used for per-transaction bus logging. It is very noisy
	// since a single link poll issues several MDIO frames.
	LevelTrace slog.Level = slog.LevelDebug - 2
)

var (
	memstats    runtime.MemStats
	lastAllocs  uint64
	lastMallocs uint64
	allocmu     sync.Mutex
)

// LogAllocs prints msg along with heap usage if the heap grew since the last call.
// Bring-up code runs with a small heap on target so allocations on the polling path
// are worth catching early.
func LogAllocs(msg string) {
	allocmu.Lock()
	defer allocmu.Unlock()
	runtime.ReadMemStats(&memstats)
	if memstats.TotalAlloc == lastAllocs {
		return
	}
	print("[ALLOC] ", msg)
	print(" inc=", int64(memstats.TotalAlloc)-int64(lastAllocs))
	print(" n=", int64(memstats.Mallocs)-int64(lastMallocs))
	print(" heap=", memstats.HeapAlloc)
	print(" tot=", memstats.TotalAlloc)
	println()
	lastAllocs = memstats.TotalAlloc
	lastMallocs = memstats.Mallocs
}
