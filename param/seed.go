package param

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

var (
	globalSeed atomic.Uint64
	streams    atomic.Uint64
)

func init() {
	globalSeed.Store(uint64(time.Now().UnixNano()))
}

// SetSeed setzt den globalen Seed. Danach erzeugte Parameter sind reproduzierbar.
func SetSeed(seed uint64) {
	globalSeed.Store(seed)
	streams.Store(0)
}

// Seed gibt den globalen Seed zurueck.
func Seed() uint64 { return globalSeed.Load() }

// NewRand liefert einen eigenen Zufallsgenerator, abgeleitet vom globalen Seed.
// Jeder Aufruf nutzt einen eigenen PCG-Stream.
func NewRand() *rand.Rand { return newRand() }

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(globalSeed.Load(), streams.Add(1)))
}
