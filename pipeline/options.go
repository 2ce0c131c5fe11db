// MODUL: options
// ZWECK: Functional Options fuer die Pipeline-Erstellung
// INPUT: Batch-Groesse, Threads, Prefetch-Tiefe, Verarbeitungsmodus, Seed
// OUTPUT: Options Struct mit Konfiguration
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: envconfig (Defaults aus ROCAL_*)
// HINWEISE: Defaults kommen aus der Umgebung, Optionen ueberschreiben sie

package pipeline

import (
	"errors"
	"fmt"

	"github.com/7blacky7/rocal/envconfig"
	"github.com/7blacky7/rocal/tensor"
)

// ============================================================================
// Options - Zentrale Konfigurationsstruktur
// ============================================================================

// Mode ist der Verarbeitungsmodus.
type Mode int

const (
	ModeCPU Mode = iota
	ModeGPU
)

func (m Mode) String() string {
	switch m {
	case ModeCPU:
		return "cpu"
	case ModeGPU:
		return "gpu"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Options enthaelt die Konfiguration einer Pipeline.
type Options struct {
	BatchSize     int            // Samples pro Batch
	Mode          Mode           // CPU oder GPU
	DeviceID      int            // Geraeteindex (nur GPU)
	Threads       int            // Decode-Threads pro Shard, 0 = ableiten
	PrefetchDepth int            // Tiefe der Ring-Buffer
	OutputMemType tensor.MemType // Speicherort der Ausgabe-Tensoren
	Seed          uint64         // Seed der Zufallsparameter, 0 = unveraendert
	ShuffleSeed   uint64         // Seed der Reader, 0 = aus Seed ableiten
}

// Option ist eine funktionale Option fuer Options.
type Option func(*Options)

// ============================================================================
// Fehler-Definitionen fuer Options
// ============================================================================

var (
	ErrInvalidBatchSize = errors.New("pipeline: invalid batch size")
	ErrInvalidThreads   = errors.New("pipeline: invalid thread count")
	ErrInvalidDepth     = errors.New("pipeline: prefetch depth must be at least 2")
	ErrInvalidMode      = errors.New("pipeline: processing mode not available")
)

// DefaultOptions liefert die Standard-Konfiguration aus der Umgebung.
func DefaultOptions() Options {
	return Options{
		BatchSize:     1,
		Mode:          ModeCPU,
		Threads:       int(envconfig.NumThreads()),
		PrefetchDepth: int(envconfig.PrefetchDepth()),
		OutputMemType: tensor.MemHost,
		Seed:          envconfig.Seed(),
		ShuffleSeed:   envconfig.ShuffleSeed(),
	}
}

// ============================================================================
// Functional Options - Builder-Funktionen
// ============================================================================

// WithBatchSize setzt die Batch-Groesse. Werte <= 0 werden ignoriert.
func WithBatchSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// WithThreads setzt die Decode-Threads. 0 leitet sie aus der CPU-Anzahl ab.
func WithThreads(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Threads = n
		}
	}
}

// WithPrefetchDepth setzt die Anzahl vorgeladener Batches.
func WithPrefetchDepth(n int) Option {
	return func(o *Options) {
		o.PrefetchDepth = n
	}
}

// WithDevice setzt Verarbeitungsmodus und Geraeteindex.
func WithDevice(mode Mode, id int) Option {
	return func(o *Options) {
		o.Mode = mode
		o.DeviceID = id
	}
}

// WithOutputMemType setzt den Speicherort der Ausgabe.
func WithOutputMemType(m tensor.MemType) Option {
	return func(o *Options) {
		o.OutputMemType = m
	}
}

// WithSeed setzt den Seed der Zufallsparameter und der Reader.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Seed = seed
		if o.ShuffleSeed == 0 {
			o.ShuffleSeed = seed
		}
	}
}

// Apply wendet alle Options an.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate prueft ob die Options gueltig sind.
func (o *Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, o.BatchSize)
	}
	if o.Threads < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreads, o.Threads)
	}
	if o.PrefetchDepth < 2 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, o.PrefetchDepth)
	}
	// GPU-Backends sind in diesem Build nicht enthalten
	if o.Mode != ModeCPU {
		return fmt.Errorf("%w: %s", ErrInvalidMode, o.Mode)
	}
	if o.OutputMemType == tensor.MemDevice {
		return fmt.Errorf("%w: %s", tensor.ErrUnsupportedMemType, o.OutputMemType)
	}
	return nil
}
