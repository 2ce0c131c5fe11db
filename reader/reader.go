// Package reader - Datenquellen fuer komprimierte oder rohe Samples
//
// Dieses Modul enthaelt:
// - Reader: Interface fuer alle Quellen (Count/Open/Read/Close/Reset)
// - Config: Shard-, Batch-, Shuffle- und Last-Batch-Einstellungen
// - Optionale Interfaces: Labeled, ShapeReporter, PaddingReporter, Unblocker
//
// Implementierungen:
// - file_source.go: Verzeichnis (rekursiv)
// - external_source.go: Push-basierte Quelle mit End-of-Sequence
// - tfrecord.go: TFRecord-Dateien mit tf.train.Example
// - webdataset.go: Tar-Archive im WebDataset-Format
// - archive.go: SQLite-Archiv mit Key/Blob-Records
// - cifar10.go: CIFAR-10 Binaerdateien
package reader

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	ErrNoMoreData     = errors.New("reader: no more data")
	ErrEmptySource    = errors.New("reader: source contains no items")
	ErrInvalidShard   = errors.New("reader: invalid shard configuration")
	ErrUnknownType    = errors.New("reader: unknown reader type")
	ErrReleased       = errors.New("reader: reader released")
	ErrNotOpen        = errors.New("reader: no item open")
	ErrCorruptRecord  = errors.New("reader: corrupt record")
	ErrInvalidBatch   = errors.New("reader: invalid batch size")
	ErrMissingFeature = errors.New("reader: missing feature")
)

// ============================================================================
// Typen
// ============================================================================

// Type waehlt die Reader-Implementierung.
type Type int

const (
	TypeFileSource Type = iota
	TypeExternalSource
	TypeTFRecord
	TypeWebDataset
	TypeArchive
	TypeCifar10
)

var typeNames = map[Type]string{
	TypeFileSource:     "file",
	TypeExternalSource: "external",
	TypeTFRecord:       "tfrecord",
	TypeWebDataset:     "webdataset",
	TypeArchive:        "archive",
	TypeCifar10:        "cifar10",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType liefert den Typ zu einem Namen (z.B. "tfrecord").
// Bei Tippfehlern nennt der Fehler den naechstliegenden Namen.
func ParseType(s string) (Type, error) {
	best, score := "", math.MaxInt
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
		if d := levenshtein.ComputeDistance(strings.ToLower(s), name); d < score {
			best, score = name, d
		}
	}
	if score <= 2 {
		return 0, fmt.Errorf("%w: %q, did you mean %q?", ErrUnknownType, s, best)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// LastBatchPolicy legt fest, wie ein unvollstaendiger letzter Batch behandelt wird.
type LastBatchPolicy int

const (
	// PolicyFill fuellt mit Wiederholungen des letzten Samples auf.
	PolicyFill LastBatchPolicy = iota
	// PolicyDrop verwirft den unvollstaendigen Batch.
	PolicyDrop
	// PolicyPartial fuellt auf wie Fill, markiert die Fuellsamples aber;
	// die Pipeline setzt deren ROI auf 0x0.
	PolicyPartial
)

func (p LastBatchPolicy) String() string {
	switch p {
	case PolicyFill:
		return "fill"
	case PolicyDrop:
		return "drop"
	case PolicyPartial:
		return "partial"
	}
	return fmt.Sprintf("LastBatchPolicy(%d)", int(p))
}

// ParsePolicy liefert die Policy zu "fill", "drop" oder "partial".
func ParsePolicy(s string) (LastBatchPolicy, error) {
	for _, p := range []LastBatchPolicy{PolicyFill, PolicyDrop, PolicyPartial} {
		if strings.EqualFold(p.String(), s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("reader: unknown last batch policy %q", s)
}

// Filter wird von Metadaten-Readern implementiert, um Samples ohne Metadaten auszuschliessen.
type Filter interface {
	Exists(name string) bool
}

// Config enthaelt die Einstellungen eines Readers.
type Config struct {
	Type            Type
	Path            string
	ShardID         int
	ShardCount      int
	BatchSize       int
	Shuffle         bool
	Loop            bool
	Seed            uint64
	LastBatchPolicy LastBatchPolicy
	FilePrefix      string       // nur Dateien mit diesem Namenspraefix
	Filter          Filter       // optional
	ExternalMode    ExternalMode // nur ExternalSource
}

// Validate prueft Shard- und Batch-Angaben.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatch, c.BatchSize)
	}
	if c.ShardCount <= 0 || c.ShardID < 0 || c.ShardID >= c.ShardCount {
		return fmt.Errorf("%w: shard %d of %d", ErrInvalidShard, c.ShardID, c.ShardCount)
	}
	return nil
}

// ============================================================================
// Interfaces
// ============================================================================

// Reader liefert Samples nacheinander. Ein Reader gehoert genau einem Shard.
type Reader interface {
	// Init liest den Index der Quelle und wendet Sharding/Shuffle an
	Init(cfg Config) error
	// Count gibt die verbleibenden Samples der Epoche zurueck
	Count() int
	// Open oeffnet das naechste Sample und gibt dessen Groesse zurueck
	Open() (int, error)
	// Read liest das geoeffnete Sample in buf
	Read(buf []byte) (int, error)
	// Close schliesst das geoeffnete Sample
	Close()
	// Reset beginnt eine neue Epoche
	Reset() error
	// ID gibt den Namen des geoeffneten Samples zurueck
	ID() string
	// LastBatchPaddedSize gibt die Anzahl der Fuellsamples im letzten Batch zurueck
	LastBatchPaddedSize() int
	Release()
}

// Labeled wird von Containern implementiert, die Labels mitliefern.
type Labeled interface {
	Labels() map[string]int32
}

// ShapeReporter liefert die Ausdehnung eines bereits dekodierten Samples.
type ShapeReporter interface {
	CurrentShape() (width, height int)
}

// PaddingReporter meldet, ob das geoeffnete Sample eine Fuellwiederholung ist.
type PaddingReporter interface {
	CurrentIsPadding() bool
}

// Unblocker wird von Readern implementiert, deren Open blockieren kann.
type Unblocker interface {
	Unblock()
}
