// MODUL: external_source
// ZWECK: Push-basierte Quelle - der Aufrufer liefert Dateinamen oder Puffer nach
// INPUT: FeedFileNames / FeedData aus Benutzer-Goroutinen
// OUTPUT: Samples in Einfuegereihenfolge
// NEBENEFFEKTE: Open blockiert, solange die Queue leer und kein End-of-Sequence gesetzt ist
// ABHAENGIGKEITEN: github.com/emirpasic/gods/v2/lists/arraylist
// HINWEISE: Count liefert 0 erst bei End-of-Sequence und leerer Queue (PolicyDrop: kein voller Batch mehr)

package reader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/emirpasic/gods/v2/lists/arraylist"
)

// ExternalMode legt fest, was in die Queue geschoben wird.
type ExternalMode int

const (
	// ModeFileName: Dateipfade, die beim Open gelesen werden
	ModeFileName ExternalMode = iota
	// ModeRawCompressed: komprimierte Bytes (z.B. JPEG)
	ModeRawCompressed
	// ModeRawUncompressed: bereits dekodierte Pixel
	ModeRawUncompressed
)

// Sample ist ein extern geliefertes Datenelement.
type Sample struct {
	Name   string
	Data   []byte
	Width  int // nur ModeRawUncompressed
	Height int // nur ModeRawUncompressed
}

// ExternalSource ist eine Queue, die von aussen befuellt wird.
type ExternalSource struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     *arraylist.List[*Sample]
	eos       bool
	unblocked bool
	cfg       Config

	current Sample
	padded  bool
	last    *Sample
	file    *os.File
	size    int
	offset  int
	lastPad int
	inBatch int
}

// NewExternalSource erstellt eine leere Quelle.
func NewExternalSource() *ExternalSource {
	r := &ExternalSource{queue: arraylist.New[*Sample]()}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *ExternalSource) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Mode gibt den konfigurierten Modus zurueck.
func (r *ExternalSource) Mode() ExternalMode { return r.cfg.ExternalMode }

// FeedFileNames haengt Dateipfade an. eos markiert das Ende der Sequenz.
func (r *ExternalSource) FeedFileNames(names []string, eos bool) error {
	if r.cfg.ExternalMode != ModeFileName {
		return fmt.Errorf("reader: feeding file names to %d mode source", r.cfg.ExternalMode)
	}
	samples := make([]Sample, len(names))
	for i, n := range names {
		samples[i] = Sample{Name: n}
	}
	r.push(samples, eos)
	return nil
}

// FeedData haengt Puffer an. eos markiert das Ende der Sequenz.
func (r *ExternalSource) FeedData(samples []Sample, eos bool) error {
	if r.cfg.ExternalMode == ModeFileName {
		return fmt.Errorf("reader: feeding raw data to file name mode source")
	}
	r.push(samples, eos)
	return nil
}

func (r *ExternalSource) push(samples []Sample, eos bool) {
	r.mu.Lock()
	for _, s := range samples {
		r.queue.Add(&s)
	}
	if eos {
		r.eos = true
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Count liefert 0 nur bei End-of-Sequence und leerer Queue (unter PolicyDrop:
// weniger als ein Batch), sonst mindestens die Batch-Groesse. Ein begonnener
// Batch wird immer zu Ende gelesen.
func (r *ExternalSource) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eos && r.inBatch == 0 && (r.queue.Empty() || r.dropsTail()) {
		return 0
	}
	return max(r.cfg.BatchSize, r.queue.Size())
}

// dropsTail meldet, ob unter PolicyDrop nur noch ein unvollstaendiger Batch
// in der Queue liegt. Aufruf mit gehaltenem mu.
func (r *ExternalSource) dropsTail() bool {
	return r.cfg.LastBatchPolicy == PolicyDrop && r.queue.Size() < r.cfg.BatchSize
}

// Open entnimmt das naechste Sample. Blockiert, solange die Queue leer ist und
// weder End-of-Sequence noch Unblock gesetzt sind. Ist die Sequenz beendet,
// wird der laufende Batch mit dem letzten Sample aufgefuellt. Unter PolicyDrop
// beginnt ein Batch erst, wenn er vollstaendig in der Queue liegt; ein
// unvollstaendiger Rest nach End-of-Sequence wird verworfen.
func (r *ExternalSource) Open() (int, error) {
	r.mu.Lock()
	need := 1
	if r.cfg.LastBatchPolicy == PolicyDrop && r.inBatch == 0 {
		need = r.cfg.BatchSize
	}
	for r.queue.Size() < need && !r.eos && !r.unblocked {
		r.cond.Wait()
	}
	if r.unblocked {
		r.mu.Unlock()
		return 0, ErrReleased
	}
	if r.inBatch == 0 && r.dropsTail() {
		r.queue.Clear()
		r.mu.Unlock()
		return 0, ErrNoMoreData
	}

	r.padded = false
	if s, ok := r.queue.Get(0); ok {
		r.queue.Remove(0)
		r.current = *s
		r.last = s
	} else {
		if r.last == nil || r.inBatch == 0 {
			r.mu.Unlock()
			return 0, ErrNoMoreData
		}
		r.current = *r.last
		r.padded = true
		r.lastPad++
	}
	r.inBatch = (r.inBatch + 1) % r.cfg.BatchSize
	r.mu.Unlock()

	r.offset = 0
	if r.cfg.ExternalMode != ModeFileName {
		r.size = len(r.current.Data)
		return r.size, nil
	}

	f, err := os.Open(r.current.Name)
	if err != nil {
		return 0, fmt.Errorf("datei oeffnen fehlgeschlagen: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	r.file, r.size = f, int(info.Size())
	return r.size, nil
}

func (r *ExternalSource) Read(buf []byte) (int, error) {
	if r.cfg.ExternalMode != ModeFileName {
		n := copy(buf, r.current.Data[r.offset:])
		r.offset += n
		return n, nil
	}
	if r.file == nil {
		return 0, ErrNotOpen
	}
	return io.ReadFull(r.file, buf[:min(len(buf), r.size)])
}

func (r *ExternalSource) Close() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// Reset setzt End-of-Sequence zurueck. Bereits geschobene Samples bleiben
// erhalten, ausser dem unter PolicyDrop verworfenen Rest der Sequenz.
func (r *ExternalSource) Reset() error {
	r.Close()
	r.mu.Lock()
	if r.eos && r.inBatch == 0 && r.dropsTail() {
		r.queue.Clear()
	}
	r.eos = false
	r.unblocked = false
	r.inBatch = 0
	r.lastPad = 0
	r.mu.Unlock()
	return nil
}

// Unblock weckt blockierte Open-Aufrufe, die danach ErrReleased liefern.
func (r *ExternalSource) Unblock() {
	r.mu.Lock()
	r.unblocked = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// ID gibt den Basisnamen des aktuellen Samples zurueck.
func (r *ExternalSource) ID() string {
	return filepath.Base(r.current.Name)
}

// CurrentShape liefert die Ausdehnung roher Samples.
func (r *ExternalSource) CurrentShape() (int, int) {
	return r.current.Width, r.current.Height
}

func (r *ExternalSource) CurrentIsPadding() bool { return r.padded }

func (r *ExternalSource) LastBatchPaddedSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPad
}

func (r *ExternalSource) Release() {
	r.Unblock()
	r.Close()
}
