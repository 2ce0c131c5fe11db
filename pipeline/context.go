// Package pipeline - Master-Pipeline: Quelle, Augmentierungsgraph und Ausgabe-Ring
//
// Dieses Modul enthaelt:
// - Context: Zustandsmaschine Created -> Verified -> Running -> Released
// - Output-Goroutine: Loader -> Graph -> Ring (Prefetch der fertigen Batches)
// - Run/Reset/Release: Konsumentenseite
//
// Quellen, Augmentierungen, Metadaten und Ausgabe sind in eigene Dateien ausgelagert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/7blacky7/rocal/graph"
	"github.com/7blacky7/rocal/loader"
	"github.com/7blacky7/rocal/logutil"
	"github.com/7blacky7/rocal/metadata"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/ringbuffer"
	"github.com/7blacky7/rocal/tensor"
)

// ============================================================================
// Zustaende und Fehler
// ============================================================================

// State ist der Lebenszyklus-Zustand eines Context.
type State int

const (
	StateCreated State = iota
	StateVerified
	StateRunning
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateVerified:
		return "verified"
	case StateRunning:
		return "running"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNotRunning       = errors.New("pipeline: not running, call Verify first")
	ErrReleased         = errors.New("pipeline: released")
	ErrAlreadyVerified  = errors.New("pipeline: already verified")
	ErrNoSource         = errors.New("pipeline: no source defined")
	ErrSourceExists     = errors.New("pipeline: source already defined")
	ErrForeignTensor    = errors.New("pipeline: tensor does not belong to this pipeline")
	ErrInvalidArgument  = errors.New("pipeline: invalid argument")
	ErrNoMetadata       = errors.New("pipeline: no metadata reader")
	ErrMetadataExists   = errors.New("pipeline: metadata reader already defined")
	ErrMetadataMismatch = errors.New("pipeline: metadata does not match source")
	ErrNoBatch          = errors.New("pipeline: no batch available, call Run first")
	ErrRuntime          = errors.New("pipeline: runtime error")

	// ErrNoMoreData beendet eine Epoche. Kein Fehler im eigentlichen Sinn.
	ErrNoMoreData = reader.ErrNoMoreData
)

// outputSlot ist ein fertiger Batch im Ausgabe-Ring.
type outputSlot struct {
	bufs   [][]byte
	rois   []*tensor.ROI
	meta   loader.Meta
	labels *metadata.Batch
}

// ============================================================================
// Context
// ============================================================================

// Context ist eine Pipeline-Instanz. Aufbau und Run erfolgen aus einer
// Goroutine; Status-Abfragen (State, Remaining, Timing) sind nebenlaeufig erlaubt.
type Context struct {
	ID   string
	opts Options

	mu    sync.Mutex
	state State

	src      *source
	loaders  *loader.Sharded
	graph    *graph.Graph
	tensors  map[*tensor.Tensor]bool
	meta     metadata.Reader
	metaCfg  *metadata.Config // eingebettete Labels, erst bei Verify gebaut
	bboxCrop *metadata.RandomBBoxCrop

	produced []*tensor.Tensor // Ausgaenge des Graphen (intern)
	outputs  []*tensor.Tensor // Sicht des Aufrufers, zeigt in den gelesenen Slot
	ring     *ringbuffer.Ring[*outputSlot]
	current  *outputSlot
	held     atomic.Bool

	cancel   context.CancelFunc
	done     chan struct{}
	inflight atomic.Int64
	err      atomic.Pointer[error]

	timing timingRecorder
}

// New erstellt eine Pipeline im Zustand Created.
func New(opts ...Option) (*Context, error) {
	o := DefaultOptions()
	o.Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Seed != 0 {
		param.SetSeed(o.Seed)
	}

	c := &Context{
		ID:      uuid.NewString(),
		opts:    o,
		graph:   graph.New(),
		tensors: make(map[*tensor.Tensor]bool),
	}
	slog.Debug("pipeline created", "id", c.ID, "batch", o.BatchSize, "threads", o.Threads, "prefetch", o.PrefetchDepth)
	return c, nil
}

// Options gibt die wirksame Konfiguration zurueck.
func (c *Context) Options() Options { return c.opts }

// State gibt den aktuellen Zustand zurueck.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err gibt den fatalen Fehler der Output-Goroutine zurueck.
func (c *Context) Err() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *Context) checkCreated() error {
	switch c.state {
	case StateCreated:
		return nil
	case StateReleased:
		return ErrReleased
	}
	return ErrAlreadyVerified
}

func (c *Context) checkVerified() error {
	switch c.state {
	case StateVerified, StateRunning:
		return nil
	case StateReleased:
		return ErrReleased
	}
	return ErrNotRunning
}

// ============================================================================
// Verify
// ============================================================================

// Verify prueft Quelle, Metadaten und Graph, legt den Ausgabe-Ring an und
// startet die Hintergrundverarbeitung. Bei einem Fehler bleibt der Zustand Created.
func (c *Context) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return err
	}
	if err := c.verify(); err != nil {
		slog.Error("pipeline verify failed", "id", c.ID, "error", err)
		return err
	}

	c.state = StateVerified
	c.startOutput()
	slog.Info("pipeline verified", "id", c.ID, "outputs", len(c.outputs), "shards", c.loaders.Shards(), "nodes", c.graph.Len())
	return nil
}

func (c *Context) verify() error {
	if c.src == nil {
		return ErrNoSource
	}

	loaders, err := c.buildLoaders()
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		switch {
		case ok:
		case c.src.external != nil:
			// Die externe Quelle bleibt fuer das naechste Verify befuellbar
			loaders.Discard()
		default:
			loaders.Release()
		}
	}()

	if c.metaCfg != nil {
		if err := c.buildEmbeddedMetadata(loaders.Readers()); err != nil {
			return err
		}
	}
	if c.meta != nil && c.meta.Len() == 0 {
		return fmt.Errorf("%w: %s reader holds no records", ErrMetadataMismatch, c.meta.Type())
	}
	for t := range c.tensors {
		if n := t.Info().BatchSize(); n != c.opts.BatchSize {
			return fmt.Errorf("%w: tensor batch %d, pipeline batch %d", tensor.ErrBatchSizeMismatch, n, c.opts.BatchSize)
		}
	}

	produced := c.graph.Outputs()
	if c.src.isOutput {
		produced = append([]*tensor.Tensor{c.src.out}, produced...)
	}
	if len(produced) == 0 {
		return graph.ErrNoOutput
	}

	ring, err := ringbuffer.New(c.opts.PrefetchDepth, func(int) *outputSlot { return newOutputSlot(produced) })
	if err != nil {
		return err
	}
	if !c.graph.Finalized() {
		if err := c.graph.Finalize(); err != nil {
			return err
		}
	}

	c.outputs = make([]*tensor.Tensor, len(produced))
	for k, t := range produced {
		info := t.Info().Clone()
		info.SetType(tensor.TypeHandle)
		c.outputs[k] = tensor.New(info)
	}
	c.produced = produced
	c.ring = ring
	c.loaders = loaders
	ok = true
	return nil
}

func newOutputSlot(produced []*tensor.Tensor) *outputSlot {
	s := &outputSlot{
		bufs: make([][]byte, len(produced)),
		rois: make([]*tensor.ROI, len(produced)),
	}
	for k, t := range produced {
		s.bufs[k] = make([]byte, t.Info().DataSize())
		s.rois[k] = t.ROI().Clone()
	}
	return s
}

// ============================================================================
// Output-Goroutine
// ============================================================================

func (c *Context) startOutput() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.loaders.Start()
	go c.produce(ctx, c.done)
}

func (c *Context) stopOutput() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.ring.Unblock()
	<-c.done
	c.cancel = nil
}

func (c *Context) produce(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Errorf("%w: output routine panicked: %v", ErrRuntime, r))
		}
	}()

	for {
		s, err := c.ring.WriteSlot(ctx)
		if err != nil {
			return
		}

		start := time.Now()
		meta, err := c.loaders.Next(ctx, c.src.out)
		switch {
		case errors.Is(err, ErrNoMoreData):
			logutil.Trace("pipeline reached end of data", "id", c.ID)
			c.ring.Close()
			return
		case ctx.Err() != nil:
			return
		case err != nil:
			c.fail(err)
			return
		}
		c.inflight.Store(int64(c.opts.BatchSize))

		if err := c.processBatch(ctx, s, meta); err != nil {
			if ctx.Err() == nil {
				c.fail(err)
			}
			return
		}
		c.timing.addBatch(time.Since(start))

		if err := c.ring.Push(); err != nil {
			c.fail(err)
			return
		}
		c.inflight.Store(0)
	}
}

// processBatch fuehrt den Graphen aus und legt das Ergebnis in Slot s ab.
func (c *Context) processBatch(ctx context.Context, s *outputSlot, meta loader.Meta) error {
	in := c.src.out
	if c.src.opts.LastBatchPolicy == reader.PolicyPartial {
		for i, padded := range meta.Padded {
			if padded {
				clear(in.ROI().Shape(i))
			}
		}
	}

	start := time.Now()
	if err := c.graph.Process(ctx); err != nil {
		return err
	}
	c.timing.process.Add(int64(time.Since(start)))

	start = time.Now()
	for k, t := range c.produced {
		old, err := t.SwapHandle(s.bufs[k])
		if err != nil {
			return err
		}
		s.bufs[k] = old
		s.rois[k].CopyFrom(t.ROI())
	}
	c.timing.transfer.Add(int64(time.Since(start)))

	s.meta = meta
	s.labels = nil
	if c.meta != nil {
		labels, err := c.meta.Lookup(meta.Names)
		if err != nil {
			return err
		}
		if c.bboxCrop != nil {
			metadata.AdjustBatch(labels, meta.Crops)
		}
		s.labels = labels
	}
	logutil.Trace("pipeline batch ready", "id", c.ID, "first", meta.Names[0], "padded", meta.PaddedCount())
	return nil
}

func (c *Context) fail(err error) {
	slog.Error("pipeline output routine stopped", "id", c.ID, "error", err)
	c.err.Store(&err)
	c.ring.Close()
}

// ============================================================================
// Run, Reset, Release
// ============================================================================

// Run stellt den naechsten Batch in den Ausgabe-Tensoren bereit. Blockiert, bis
// ein Batch fertig ist; am Epochenende liefert Run ErrNoMoreData.
func (c *Context) Run(ctx context.Context) error {
	c.mu.Lock()
	err := c.checkVerified()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	// Der zuletzt gelesene Slot bleibt bis zum naechsten Run gesperrt
	if c.held.Swap(false) {
		if err := c.ring.Pop(); err != nil {
			return err
		}
	}

	s, err := c.ring.ReadSlot(ctx)
	if errors.Is(err, ringbuffer.ErrClosed) {
		if e := c.Err(); e != nil {
			return e
		}
		return ErrNoMoreData
	}
	if err != nil {
		return err
	}

	start := time.Now()
	for k, t := range c.outputs {
		if _, err := t.SwapHandle(s.bufs[k]); err != nil {
			return err
		}
		t.ROI().CopyFrom(s.rois[k])
	}
	c.timing.transfer.Add(int64(time.Since(start)))

	c.current = s
	c.held.Store(true)

	c.mu.Lock()
	if c.state == StateVerified {
		c.state = StateRunning
	}
	c.mu.Unlock()
	return nil
}

// Reset beginnt eine neue Epoche, ohne den Graphen neu aufzubauen.
func (c *Context) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkVerified(); err != nil {
		return err
	}

	c.stopOutput()
	c.held.Store(false)
	c.current = nil
	c.inflight.Store(0)
	if err := c.loaders.Reset(); err != nil {
		return err
	}
	c.ring.Reset()
	c.err.Store(nil)
	c.startOutput()
	c.state = StateVerified
	slog.Debug("pipeline reset", "id", c.ID)
	return nil
}

// Release gibt Graph, Loader, Ring und Metadaten in dieser Reihenfolge frei.
// Weitere Aufrufe liefern ErrReleased.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateReleased {
		return ErrReleased
	}

	c.stopOutput()
	c.graph.Release()
	switch {
	case c.loaders != nil:
		c.loaders.Release()
	case c.src != nil && c.src.external != nil:
		c.src.external.Release()
	}
	c.ring = nil
	c.current = nil
	if c.meta != nil {
		c.meta.Release()
	}
	for t := range c.tensors {
		t.Release()
	}
	c.state = StateReleased
	slog.Debug("pipeline released", "id", c.ID)
	return nil
}
