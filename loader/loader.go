package loader

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/ringbuffer"
	"github.com/7blacky7/rocal/tensor"
)

// CPUThreads gibt die Decoder-Threads pro Shard zurueck: halbe CPU-Anzahl
// verteilt auf die Shards, mindestens 2.
func CPUThreads(shards int) int {
	shards = max(shards, 1)
	return max(runtime.NumCPU()/2/shards, 2)
}

// Loader laedt im Hintergrund Batches in einen Prefetch-Ring. Next tauscht
// den Puffer des aeltesten Batches in den Ausgabe-Tensor (Handle-Tensor).
type Loader struct {
	rd        *ReadAndDecode
	ring      *ringbuffer.Ring[*Batch]
	batchSize int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	pending atomic.Int64
	err     atomic.Pointer[error]
}

// New erstellt einen Loader mit depth Prefetch-Slots im Footprint maxW x maxH.
func New(rd *ReadAndDecode, depth, maxW, maxH int, color tensor.ColorFormat) (*Loader, error) {
	n := rd.cfg.BatchSize
	ring, err := ringbuffer.New(depth, func(int) *Batch { return NewBatch(n, maxW, maxH, color) })
	if err != nil {
		return nil, err
	}
	return &Loader{rd: rd, ring: ring, batchSize: n}, nil
}

// Start startet die Hintergrund-Goroutine. Mehrfacher Aufruf ist wirkungslos.
func (l *Loader) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	l.err.Store(nil)
	l.pending.Store(l.loadable())

	go l.loop(ctx, l.done)
}

func (l *Loader) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		b, err := l.ring.WriteSlot(ctx)
		if err != nil {
			return
		}

		err = l.rd.Load(ctx, b)
		switch {
		case err == nil:
			if err := l.ring.Push(); err != nil {
				l.fail(err)
				return
			}
			l.pending.Store(l.loadable())
		case errors.Is(err, reader.ErrNoMoreData):
			l.pending.Store(0)
			l.ring.Close()
			return
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, reader.ErrReleased):
			// Ohne Stop wartet Next sonst ewig auf den Ring
			if ctx.Err() == nil {
				l.fail(err)
			}
			return
		default:
			l.fail(err)
			return
		}
	}
}

// loadable zaehlt nur Samples, die noch einen vollen Batch ergeben.
func (l *Loader) loadable() int64 {
	n := l.rd.reader.Count()
	return int64(n - n%l.batchSize)
}

func (l *Loader) fail(err error) {
	slog.Error("loader stopped", "error", err)
	l.err.Store(&err)
	l.ring.Close()
}

// Err gibt den fatalen Fehler der Hintergrund-Goroutine zurueck.
func (l *Loader) Err() error {
	if p := l.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Stop beendet die Hintergrund-Goroutine und wartet auf sie.
func (l *Loader) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	l.ring.Unblock()
	if u, ok := l.rd.reader.(reader.Unblocker); ok {
		u.Unblock()
	}
	<-done
}

// Reset beginnt eine neue Epoche: Stop, Reader und Ring zuruecksetzen, Start.
func (l *Loader) Reset() error {
	l.Stop()
	if err := l.rd.reader.Reset(); err != nil {
		return err
	}
	l.ring.Reset()
	l.Start()
	return nil
}

// Remaining gibt die noch nicht abgeholten Samples zurueck.
func (l *Loader) Remaining() int {
	return int(l.pending.Load()) + l.ring.Level()*l.batchSize
}

// Next wartet auf den naechsten Batch und tauscht dessen Puffer in out.
func (l *Loader) Next(ctx context.Context, out *tensor.Tensor) (Meta, error) {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return Meta{}, ErrNotRunning
	}

	b, err := l.ring.ReadSlot(ctx)
	if errors.Is(err, ringbuffer.ErrClosed) {
		if e := l.Err(); e != nil {
			return Meta{}, e
		}
		return Meta{}, reader.ErrNoMoreData
	}
	if err != nil {
		return Meta{}, err
	}

	old, err := out.SwapHandle(b.Data)
	if err != nil {
		return Meta{}, err
	}
	if len(old) != len(b.Data) {
		old = make([]byte, len(b.Data))
	}
	b.Data = old

	meta := b.Meta.Clone()
	if err := out.UpdateROI(meta.Widths, meta.Heights); err != nil {
		return Meta{}, err
	}
	return meta, l.ring.Pop()
}

// Timing gibt die Lese- und Dekodierzeit zurueck.
func (l *Loader) Timing() Timing { return l.rd.Timing() }

// LastBatchPaddedSize gibt die Fuellsamples im letzten Batch zurueck.
func (l *Loader) LastBatchPaddedSize() int { return l.rd.reader.LastBatchPaddedSize() }

// Release stoppt den Loader und gibt Reader und Decoder frei.
func (l *Loader) Release() {
	l.Discard()
	l.rd.reader.Release()
}

// Discard stoppt den Loader und gibt nur die Decoder frei. Der Reader bleibt
// fuer einen neuen Loader nutzbar.
func (l *Loader) Discard() {
	l.Stop()
	l.rd.Release()
}
