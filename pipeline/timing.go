package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// batchWindow begrenzt die fuer die Statistik gehaltenen Batch-Zeiten.
const batchWindow = 1024

// Timing fasst die Zeiten aller Stufen zusammen.
type Timing struct {
	LoadTime     time.Duration // Lesen (alle Shards)
	DecodeTime   time.Duration
	ProcessTime  time.Duration // Graph
	TransferTime time.Duration // Puffer in Ring und Ausgabe tauschen
	Batches      int

	// Gesamtzeit pro Batch (Loader bis Ring), ueber die letzten Batches
	BatchMean   time.Duration
	BatchStdDev time.Duration
	BatchMax    time.Duration
}

// Report liefert die Werte in fester Reihenfolge fuer Tabellen und Logs.
func (t Timing) Report() *orderedmap.OrderedMap[string, time.Duration] {
	om := orderedmap.New[string, time.Duration]()
	om.Set("load", t.LoadTime)
	om.Set("decode", t.DecodeTime)
	om.Set("process", t.ProcessTime)
	om.Set("transfer", t.TransferTime)
	om.Set("batch_mean", t.BatchMean)
	om.Set("batch_stddev", t.BatchStdDev)
	om.Set("batch_max", t.BatchMax)
	return om
}

type timingRecorder struct {
	process  atomic.Int64
	transfer atomic.Int64

	mu      sync.Mutex
	batches []float64
	count   int
}

func (r *timingRecorder) addBatch(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == batchWindow {
		r.batches = append(r.batches[:0], r.batches[1:]...)
	}
	r.batches = append(r.batches, float64(d))
	r.count++
}

func (r *timingRecorder) addTransfer(start time.Time) {
	r.transfer.Add(int64(time.Since(start)))
}

// summary berechnet Mittelwert, Standardabweichung und Maximum der Batch-Zeiten.
func (r *timingRecorder) summary() (mean, std, peak time.Duration, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return 0, 0, 0, r.count
	}
	m, s := stat.MeanStdDev(r.batches, nil)
	if len(r.batches) < 2 {
		s = 0
	}
	return time.Duration(m), time.Duration(s), time.Duration(floats.Max(r.batches)), r.count
}

// Timing gibt die bisher gemessenen Zeiten zurueck.
func (c *Context) Timing() Timing {
	var t Timing
	c.mu.Lock()
	loaders := c.loaders
	c.mu.Unlock()
	if loaders != nil {
		lt := loaders.Timing()
		t.LoadTime, t.DecodeTime = lt.Read, lt.Decode
	}
	t.ProcessTime = time.Duration(c.timing.process.Load())
	t.TransferTime = time.Duration(c.timing.transfer.Load())
	t.BatchMean, t.BatchStdDev, t.BatchMax, t.Batches = c.timing.summary()
	return t
}
