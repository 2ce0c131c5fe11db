package loader

import (
	"context"
	"errors"
	"time"

	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

// Sharded verteilt Next reihum auf einen Loader pro Shard.
type Sharded struct {
	loaders []*Loader
	next    int
}

// NewSharded buendelt die Loader der einzelnen Shards.
func NewSharded(loaders ...*Loader) (*Sharded, error) {
	if len(loaders) == 0 {
		return nil, errors.New("loader: no shards")
	}
	return &Sharded{loaders: loaders}, nil
}

func (s *Sharded) Shards() int { return len(s.loaders) }

func (s *Sharded) Start() {
	for _, l := range s.loaders {
		l.Start()
	}
}

func (s *Sharded) Stop() {
	for _, l := range s.loaders {
		l.Stop()
	}
}

// Reset setzt alle Shards zurueck und beginnt wieder beim ersten.
func (s *Sharded) Reset() error {
	var errs []error
	for _, l := range s.loaders {
		errs = append(errs, l.Reset())
	}
	s.next = 0
	return errors.Join(errs...)
}

// Remaining ist die Summe ueber alle Shards.
func (s *Sharded) Remaining() int {
	n := 0
	for _, l := range s.loaders {
		n += l.Remaining()
	}
	return n
}

// Next holt den Batch vom naechsten Shard. Ein erschoepfter Shard beendet die Epoche.
func (s *Sharded) Next(ctx context.Context, out *tensor.Tensor) (Meta, error) {
	l := s.loaders[s.next]
	meta, err := l.Next(ctx, out)
	if err != nil {
		return Meta{}, err
	}
	s.next = (s.next + 1) % len(s.loaders)
	return meta, nil
}

// Timing summiert die Zeiten aller Shards.
func (s *Sharded) Timing() Timing {
	var t Timing
	for _, l := range s.loaders {
		lt := l.Timing()
		t.Read += lt.Read
		t.Decode += lt.Decode
		t.Batches += lt.Batches
	}
	return t
}

func (s *Sharded) LastBatchPaddedSize() int {
	return s.loaders[len(s.loaders)-1].LastBatchPaddedSize()
}

// Readers gibt die Reader aller Shards zurueck.
func (s *Sharded) Readers() []reader.Reader {
	out := make([]reader.Reader, len(s.loaders))
	for i, l := range s.loaders {
		out[i] = l.rd.reader
	}
	return out
}

func (s *Sharded) Release() {
	for _, l := range s.loaders {
		l.Release()
	}
}

// Discard verwirft alle Loader, laesst aber deren Reader offen.
func (s *Sharded) Discard() {
	for _, l := range s.loaders {
		l.Discard()
	}
}

// AverageBatchTime gibt die mittlere Lade- plus Dekodierzeit pro Batch zurueck.
func (t Timing) AverageBatchTime() time.Duration {
	if t.Batches == 0 {
		return 0
	}
	return (t.Read + t.Decode) / time.Duration(t.Batches)
}
