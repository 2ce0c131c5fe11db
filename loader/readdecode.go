// MODUL: readdecode
// ZWECK: Liest einen Batch seriell vom Reader und dekodiert ihn parallel
// INPUT: reader.Reader, Decoder-Typ, Ziel-Batch mit Footprint und Farbformat
// OUTPUT: Gefuellter Batch (Pixel, ROI, Originalgroessen, Namen)
// NEBENEFFEKTE: Warnungen bei ersetzten Samples, Zeitmessung
// ABHAENGIGKEITEN: golang.org/x/sync/errgroup, golang.org/x/sync/semaphore
// HINWEISE: Fehlgeschlagene Samples werden durch das letzte erfolgreiche ersetzt;
//           scheitern alle Samples eines Batches, ist das fatal (ErrAllFailed)

package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/reader"
)

var (
	ErrAllFailed    = errors.New("loader: every sample in the batch failed to decode")
	ErrInvalidBatch = errors.New("loader: invalid batch buffer")
	ErrNoShape      = errors.New("loader: skip-decode reader does not report sample shapes")
	ErrNotRunning   = errors.New("loader: not running")
	ErrShortBatch   = errors.New("loader: reader ran out of samples mid-batch")
)

// Config beschreibt einen ReadAndDecode-Verbund.
type Config struct {
	BatchSize   int
	DecoderType decoder.Type
	DeviceID    int
	// SkipDecode: Samples sind bereits HWC-Pixel, Groesse kommt vom ShapeReporter
	SkipDecode  bool
	CropWindows CropWindowSource
}

// Timing summiert Lese- und Dekodierzeit.
type Timing struct {
	Read    time.Duration
	Decode  time.Duration
	Batches int
}

// ReadAndDecode haelt Scratch-Puffer und Decoder pro Slot; sie werden
// von Batch zu Batch wiederverwendet.
type ReadAndDecode struct {
	cfg      Config
	reader   reader.Reader
	decoders []decoder.Decoder
	sem      *semaphore.Weighted

	compressed [][]byte
	shapes     [][2]int
	src        []int
	infos      []decoder.Info
	failed     []bool

	readNS   atomic.Int64
	decodeNS atomic.Int64
	batches  atomic.Int64
}

// NewReadAndDecode erstellt einen Verbund. sem begrenzt die gleichzeitigen
// Decoder-Aufrufe und darf zwischen Shards geteilt werden.
func NewReadAndDecode(r reader.Reader, cfg Config, sem *semaphore.Weighted) (*ReadAndDecode, error) {
	if r == nil {
		return nil, errors.New("loader: nil reader")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidBatch, cfg.BatchSize)
	}
	if sem == nil {
		sem = semaphore.NewWeighted(int64(CPUThreads(1)))
	}

	n := cfg.BatchSize
	rd := &ReadAndDecode{
		cfg:        cfg,
		reader:     r,
		sem:        sem,
		compressed: make([][]byte, n),
		shapes:     make([][2]int, n),
		src:        make([]int, n),
		infos:      make([]decoder.Info, n),
		failed:     make([]bool, n),
	}

	if !cfg.SkipDecode {
		rd.decoders = make([]decoder.Decoder, n)
		for i := range n {
			d, err := decoder.New(cfg.DecoderType)
			if err != nil {
				return nil, err
			}
			if err := d.Initialize(cfg.DeviceID); err != nil {
				return nil, err
			}
			rd.decoders[i] = d
		}
	}
	return rd, nil
}

// Reader gibt den zugrundeliegenden Reader zurueck.
func (rd *ReadAndDecode) Reader() reader.Reader { return rd.reader }

// Timing gibt die bisher gemessenen Zeiten zurueck.
func (rd *ReadAndDecode) Timing() Timing {
	return Timing{
		Read:    time.Duration(rd.readNS.Load()),
		Decode:  time.Duration(rd.decodeNS.Load()),
		Batches: int(rd.batches.Load()),
	}
}

// Load fuellt b mit dem naechsten Batch. Liefert reader.ErrNoMoreData, wenn
// weniger als ein ganzer Batch verbleibt.
func (rd *ReadAndDecode) Load(ctx context.Context, b *Batch) error {
	n := rd.cfg.BatchSize
	if b == nil || b.MaxWidth <= 0 || b.MaxHeight <= 0 || b.Size != n || len(b.Data) < n*b.SampleSize() {
		return ErrInvalidBatch
	}
	if rd.reader.Count() < n {
		return reader.ErrNoMoreData
	}

	start := time.Now()
	if err := rd.readBatch(b); err != nil {
		return err
	}
	rd.readNS.Add(int64(time.Since(start)))

	start = time.Now()
	if err := rd.decodeBatch(ctx, b); err != nil {
		return err
	}
	rd.decodeNS.Add(int64(time.Since(start)))
	rd.batches.Add(1)
	return nil
}

// readBatch liest seriell; leere Samples werden uebersprungen. Endet der Reader
// nach dem ersten Sample, ist das ErrShortBatch und kein Epochenende.
func (rd *ReadAndDecode) readBatch(b *Batch) error {
	shapes, _ := rd.reader.(reader.ShapeReporter)
	padding, _ := rd.reader.(reader.PaddingReporter)
	if rd.cfg.SkipDecode && shapes == nil {
		return ErrNoShape
	}

	for i := 0; i < rd.cfg.BatchSize; {
		size, err := rd.reader.Open()
		if errors.Is(err, reader.ErrNoMoreData) && i > 0 {
			return fmt.Errorf("%w: %d of %d samples read", ErrShortBatch, i, rd.cfg.BatchSize)
		}
		if err != nil {
			return err
		}
		if size == 0 {
			slog.Warn("skipping empty sample", "id", rd.reader.ID())
			rd.reader.Close()
			continue
		}

		buf := rd.compressed[i]
		if cap(buf) < size {
			buf = make([]byte, size)
		}
		buf = buf[:size]
		m, err := rd.reader.Read(buf)
		b.Names[i] = rd.reader.ID()
		b.Padded[i] = padding != nil && padding.CurrentIsPadding()
		if shapes != nil {
			w, h := shapes.CurrentShape()
			rd.shapes[i] = [2]int{w, h}
		}
		rd.reader.Close()
		if err != nil {
			return fmt.Errorf("loader: read %s: %w", b.Names[i], err)
		}
		rd.compressed[i] = buf[:m]
		i++
	}
	return nil
}

// decoderFor liefert den Decoder fuer Slot i, der die Bytes von Slot src verarbeitet.
func (rd *ReadAndDecode) decoderFor(i, src int) (decoder.Decoder, error) {
	if !rd.cfg.SkipDecode {
		return rd.decoders[i], nil
	}
	w, h := rd.shapes[src][0], rd.shapes[src][1]
	if w <= 0 || h <= 0 {
		return nil, &decoder.Error{Status: decoder.StatusHeaderDecodeFailed, Err: fmt.Errorf("unknown shape %dx%d", w, h)}
	}
	return decoder.NewRaw(w, h, len(rd.compressed[src])/(w*h))
}

func (rd *ReadAndDecode) decodeBatch(ctx context.Context, b *Batch) error {
	n := rd.cfg.BatchSize
	for i := range n {
		rd.src[i] = i
		rd.failed[i] = false
	}

	// 1. Header parallel pruefen
	err := rd.parallel(ctx, func(i int) {
		dec, err := rd.decoderFor(i, i)
		if err == nil {
			rd.infos[i], err = dec.DecodeInfo(rd.compressed[i])
		}
		if err != nil {
			slog.Warn("sample header decode failed, substituting", "name", b.Names[i], "status", decoder.StatusOf(err), "error", err)
			rd.failed[i] = true
		}
	})
	if err != nil {
		return err
	}

	for i := range n {
		if !rd.failed[i] {
			continue
		}
		j, ok := Substitute(rd.failed, i)
		if !ok {
			return ErrAllFailed
		}
		rd.src[i] = j
		rd.infos[i] = rd.infos[j]
		b.Names[i] = b.Names[j]
	}

	// 2. Crop-Fenster setzen
	for i := range n {
		info := rd.infos[i]
		b.OrigWidths[i], b.OrigHeights[i] = uint32(info.Width), uint32(info.Height)
		b.Crops[i] = decoder.CropWindow{}
		if rd.cfg.CropWindows == nil || rd.cfg.SkipDecode || !rd.decoders[i].IsPartialDecoder() {
			continue
		}
		w, ok := rd.cfg.CropWindows.CropWindow(b.Names[i], info.Width, info.Height)
		if !ok {
			w = decoder.CropWindow{}
		}
		b.Crops[i] = w
		rd.decoders[i].SetCropWindow(w)
	}

	// 3. Volldekodierung parallel
	clear(rd.failed)
	req := decoder.Request{MaxWidth: b.MaxWidth, MaxHeight: b.MaxHeight, Color: b.Color}
	err = rd.parallel(ctx, func(i int) {
		dec, err := rd.decoderFor(i, rd.src[i])
		var res decoder.Result
		if err == nil {
			res, err = dec.Decode(rd.compressed[rd.src[i]], b.Sample(i), req)
		}
		if err != nil {
			slog.Warn("sample decode failed, substituting", "name", b.Names[i], "status", decoder.StatusOf(err), "error", err)
			rd.failed[i] = true
			return
		}
		b.Widths[i], b.Heights[i] = uint32(res.Width), uint32(res.Height)
	})
	if err != nil {
		return err
	}

	for i := range n {
		if !rd.failed[i] {
			continue
		}
		j, ok := Substitute(rd.failed, i)
		if !ok {
			return ErrAllFailed
		}
		copy(b.Sample(i), b.Sample(j))
		b.copySample(i, j)
	}
	return nil
}

// parallel fuehrt fn fuer jeden Slot aus, begrenzt durch den Semaphor.
func (rd *ReadAndDecode) parallel(ctx context.Context, fn func(i int)) error {
	var g errgroup.Group
	for i := range rd.cfg.BatchSize {
		g.Go(func() error {
			if err := rd.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer rd.sem.Release(1)
			fn(i)
			return nil
		})
	}
	return g.Wait()
}

// Substitute waehlt den Ersatz fuer den fehlgeschlagenen Slot i: das erste
// erfolgreiche Sample, rueckwaerts ab dem letzten Index gesucht.
func Substitute(failed []bool, i int) (int, bool) {
	for j := len(failed) - 1; j >= 0; j-- {
		if j != i && !failed[j] {
			return j, true
		}
	}
	return 0, false
}

// Release gibt alle Decoder frei.
func (rd *ReadAndDecode) Release() {
	for _, d := range rd.decoders {
		d.Release()
	}
	rd.decoders = nil
}
