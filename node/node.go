// Package node - Augmentierungs-Knoten des Verarbeitungsgraphen
//
// Dieses Modul enthaelt:
// - Node: Interface (Create einmal beim Finalisieren, Update/Process pro Batch)
// - base: gemeinsame Felder und Sample-Parallelisierung
// - Kernel fuer Resize, Rotate, Flip, Crop, CropResize, Brightness, Contrast,
//   Blend, CropMirrorNormalize und Copy auf Host-Puffern (uint8, NHWC/NCHW)
//
// Form-aendernde Knoten schreiben die Ausgabe-ROI pro Sample; alle anderen
// uebernehmen die ROI des Eingangs.
package node

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/rocal/tensor"
)

var (
	ErrUnsupportedLayout = errors.New("node: unsupported layout")
	ErrUnsupportedType   = errors.New("node: unsupported data type")
	ErrShapeMismatch     = errors.New("node: input and output shapes do not match")
	ErrInvalidArgument   = errors.New("node: invalid argument")
)

// Node ist ein Verarbeitungsschritt mit festen Ein- und Ausgabe-Tensoren.
type Node interface {
	Name() string
	Inputs() []*tensor.Tensor
	Outputs() []*tensor.Tensor
	// Create prueft die Tensoren und reserviert Knoten-Ressourcen
	Create() error
	// Update zieht neue Zufallsparameter fuer den naechsten Batch
	Update() error
	// Process berechnet die Ausgabe fuer den aktuellen Batch
	Process(ctx context.Context) error
	// IsOutput gibt true zurueck, wenn die Ausgabe ein Pipeline-Ausgang ist
	IsOutput() bool
	SetOutput(bool)
}

// base implementiert die gemeinsamen Teile des Interfaces.
type base struct {
	name    string
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
	output  bool
	threads int
}

func newBase(name string, in []*tensor.Tensor, out []*tensor.Tensor) base {
	return base{name: name, inputs: in, outputs: out, threads: runtime.GOMAXPROCS(0)}
}

func (b *base) Name() string              { return b.name }
func (b *base) Inputs() []*tensor.Tensor  { return b.inputs }
func (b *base) Outputs() []*tensor.Tensor { return b.outputs }
func (b *base) IsOutput() bool            { return b.output }
func (b *base) SetOutput(v bool)          { b.output = v }
func (b *base) Update() error             { return nil }

// SetThreads begrenzt die parallel bearbeiteten Samples.
func (b *base) SetThreads(n int) {
	if n > 0 {
		b.threads = n
	}
}

func (b *base) in() *tensor.Tensor  { return b.inputs[0] }
func (b *base) out() *tensor.Tensor { return b.outputs[0] }

// checkImages prueft, dass alle Tensoren uint8-Bilder gleicher Batchgroesse sind.
func (b *base) checkImages() error {
	n := b.in().Info().BatchSize()
	for _, t := range append(append([]*tensor.Tensor{}, b.inputs...), b.outputs...) {
		info := t.Info()
		if l := info.Layout(); l != tensor.LayoutNHWC && l != tensor.LayoutNCHW {
			return fmt.Errorf("%w: %s in %s", ErrUnsupportedLayout, l, b.name)
		}
		if info.DataType() != tensor.UInt8 {
			return fmt.Errorf("%w: %s in %s", ErrUnsupportedType, info.DataType(), b.name)
		}
		if info.BatchSize() != n {
			return fmt.Errorf("%w: batch %d vs %d in %s", tensor.ErrBatchSizeMismatch, info.BatchSize(), n, b.name)
		}
	}
	if b.in().Info().Channels() != b.out().Info().Channels() {
		return fmt.Errorf("%w: channels differ in %s", ErrShapeMismatch, b.name)
	}
	return nil
}

// forEach fuehrt fn parallel fuer jedes Sample aus.
func (b *base) forEach(ctx context.Context, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)
	for i := range b.in().Info().BatchSize() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}

// roiOf liefert Breite und Hoehe von Sample i.
func roiOf(t *tensor.Tensor, i int) (int, int) {
	s := t.ROI().Shape(i)
	return int(s[0]), int(s[1])
}

// setROI setzt die Ausgabe-ROI eines Samples, geklemmt auf die Max-Shape.
func setROI(t *tensor.Tensor, i, w, h int) {
	w = min(max(w, 0), t.Info().MaxWidth())
	h = min(max(h, 0), t.Info().MaxHeight())
	clear(t.ROI().Begin(i))
	s := t.ROI().Shape(i)
	s[0], s[1] = uint32(w), uint32(h)
}

func clampByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
