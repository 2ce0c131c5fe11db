package node

import (
	"context"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// Flip spiegelt Samples horizontal und/oder vertikal (Parameter 0 oder 1 pro Sample).
type Flip struct {
	base
	horizontal *param.Batch[int]
	vertical   *param.Batch[int]
}

func NewFlip(in, out *tensor.Tensor, horizontal, vertical param.Parameter[int]) *Flip {
	n := in.Info().BatchSize()
	return &Flip{
		base:       newBase("flip", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		horizontal: param.NewBatch(horizontal, n),
		vertical:   param.NewBatch(vertical, n),
	}
}

func (f *Flip) Create() error {
	if err := f.checkImages(); err != nil {
		return err
	}
	if f.in().Info().DataSize() != f.out().Info().DataSize() {
		return ErrShapeMismatch
	}
	return nil
}

func (f *Flip) Update() error {
	f.horizontal.Renew()
	f.vertical.Renew()
	return nil
}

func (f *Flip) Process(ctx context.Context) error {
	in, out := f.in(), f.out()
	return f.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		hf, vf := f.horizontal.At(i) != 0, f.vertical.At(i) != 0
		iv, ov := sampleView(in, i), sampleView(out, i)
		for y := range h {
			sy := y
			if vf {
				sy = h - 1 - y
			}
			for x := range w {
				sx := x
				if hf {
					sx = w - 1 - x
				}
				for c := range iv.c {
					ov.set(x, y, c, iv.at(sx, sy, c))
				}
			}
		}
		setROI(out, i, w, h)
		return nil
	})
}
