package node

import (
	"context"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// pointwise wendet fn auf jedes Byte innerhalb der ROI an.
func (b *base) pointwise(ctx context.Context, fn func(i int, p uint8) uint8) error {
	in, out := b.in(), b.out()
	return b.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		iv, ov := sampleView(in, i), sampleView(out, i)
		for y := range h {
			for x := range w {
				for c := range iv.c {
					ov.set(x, y, c, fn(i, iv.at(x, y, c)))
				}
			}
		}
		setROI(out, i, w, h)
		return nil
	})
}

// Brightness: out = alpha*in + beta
type Brightness struct {
	base
	alpha *param.Batch[float32]
	beta  *param.Batch[float32]
}

func NewBrightness(in, out *tensor.Tensor, alpha, beta param.Parameter[float32]) *Brightness {
	n := in.Info().BatchSize()
	return &Brightness{
		base:  newBase("brightness", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		alpha: param.NewBatch(alpha, n),
		beta:  param.NewBatch(beta, n),
	}
}

func (b *Brightness) Create() error { return b.checkImages() }

func (b *Brightness) Update() error {
	b.alpha.Renew()
	b.beta.Renew()
	return nil
}

func (b *Brightness) Process(ctx context.Context) error {
	return b.pointwise(ctx, func(i int, p uint8) uint8 {
		return clampByte(b.alpha.At(i)*float32(p) + b.beta.At(i))
	})
}

// Contrast streckt den Bereich [min, max] linear auf [0, 255].
type Contrast struct {
	base
	lo *param.Batch[int]
	hi *param.Batch[int]
}

func NewContrast(in, out *tensor.Tensor, lo, hi param.Parameter[int]) *Contrast {
	n := in.Info().BatchSize()
	return &Contrast{
		base: newBase("contrast", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		lo:   param.NewBatch(lo, n),
		hi:   param.NewBatch(hi, n),
	}
}

func (c *Contrast) Create() error { return c.checkImages() }

func (c *Contrast) Update() error {
	c.lo.Renew()
	c.hi.Renew()
	return nil
}

func (c *Contrast) Process(ctx context.Context) error {
	return c.pointwise(ctx, func(i int, p uint8) uint8 {
		lo, hi := float32(c.lo.At(i)), float32(c.hi.At(i))
		if hi <= lo {
			return p
		}
		return clampByte((float32(p) - lo) * 255 / (hi - lo))
	})
}

// Blend mischt zwei Eingaenge: out = ratio*a + (1-ratio)*b. Die ROI ist
// die Schnittmenge beider Eingaenge.
type Blend struct {
	base
	ratio *param.Batch[float32]
}

func NewBlend(a, b, out *tensor.Tensor, ratio param.Parameter[float32]) *Blend {
	return &Blend{
		base:  newBase("blend", []*tensor.Tensor{a, b}, []*tensor.Tensor{out}),
		ratio: param.NewBatch(ratio, a.Info().BatchSize()),
	}
}

func (b *Blend) Create() error {
	if err := b.checkImages(); err != nil {
		return err
	}
	ia, ib := b.inputs[0].Info(), b.inputs[1].Info()
	if ia.MaxWidth() != ib.MaxWidth() || ia.MaxHeight() != ib.MaxHeight() || ia.Channels() != ib.Channels() {
		return ErrShapeMismatch
	}
	return nil
}

func (b *Blend) Update() error {
	b.ratio.Renew()
	return nil
}

func (b *Blend) Process(ctx context.Context) error {
	a, bt, out := b.inputs[0], b.inputs[1], b.out()
	return b.forEach(ctx, func(i int) error {
		wa, ha := roiOf(a, i)
		wb, hb := roiOf(bt, i)
		w, h := min(wa, wb), min(ha, hb)
		r := min(max(b.ratio.At(i), 0), 1)

		av, bv, ov := sampleView(a, i), sampleView(bt, i), sampleView(out, i)
		for y := range h {
			for x := range w {
				for c := range av.c {
					ov.set(x, y, c, clampByte(r*float32(av.at(x, y, c))+(1-r)*float32(bv.at(x, y, c))))
				}
			}
		}
		setROI(out, i, w, h)
		return nil
	})
}
