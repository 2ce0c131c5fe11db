// MODUL: cmn
// ZWECK: Crop + Spiegeln + Normalisieren in einem Schritt
// INPUT: uint8-Bild (NHWC/NCHW), Crop-Groesse und Anker, Mirror-Parameter, Mean/Std pro Kanal
// OUTPUT: Float32/Float16/UInt8-Tensor im gewaehlten Layout
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/x448/float16
// HINWEISE: out = (in - mean[c]) / std[c]; UInt8-Ausgabe wird geklemmt

package node

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// CMNOptions beschreibt Crop und Normalisierung.
type CMNOptions struct {
	Width, Height int
	Mean          []float32
	Std           []float32
}

// CropMirrorNormalize schneidet aus, spiegelt optional und normalisiert.
type CropMirrorNormalize struct {
	base
	opts    CMNOptions
	anchorX *param.Batch[float32]
	anchorY *param.Batch[float32]
	mirror  *param.Batch[int]
}

func NewCropMirrorNormalize(in, out *tensor.Tensor, opts CMNOptions, anchorX, anchorY param.Parameter[float32], mirror param.Parameter[int]) *CropMirrorNormalize {
	n := in.Info().BatchSize()
	return &CropMirrorNormalize{
		base:    newBase("crop_mirror_normalize", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		opts:    opts,
		anchorX: param.NewBatch(anchorX, n),
		anchorY: param.NewBatch(anchorY, n),
		mirror:  param.NewBatch(mirror, n),
	}
}

func (c *CropMirrorNormalize) Create() error {
	in, out := c.in().Info(), c.out().Info()
	if in.DataType() != tensor.UInt8 {
		return fmt.Errorf("%w: %s input", ErrUnsupportedType, in.DataType())
	}
	for _, l := range []tensor.Layout{in.Layout(), out.Layout()} {
		if l != tensor.LayoutNHWC && l != tensor.LayoutNCHW {
			return fmt.Errorf("%w: %s", ErrUnsupportedLayout, l)
		}
	}
	switch out.DataType() {
	case tensor.Float32, tensor.Float16, tensor.UInt8:
	default:
		return fmt.Errorf("%w: %s output", ErrUnsupportedType, out.DataType())
	}

	ch := in.Channels()
	if len(c.opts.Mean) != ch || len(c.opts.Std) != ch || out.Channels() != ch {
		return fmt.Errorf("%w: mean/std need %d channels", ErrInvalidArgument, ch)
	}
	for _, s := range c.opts.Std {
		if s == 0 {
			return fmt.Errorf("%w: zero std", ErrInvalidArgument)
		}
	}
	if c.opts.Width <= 0 || c.opts.Height <= 0 {
		return fmt.Errorf("%w: crop %dx%d", ErrInvalidArgument, c.opts.Width, c.opts.Height)
	}
	return nil
}

func (c *CropMirrorNormalize) Update() error {
	c.anchorX.Renew()
	c.anchorY.Renew()
	c.mirror.Renew()
	return nil
}

func (c *CropMirrorNormalize) Process(ctx context.Context) error {
	in, out := c.in(), c.out()
	oi := out.Info()
	elem := oi.DataType().Size()
	planar := oi.Layout() == tensor.LayoutNCHW
	maxW, maxH := oi.MaxWidth(), oi.MaxHeight()

	var put func(b []byte, v float32)
	switch oi.DataType() {
	case tensor.Float32:
		put = func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
	case tensor.Float16:
		put = func(b []byte, v float32) { binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits()) }
	default:
		put = func(b []byte, v float32) { b[0] = clampByte(v) }
	}

	return c.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		x0, y0, ow, oh := window(w, h, c.opts.Width, c.opts.Height, c.anchorX.At(i), c.anchorY.At(i))
		ow, oh = min(ow, maxW), min(oh, maxH)
		mirror := c.mirror.At(i) != 0

		iv := sampleView(in, i)
		dst := out.Sample(i)
		for y := range oh {
			for x := range ow {
				sx := x0 + x
				if mirror {
					sx = x0 + ow - 1 - x
				}
				for ch := range iv.c {
					v := (float32(iv.at(sx, y0+y, ch)) - c.opts.Mean[ch]) / c.opts.Std[ch]
					var o int
					if planar {
						o = ch*maxW*maxH + y*maxW + x
					} else {
						o = (y*maxW+x)*iv.c + ch
					}
					put(dst[o*elem:], v)
				}
			}
		}
		setROI(out, i, ow, oh)
		return nil
	})
}
