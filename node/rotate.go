package node

import (
	"context"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// Rotate dreht jedes Sample um seinen Mittelpunkt (Grad, gegen den Uhrzeigersinn).
// Die Ausgabe-ROI ist Width x Height oder, falls 0, die Eingangs-ROI.
type Rotate struct {
	base
	angle         *param.Batch[float32]
	width, height int
	interp        Interpolation
}

func NewRotate(in, out *tensor.Tensor, angle param.Parameter[float32], width, height int, interp Interpolation) *Rotate {
	return &Rotate{
		base:   newBase("rotate", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		angle:  param.NewBatch(angle, in.Info().BatchSize()),
		width:  width,
		height: height,
		interp: interp,
	}
}

func (r *Rotate) Create() error { return r.checkImages() }

func (r *Rotate) Update() error {
	r.angle.Renew()
	return nil
}

// Angles gibt die Winkel des aktuellen Batches zurueck.
func (r *Rotate) Angles() []float32 { return r.angle.Values() }

func (r *Rotate) Process(ctx context.Context) error {
	in, out := r.in(), r.out()
	scaler := r.interp.scaler()

	return r.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		if w == 0 || h == 0 {
			setROI(out, i, 0, 0)
			return nil
		}
		ow, oh := w, h
		if r.width > 0 {
			ow = r.width
		}
		if r.height > 0 {
			oh = r.height
		}
		ow, oh = min(ow, out.Info().MaxWidth()), min(oh, out.Info().MaxHeight())

		iv, ov := sampleView(in, i), sampleView(out, i)
		src := iv.toImage(w, h)
		dst := ov.newImage(ow, oh)
		scaler.Transform(dst, rotation(float64(r.angle.At(i)), w, h, ow, oh), src, src.Bounds(), draw.Src, nil)
		ov.fromImage(dst)
		setROI(out, i, ow, oh)
		return nil
	})
}

// rotation liefert die Abbildung Quelle -> Ziel fuer eine Drehung um die Bildmitten.
func rotation(deg float64, sw, sh, dw, dh int) f64.Aff3 {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	scx, scy := float64(sw)/2, float64(sh)/2
	dcx, dcy := float64(dw)/2, float64(dh)/2
	return f64.Aff3{
		cos, sin, dcx - cos*scx - sin*scy,
		-sin, cos, dcy + sin*scx - cos*scy,
	}
}
