package node

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/image/draw"

	"github.com/7blacky7/rocal/tensor"
)

// ScalingMode bestimmt, wie die Zielgroesse aus der Eingangsgroesse folgt.
type ScalingMode int

const (
	// ScaleDefault: exakte Groesse; ist eine Seite 0, bleibt das Seitenverhaeltnis erhalten
	ScaleDefault ScalingMode = iota
	// ScaleStretch: exakte Groesse; eine 0-Seite behaelt die Eingangsgroesse
	ScaleStretch
	// ScaleNotSmaller: Seitenverhaeltnis erhalten, Ergebnis ueberdeckt Width x Height
	ScaleNotSmaller
	// ScaleNotLarger: Seitenverhaeltnis erhalten, Ergebnis passt in Width x Height
	ScaleNotLarger
	// ScaleMinMax: kuerzere Seite auf MinSize, laengere hoechstens MaxSize
	ScaleMinMax
)

// Interpolation waehlt den Skalierungskern.
type Interpolation int

const (
	InterpLinear Interpolation = iota
	InterpNearest
	InterpApproxLinear
	InterpCubic
)

func (i Interpolation) scaler() draw.Interpolator {
	switch i {
	case InterpNearest:
		return draw.NearestNeighbor
	case InterpApproxLinear:
		return draw.ApproxBiLinear
	case InterpCubic:
		return draw.CatmullRom
	}
	return draw.BiLinear
}

// ResizeOptions beschreibt die Zielgroesse.
type ResizeOptions struct {
	Width, Height int
	Mode          ScalingMode
	Interp        Interpolation
	MinSize       int // nur ScaleMinMax
	MaxSize       int // Obergrenze je Seite, 0 = keine
}

// Target berechnet die Zielgroesse fuer ein Sample der Groesse w x h.
func (o ResizeOptions) Target(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	fw, fh := float64(w), float64(h)

	var ow, oh int
	switch o.Mode {
	case ScaleStretch:
		ow, oh = o.Width, o.Height
		if ow == 0 {
			ow = w
		}
		if oh == 0 {
			oh = h
		}
	case ScaleNotSmaller, ScaleNotLarger:
		sx, sy := float64(o.Width)/fw, float64(o.Height)/fh
		var s float64
		switch {
		case o.Width == 0:
			s = sy
		case o.Height == 0:
			s = sx
		case o.Mode == ScaleNotSmaller:
			s = math.Max(sx, sy)
		default:
			s = math.Min(sx, sy)
		}
		ow, oh = int(math.Round(fw*s)), int(math.Round(fh*s))
	case ScaleMinMax:
		s := float64(o.MinSize) / math.Min(fw, fh)
		if o.MaxSize > 0 && math.Max(fw, fh)*s > float64(o.MaxSize) {
			s = float64(o.MaxSize) / math.Max(fw, fh)
		}
		ow, oh = int(math.Round(fw*s)), int(math.Round(fh*s))
	default:
		ow, oh = o.Width, o.Height
		switch {
		case ow == 0 && oh == 0:
			ow, oh = w, h
		case ow == 0:
			ow = int(math.Round(fw * float64(oh) / fh))
		case oh == 0:
			oh = int(math.Round(fh * float64(ow) / fw))
		}
	}

	if o.MaxSize > 0 && o.Mode != ScaleMinMax && (ow > o.MaxSize || oh > o.MaxSize) {
		s := float64(o.MaxSize) / float64(max(ow, oh))
		ow, oh = int(math.Round(float64(ow)*s)), int(math.Round(float64(oh)*s))
	}
	return max(ow, 1), max(oh, 1)
}

// OutputMax gibt den Footprint der Ausgabe fuer einen Eingangs-Footprint zurueck.
func (o ResizeOptions) OutputMax(inW, inH int) (int, int) {
	switch o.Mode {
	case ScaleNotLarger:
		if o.Width > 0 && o.Height > 0 {
			return o.Width, o.Height
		}
	case ScaleNotSmaller, ScaleMinMax:
		if o.MaxSize > 0 {
			return o.MaxSize, o.MaxSize
		}
	}
	return o.Target(inW, inH)
}

// Validate prueft die Optionen.
func (o ResizeOptions) Validate() error {
	if o.Width < 0 || o.Height < 0 || o.MaxSize < 0 {
		return fmt.Errorf("%w: negative resize size", ErrInvalidArgument)
	}
	if o.Mode == ScaleMinMax && o.MinSize <= 0 {
		return fmt.Errorf("%w: min-max scaling needs MinSize", ErrInvalidArgument)
	}
	if o.Mode != ScaleMinMax && o.Width == 0 && o.Height == 0 {
		return fmt.Errorf("%w: resize needs width or height", ErrInvalidArgument)
	}
	return nil
}

// Resize skaliert jedes Sample auf die Zielgroesse.
type Resize struct {
	base
	opts ResizeOptions
}

func NewResize(in, out *tensor.Tensor, opts ResizeOptions) *Resize {
	return &Resize{base: newBase("resize", []*tensor.Tensor{in}, []*tensor.Tensor{out}), opts: opts}
}

func (r *Resize) Create() error {
	if err := r.opts.Validate(); err != nil {
		return err
	}
	return r.checkImages()
}

func (r *Resize) Process(ctx context.Context) error {
	in, out := r.in(), r.out()
	scaler := r.opts.Interp.scaler()
	maxW, maxH := out.Info().MaxWidth(), out.Info().MaxHeight()

	return r.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		ow, oh := r.opts.Target(w, h)
		ow, oh = min(ow, maxW), min(oh, maxH)
		if w == 0 || h == 0 {
			setROI(out, i, 0, 0)
			return nil
		}

		iv, ov := sampleView(in, i), sampleView(out, i)
		src := iv.toImage(w, h)
		dst := ov.newImage(ow, oh)
		scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		ov.fromImage(dst)
		setROI(out, i, ow, oh)
		return nil
	})
}
