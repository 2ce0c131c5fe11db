package pipeline

import (
	"fmt"

	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// ============================================================================
// Graph-Aufbau
// ============================================================================

// shapeFunc leitet den Ausgabe-Footprint aus dem Eingangs-Footprint ab.
type shapeFunc func(w, h int) (int, int)

func sameShape(w, h int) (int, int) { return w, h }

func fixedShape(ow, oh int) shapeFunc {
	return func(w, h int) (int, int) {
		if ow > 0 {
			w = ow
		}
		if oh > 0 {
			h = oh
		}
		return w, h
	}
}

// augment legt den Ausgabe-Tensor an, erzeugt den Knoten und haengt ihn an den Graphen.
func (c *Context) augment(inputs []*tensor.Tensor, isOutput bool, shape shapeFunc, layout tensor.Layout, dtype tensor.DataType, build func(out *tensor.Tensor) (node.Node, error)) (*tensor.Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return nil, err
	}
	for _, in := range inputs {
		if in == nil || !c.tensors[in] {
			return nil, ErrForeignTensor
		}
	}

	info := inputs[0].Info()
	w, h := shape(info.MaxWidth(), info.MaxHeight())
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", ErrInvalidArgument, w, h)
	}
	n, ch := info.BatchSize(), info.Channels()
	var dims []int
	switch layout {
	case tensor.LayoutNHWC:
		dims = []int{n, h, w, ch}
	case tensor.LayoutNCHW:
		dims = []int{n, ch, h, w}
	default:
		return nil, fmt.Errorf("%w: %s", tensor.ErrInvalidLayoutConversion, layout)
	}
	out, err := tensor.NewFromDims(dims, c.opts.OutputMemType, dtype, layout)
	if err != nil {
		return nil, err
	}
	out.Info().SetColorFormat(info.ColorFormat())

	nd, err := build(out)
	if err != nil {
		return nil, err
	}
	nd.SetOutput(isOutput)
	if t, ok := nd.(interface{ SetThreads(int) }); ok && c.opts.Threads > 0 {
		t.SetThreads(c.opts.Threads)
	}
	if err := c.graph.AddNode(nd); err != nil {
		return nil, err
	}
	c.tensors[out] = true
	return out, nil
}

// image baut einen uint8-Knoten mit dem Layout der Eingabe.
func (c *Context) image(in *tensor.Tensor, isOutput bool, shape shapeFunc, build func(out *tensor.Tensor) (node.Node, error)) (*tensor.Tensor, error) {
	if in == nil {
		return nil, ErrForeignTensor
	}
	return c.augment([]*tensor.Tensor{in}, isOutput, shape, in.Info().Layout(), tensor.UInt8, build)
}

// fixedOr liefert p oder einen festen Default.
func fixedOr[T param.Number](p param.Parameter[T], v T) param.Parameter[T] {
	if p != nil {
		return p
	}
	return param.NewSimple(v)
}

// uniformOr liefert p oder einen gleichverteilten Default.
func uniformOr[T param.Number](p param.Parameter[T], lo, hi T) (param.Parameter[T], error) {
	if p != nil {
		return p, nil
	}
	u, err := param.NewUniform(lo, hi)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ============================================================================
// Augmentierungen
// ============================================================================

// Resize skaliert auf die Zielgroesse des gewaehlten Modus.
func (c *Context) Resize(in *tensor.Tensor, isOutput bool, opts node.ResizeOptions) (*tensor.Tensor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return c.image(in, isOutput, opts.OutputMax, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewResize(in, out, opts), nil
	})
}

// Rotate dreht um angle Grad (nil: gleichverteilt 0..180). width/height 0 behalten den Footprint.
func (c *Context) Rotate(in *tensor.Tensor, isOutput bool, angle param.Parameter[float32], width, height int, interp node.Interpolation) (*tensor.Tensor, error) {
	angle, err := uniformOr(angle, 0, 180)
	if err != nil {
		return nil, err
	}
	return c.image(in, isOutput, fixedShape(width, height), func(out *tensor.Tensor) (node.Node, error) {
		return node.NewRotate(in, out, angle, width, height, interp), nil
	})
}

// Flip spiegelt horizontal und/oder vertikal (Parameter 0 oder 1).
func (c *Context) Flip(in *tensor.Tensor, isOutput bool, horizontal, vertical param.Parameter[int]) (*tensor.Tensor, error) {
	horizontal, vertical = fixedOr(horizontal, 1), fixedOr(vertical, 0)
	return c.image(in, isOutput, sameShape, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewFlip(in, out, horizontal, vertical), nil
	})
}

// Crop schneidet width x height an relativer Position (anchorX, anchorY) aus.
func (c *Context) Crop(in *tensor.Tensor, isOutput bool, width, height int, anchorX, anchorY param.Parameter[float32]) (*tensor.Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: crop %dx%d", ErrInvalidArgument, width, height)
	}
	anchorX, err := uniformOr(anchorX, 0, 1)
	if err != nil {
		return nil, err
	}
	anchorY, err = uniformOr(anchorY, 0, 1)
	if err != nil {
		return nil, err
	}
	return c.image(in, isOutput, fixedShape(width, height), func(out *tensor.Tensor) (node.Node, error) {
		return node.NewCrop(in, out, width, height, anchorX, anchorY), nil
	})
}

// CenterCrop schneidet width x height aus der Mitte aus.
func (c *Context) CenterCrop(in *tensor.Tensor, isOutput bool, width, height int) (*tensor.Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: crop %dx%d", ErrInvalidArgument, width, height)
	}
	return c.image(in, isOutput, fixedShape(width, height), func(out *tensor.Tensor) (node.Node, error) {
		return node.NewCenterCrop(in, out, width, height), nil
	})
}

// CropResize waehlt ein zufaelliges Fenster (Flaechenanteil, Seitenverhaeltnis)
// und skaliert es auf width x height.
func (c *Context) CropResize(in *tensor.Tensor, isOutput bool, width, height int, area, ratio param.Parameter[float32], interp node.Interpolation) (*tensor.Tensor, error) {
	area, err := uniformOr(area, 0.08, 1)
	if err != nil {
		return nil, err
	}
	ratio, err = uniformOr(ratio, 3.0/4.0, 4.0/3.0)
	if err != nil {
		return nil, err
	}
	return c.image(in, isOutput, fixedShape(width, height), func(out *tensor.Tensor) (node.Node, error) {
		return node.NewCropResize(in, out, width, height, area, ratio, interp)
	})
}

// Brightness berechnet alpha*p + beta.
func (c *Context) Brightness(in *tensor.Tensor, isOutput bool, alpha, beta param.Parameter[float32]) (*tensor.Tensor, error) {
	alpha, err := uniformOr(alpha, 0.1, 1.95)
	if err != nil {
		return nil, err
	}
	beta, err = uniformOr(beta, 0, 25)
	if err != nil {
		return nil, err
	}
	return c.image(in, isOutput, sameShape, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewBrightness(in, out, alpha, beta), nil
	})
}

// Contrast streckt den Bereich [lo, hi] auf 0..255.
func (c *Context) Contrast(in *tensor.Tensor, isOutput bool, lo, hi param.Parameter[int]) (*tensor.Tensor, error) {
	lo, err := uniformOr(lo, 60, 90)
	if err != nil {
		return nil, err
	}
	hi, err = uniformOr(hi, 100, 200)
	if err != nil {
		return nil, err
	}
	return c.image(in, isOutput, sameShape, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewContrast(in, out, lo, hi), nil
	})
}

// Blend mischt a und b mit ratio*a + (1-ratio)*b.
func (c *Context) Blend(a, b *tensor.Tensor, isOutput bool, ratio param.Parameter[float32]) (*tensor.Tensor, error) {
	if a == nil || b == nil {
		return nil, ErrForeignTensor
	}
	ratio, err := uniformOr(ratio, 0.1, 0.9)
	if err != nil {
		return nil, err
	}
	return c.augment([]*tensor.Tensor{a, b}, isOutput, sameShape, a.Info().Layout(), tensor.UInt8, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewBlend(a, b, out, ratio), nil
	})
}

// CropMirrorNormalize schneidet aus, spiegelt optional und normalisiert in
// das gewuenschte Layout und den gewuenschten Datentyp.
func (c *Context) CropMirrorNormalize(in *tensor.Tensor, isOutput bool, opts node.CMNOptions, anchorX, anchorY param.Parameter[float32], mirror param.Parameter[int], layout tensor.Layout, dtype tensor.DataType) (*tensor.Tensor, error) {
	if in == nil {
		return nil, ErrForeignTensor
	}
	anchorX, anchorY = fixedOr(anchorX, 0.5), fixedOr(anchorY, 0.5)
	mirror = fixedOr(mirror, 0)
	return c.augment([]*tensor.Tensor{in}, isOutput, fixedShape(opts.Width, opts.Height), layout, dtype, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewCropMirrorNormalize(in, out, opts, anchorX, anchorY, mirror), nil
	})
}

// Copy kopiert die Eingabe unveraendert.
func (c *Context) Copy(in *tensor.Tensor, isOutput bool) (*tensor.Tensor, error) {
	return c.image(in, isOutput, sameShape, func(out *tensor.Tensor) (node.Node, error) {
		return node.NewCopy(in, out), nil
	})
}
