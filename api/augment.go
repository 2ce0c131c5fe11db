package api

import (
	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/tensor"
)

// augment loest Eingabe-Tensor und Parameter auf und haengt den Knoten an.
// Ein ungueltiges Handle fuehrt zu InvalidTensor und RUNTIME_ERROR bzw.
// INVALID_PARAMETER_TYPE in GetStatus.
func augment(h Handle, op string, in TensorHandle, fn func(c *pipeline.Context, in *tensor.Tensor) (*tensor.Tensor, error)) TensorHandle {
	return addTensor(h, op, func(c *pipeline.Context) (*tensor.Tensor, error) {
		t, err := tensorOf(in)
		if err != nil {
			return nil, err
		}
		return fn(c, t)
	})
}

// params2 loest zwei Parameter-Handles gleichen Typs auf.
func params2[T param.Number](a, b ParamHandle) (param.Parameter[T], param.Parameter[T], error) {
	pa, err := paramOf[T](a)
	if err != nil {
		return nil, nil, err
	}
	pb, err := paramOf[T](b)
	if err != nil {
		return nil, nil, err
	}
	return pa, pb, nil
}

func Resize(h Handle, in TensorHandle, isOutput bool, opts node.ResizeOptions) TensorHandle {
	return augment(h, "resize", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		return c.Resize(t, isOutput, opts)
	})
}

// Rotate dreht um angle Grad; width/height 0 behalten die Eingangsgroesse.
func Rotate(h Handle, in TensorHandle, isOutput bool, angle ParamHandle, width, height int, interp node.Interpolation) TensorHandle {
	return augment(h, "rotate", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		a, err := paramOf[float32](angle)
		if err != nil {
			return nil, err
		}
		return c.Rotate(t, isOutput, a, width, height, interp)
	})
}

func Flip(h Handle, in TensorHandle, isOutput bool, horizontal, vertical ParamHandle) TensorHandle {
	return augment(h, "flip", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		hp, vp, err := params2[int](horizontal, vertical)
		if err != nil {
			return nil, err
		}
		return c.Flip(t, isOutput, hp, vp)
	})
}

func Crop(h Handle, in TensorHandle, isOutput bool, width, height int, anchorX, anchorY ParamHandle) TensorHandle {
	return augment(h, "crop", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		ax, ay, err := params2[float32](anchorX, anchorY)
		if err != nil {
			return nil, err
		}
		return c.Crop(t, isOutput, width, height, ax, ay)
	})
}

func CenterCrop(h Handle, in TensorHandle, isOutput bool, width, height int) TensorHandle {
	return augment(h, "center crop", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		return c.CenterCrop(t, isOutput, width, height)
	})
}

func CropResize(h Handle, in TensorHandle, isOutput bool, width, height int, area, ratio ParamHandle, interp node.Interpolation) TensorHandle {
	return augment(h, "crop resize", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		a, r, err := params2[float32](area, ratio)
		if err != nil {
			return nil, err
		}
		return c.CropResize(t, isOutput, width, height, a, r, interp)
	})
}

func Brightness(h Handle, in TensorHandle, isOutput bool, alpha, beta ParamHandle) TensorHandle {
	return augment(h, "brightness", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		a, b, err := params2[float32](alpha, beta)
		if err != nil {
			return nil, err
		}
		return c.Brightness(t, isOutput, a, b)
	})
}

func Contrast(h Handle, in TensorHandle, isOutput bool, lo, hi ParamHandle) TensorHandle {
	return augment(h, "contrast", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		l, u, err := params2[int](lo, hi)
		if err != nil {
			return nil, err
		}
		return c.Contrast(t, isOutput, l, u)
	})
}

func Blend(h Handle, a, b TensorHandle, isOutput bool, ratio ParamHandle) TensorHandle {
	return augment(h, "blend", a, func(c *pipeline.Context, ta *tensor.Tensor) (*tensor.Tensor, error) {
		tb, err := tensorOf(b)
		if err != nil {
			return nil, err
		}
		r, err := paramOf[float32](ratio)
		if err != nil {
			return nil, err
		}
		return c.Blend(ta, tb, isOutput, r)
	})
}

// CropMirrorNormalize ist die fusionierte Operation mit frei waehlbarem
// Ausgabe-Layout und -Datentyp.
func CropMirrorNormalize(h Handle, in TensorHandle, isOutput bool, opts node.CMNOptions, anchorX, anchorY, mirror ParamHandle, layout tensor.Layout, dtype tensor.DataType) TensorHandle {
	return augment(h, "crop mirror normalize", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		ax, ay, err := params2[float32](anchorX, anchorY)
		if err != nil {
			return nil, err
		}
		m, err := paramOf[int](mirror)
		if err != nil {
			return nil, err
		}
		return c.CropMirrorNormalize(t, isOutput, opts, ax, ay, m, layout, dtype)
	})
}

func Copy(h Handle, in TensorHandle, isOutput bool) TensorHandle {
	return augment(h, "copy", in, func(c *pipeline.Context, t *tensor.Tensor) (*tensor.Tensor, error) {
		return c.Copy(t, isOutput)
	})
}
