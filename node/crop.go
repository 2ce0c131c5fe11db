package node

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/tensor"
)

// Crop schneidet ein Fenster fester Groesse aus. Die Anker (0..1) legen die
// Position relativ zum freien Bereich fest; 0.5/0.5 ist ein Center-Crop.
type Crop struct {
	base
	width, height int
	anchorX       *param.Batch[float32]
	anchorY       *param.Batch[float32]
}

func NewCrop(in, out *tensor.Tensor, width, height int, anchorX, anchorY param.Parameter[float32]) *Crop {
	n := in.Info().BatchSize()
	return &Crop{
		base:    newBase("crop", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		width:   width,
		height:  height,
		anchorX: param.NewBatch(anchorX, n),
		anchorY: param.NewBatch(anchorY, n),
	}
}

// NewCenterCrop ist ein Crop mit festen Ankern 0.5.
func NewCenterCrop(in, out *tensor.Tensor, width, height int) *Crop {
	c := NewCrop(in, out, width, height, param.NewSimple[float32](0.5), param.NewSimple[float32](0.5))
	c.name = "center_crop"
	return c
}

func (c *Crop) Create() error {
	if c.width <= 0 || c.height <= 0 {
		return fmt.Errorf("%w: crop %dx%d", ErrInvalidArgument, c.width, c.height)
	}
	return c.checkImages()
}

func (c *Crop) Update() error {
	c.anchorX.Renew()
	c.anchorY.Renew()
	return nil
}

// window berechnet das Crop-Fenster innerhalb von w x h.
func window(w, h, cw, ch int, ax, ay float32) (x0, y0, ow, oh int) {
	ow, oh = min(cw, w), min(ch, h)
	ax, ay = min(max(ax, 0), 1), min(max(ay, 0), 1)
	x0 = int(ax * float32(w-ow))
	y0 = int(ay * float32(h-oh))
	return
}

func (c *Crop) Process(ctx context.Context) error {
	in, out := c.in(), c.out()
	return c.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		x0, y0, ow, oh := window(w, h, c.width, c.height, c.anchorX.At(i), c.anchorY.At(i))
		ow, oh = min(ow, out.Info().MaxWidth()), min(oh, out.Info().MaxHeight())

		iv, ov := sampleView(in, i), sampleView(out, i)
		for y := range oh {
			for x := range ow {
				for ch := range iv.c {
					ov.set(x, y, ch, iv.at(x0+x, y0+y, ch))
				}
			}
		}
		setROI(out, i, ow, oh)
		return nil
	})
}

// CropResize waehlt pro Sample einen Ausschnitt mit zufaelliger Flaeche und
// Seitenverhaeltnis und skaliert ihn auf Width x Height.
type CropResize struct {
	base
	width, height int
	area          *param.Batch[float32]
	ratio         *param.Batch[float32]
	posX          *param.Batch[float32]
	posY          *param.Batch[float32]
	interp        Interpolation
}

// NewCropResize erwartet Flaechenanteil (0..1] und Seitenverhaeltnis als Parameter.
func NewCropResize(in, out *tensor.Tensor, width, height int, area, ratio param.Parameter[float32], interp Interpolation) (*CropResize, error) {
	posX, err := param.NewUniform[float32](0, 1)
	if err != nil {
		return nil, err
	}
	posY, err := param.NewUniform[float32](0, 1)
	if err != nil {
		return nil, err
	}

	n := in.Info().BatchSize()
	return &CropResize{
		base:   newBase("crop_resize", []*tensor.Tensor{in}, []*tensor.Tensor{out}),
		width:  width,
		height: height,
		area:   param.NewBatch(area, n),
		ratio:  param.NewBatch(ratio, n),
		posX:   param.NewBatch[float32](posX, n),
		posY:   param.NewBatch[float32](posY, n),
		interp: interp,
	}, nil
}

func (c *CropResize) Create() error {
	if c.width <= 0 || c.height <= 0 {
		return fmt.Errorf("%w: crop resize %dx%d", ErrInvalidArgument, c.width, c.height)
	}
	return c.checkImages()
}

func (c *CropResize) Update() error {
	c.area.Renew()
	c.ratio.Renew()
	c.posX.Renew()
	c.posY.Renew()
	return nil
}

func (c *CropResize) Process(ctx context.Context) error {
	in, out := c.in(), c.out()
	scaler := c.interp.scaler()
	ow, oh := min(c.width, out.Info().MaxWidth()), min(c.height, out.Info().MaxHeight())

	return c.forEach(ctx, func(i int) error {
		w, h := roiOf(in, i)
		if w == 0 || h == 0 {
			setROI(out, i, 0, 0)
			return nil
		}

		area := float64(min(max(c.area.At(i), 0.01), 1)) * float64(w*h)
		ratio := float64(max(c.ratio.At(i), 0.01))
		cw := min(int(math.Round(math.Sqrt(area*ratio))), w)
		ch := min(int(math.Round(math.Sqrt(area/ratio))), h)
		x0, y0, cw, ch := window(w, h, max(cw, 1), max(ch, 1), c.posX.At(i), c.posY.At(i))

		iv, ov := sampleView(in, i), sampleView(out, i)
		src := iv.toImage(w, h)
		dst := ov.newImage(ow, oh)
		scaler.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)
		ov.fromImage(dst)
		setROI(out, i, ow, oh)
		return nil
	})
}
