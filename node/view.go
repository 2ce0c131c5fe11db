package node

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/7blacky7/rocal/tensor"
)

// view adressiert die Pixel eines Samples im Footprint w x h.
type view struct {
	data   []byte
	w, h   int
	c      int
	planar bool
}

func sampleView(t *tensor.Tensor, i int) view {
	info := t.Info()
	return view{
		data:   t.Sample(i),
		w:      info.MaxWidth(),
		h:      info.MaxHeight(),
		c:      info.Channels(),
		planar: info.Layout() == tensor.LayoutNCHW,
	}
}

func (v view) idx(x, y, ch int) int {
	if v.planar {
		return ch*v.w*v.h + y*v.w + x
	}
	return (y*v.w+x)*v.c + ch
}

func (v view) at(x, y, ch int) uint8     { return v.data[v.idx(x, y, ch)] }
func (v view) set(x, y, ch int, p uint8) { v.data[v.idx(x, y, ch)] = p }

// toImage kopiert den Bereich rw x rh in ein RGBA- bzw. Gray-Bild.
func (v view) toImage(rw, rh int) image.Image {
	if v.c == 1 {
		img := image.NewGray(image.Rect(0, 0, rw, rh))
		for y := range rh {
			for x := range rw {
				img.Pix[y*img.Stride+x] = v.at(x, y, 0)
			}
		}
		return img
	}

	img := image.NewRGBA(image.Rect(0, 0, rw, rh))
	for y := range rh {
		row := img.Pix[y*img.Stride:]
		for x := range rw {
			row[x*4] = v.at(x, y, 0)
			row[x*4+1] = v.at(x, y, 1)
			row[x*4+2] = v.at(x, y, 2)
			row[x*4+3] = 0xff
		}
	}
	return img
}

// newImage erstellt ein leeres Zielbild passend zur Kanalanzahl.
func (v view) newImage(w, h int) draw.Image {
	if v.c == 1 {
		return image.NewGray(image.Rect(0, 0, w, h))
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// fromImage schreibt ein mit newImage erstelltes Bild zurueck.
func (v view) fromImage(img image.Image) {
	switch m := img.(type) {
	case *image.Gray:
		b := m.Bounds()
		for y := range b.Dy() {
			for x := range b.Dx() {
				v.set(x, y, 0, m.Pix[y*m.Stride+x])
			}
		}
	case *image.RGBA:
		b := m.Bounds()
		for y := range b.Dy() {
			row := m.Pix[y*m.Stride:]
			for x := range b.Dx() {
				v.set(x, y, 0, row[x*4])
				v.set(x, y, 1, row[x*4+1])
				v.set(x, y, 2, row[x*4+2])
			}
		}
	}
}
