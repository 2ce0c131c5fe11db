// MODUL: image
// ZWECK: Standard-Bilddecoder fuer komprimierte Samples
// INPUT: Komprimierte Bytes, Ziel-Footprint, Farbformat, optionales Crop-Fenster
// OUTPUT: Pixel im Footprint (oben links), tatsaechliche Ausdehnung als Result
// NEBENEFFEKTE: Schreibt in den uebergebenen Ausgabepuffer
// ABHAENGIGKEITEN: golang.org/x/image/draw, x/image/{webp,bmp,tiff} (extern), image/*
// HINWEISE: Zu grosse Bilder werden seitenverhaeltnistreu verkleinert, nie vergroessert

package decoder

import (
	"bytes"
	"fmt"
	"image"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/7blacky7/rocal/tensor"
)

// ImageDecoder dekodiert alle registrierten Bildformate. Mit partial=true
// wird das Crop-Fenster vor dem Skalieren angewendet (Fused-Crop).
type ImageDecoder struct {
	partial bool
	window  CropWindow
	scratch *image.RGBA
}

func (d *ImageDecoder) Initialize(deviceID int) error {
	if deviceID < 0 {
		return fmt.Errorf("decoder: invalid device id %d", deviceID)
	}
	return nil
}

func (d *ImageDecoder) IsPartialDecoder() bool { return d.partial }

func (d *ImageDecoder) SetCropWindow(w CropWindow) { d.window = w }

func (d *ImageDecoder) Release() { d.scratch = nil }

// DecodeInfo liest nur den Header
func (d *ImageDecoder) DecodeInfo(data []byte) (Info, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return Info{}, &Error{Status: StatusHeaderDecodeFailed, Err: err}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, &Error{Status: StatusHeaderDecodeFailed, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, &Error{Status: StatusHeaderDecodeFailed, Err: fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)}
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode dekodiert, schneidet optional zu, skaliert und schreibt in out
func (d *ImageDecoder) Decode(data []byte, out []byte, req Request) (Result, error) {
	if req.MaxWidth <= 0 || req.MaxHeight <= 0 || len(out) < OutputSize(req.MaxWidth, req.MaxHeight, req.Color) {
		return Result{}, &Error{Status: StatusUnsupported, Err: ErrInvalidOutput}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, &Error{Status: StatusContentDecodeFailed, Err: err}
	}

	src := img.Bounds()
	if d.partial && !d.window.Empty() {
		src = clampWindow(d.window, src)
	}

	w, h := fitSize(src.Dx(), src.Dy(), req.MaxWidth, req.MaxHeight)
	rgba := d.target(w, h)
	if w == src.Dx() && h == src.Dy() {
		draw.Draw(rgba, rgba.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(rgba, rgba.Bounds(), img, src, draw.Src, nil)
	}

	writePixels(out, rgba, req.MaxWidth, req.MaxHeight, req.Color)
	return Result{Width: w, Height: h}, nil
}

// target liefert einen wiederverwendeten RGBA-Puffer der Groesse w x h
func (d *ImageDecoder) target(w, h int) *image.RGBA {
	if d.scratch != nil && cap(d.scratch.Pix) >= w*h*4 {
		d.scratch.Pix = d.scratch.Pix[:w*h*4]
		d.scratch.Stride = w * 4
		d.scratch.Rect = image.Rect(0, 0, w, h)
		return d.scratch
	}
	d.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
	return d.scratch
}

// clampWindow begrenzt das Crop-Fenster auf die Bildgrenzen
func clampWindow(c CropWindow, b image.Rectangle) image.Rectangle {
	r := image.Rect(b.Min.X+c.X, b.Min.Y+c.Y, b.Min.X+c.X+c.W, b.Min.Y+c.Y+c.H).Intersect(b)
	if r.Empty() {
		return b
	}
	return r
}

// fitSize verkleinert (w,h) seitenverhaeltnistreu, bis es in (maxW,maxH) passt
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	ratio := float64(w) / float64(h)
	newW, newH := maxW, int(float64(maxW)/ratio)
	if newH > maxH {
		newH = maxH
		newW = int(float64(maxH) * ratio)
	}
	return max(newW, 1), max(newH, 1)
}

// writePixels kopiert img in die linke obere Ecke des Footprints. Der Rest
// des Footprints wird genullt.
func writePixels(out []byte, img *image.RGBA, maxW, maxH int, c tensor.ColorFormat) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	clear(out[:OutputSize(maxW, maxH, c)])

	switch c {
	case tensor.ColorRGB24, tensor.ColorBGR24:
		r, bl := 0, 2
		if c == tensor.ColorBGR24 {
			r, bl = 2, 0
		}
		for y := range h {
			src := img.Pix[y*img.Stride:]
			dst := out[y*maxW*3:]
			for x := range w {
				dst[x*3+r] = src[x*4]
				dst[x*3+1] = src[x*4+1]
				dst[x*3+bl] = src[x*4+2]
			}
		}
	case tensor.ColorU8:
		for y := range h {
			src := img.Pix[y*img.Stride:]
			dst := out[y*maxW:]
			for x := range w {
				dst[x] = luma(src[x*4], src[x*4+1], src[x*4+2])
			}
		}
	case tensor.ColorRGBPlanar:
		plane := maxW * maxH
		for y := range h {
			src := img.Pix[y*img.Stride:]
			for x := range w {
				i := y*maxW + x
				out[i] = src[x*4]
				out[plane+i] = src[x*4+1]
				out[2*plane+i] = src[x*4+2]
			}
		}
	}
}

// luma nach ITU-R BT.601 in Festkomma
func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}
