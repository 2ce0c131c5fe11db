package decoder

import (
	"fmt"

	"github.com/7blacky7/rocal/tensor"
)

// RawDecoder uebernimmt bereits dekodierte HWC-Pixel bekannter Groesse
// (CIFAR-10, externe unkomprimierte Quellen). Skaliert nicht.
type RawDecoder struct {
	Width    int
	Height   int
	Channels int
}

// NewRaw erstellt einen RawDecoder fuer feste Abmessungen.
func NewRaw(width, height, channels int) (*RawDecoder, error) {
	if width <= 0 || height <= 0 || (channels != 1 && channels != 3) {
		return nil, &FactoryError{Op: "raw", Err: fmt.Errorf("invalid geometry %dx%dx%d", width, height, channels)}
	}
	return &RawDecoder{Width: width, Height: height, Channels: channels}, nil
}

func (d *RawDecoder) Initialize(int) error     { return nil }
func (d *RawDecoder) IsPartialDecoder() bool   { return false }
func (d *RawDecoder) SetCropWindow(CropWindow) {}
func (d *RawDecoder) Release()                 {}

func (d *RawDecoder) DecodeInfo(data []byte) (Info, error) {
	if len(data) < d.Width*d.Height*d.Channels {
		return Info{}, &Error{Status: StatusHeaderDecodeFailed, Err: fmt.Errorf("short sample: %d bytes", len(data))}
	}
	return Info{Width: d.Width, Height: d.Height, Format: FormatUnknown}, nil
}

func (d *RawDecoder) Decode(data []byte, out []byte, req Request) (Result, error) {
	if _, err := d.DecodeInfo(data); err != nil {
		return Result{}, err
	}
	if d.Width > req.MaxWidth || d.Height > req.MaxHeight || len(out) < OutputSize(req.MaxWidth, req.MaxHeight, req.Color) {
		return Result{}, &Error{Status: StatusUnsupported, Err: ErrInvalidOutput}
	}

	outC := req.Color.Channels()
	plane := req.MaxWidth * req.MaxHeight
	clear(out[:OutputSize(req.MaxWidth, req.MaxHeight, req.Color)])
	for y := range d.Height {
		for x := range d.Width {
			px := data[(y*d.Width+x)*d.Channels:]
			r, g, b := px[0], px[0], px[0]
			if d.Channels == 3 {
				g, b = px[1], px[2]
			}
			i := y*req.MaxWidth + x
			switch req.Color {
			case tensor.ColorRGB24:
				out[i*outC], out[i*outC+1], out[i*outC+2] = r, g, b
			case tensor.ColorBGR24:
				out[i*outC], out[i*outC+1], out[i*outC+2] = b, g, r
			case tensor.ColorU8:
				out[i] = luma(r, g, b)
			case tensor.ColorRGBPlanar:
				out[i], out[plane+i], out[2*plane+i] = r, g, b
			}
		}
	}
	return Result{Width: d.Width, Height: d.Height}, nil
}
