// MODUL: convert
// ZWECK: ToTensor - Normalisierung, Layout-Wechsel und Kopie eines UINT8-Bild-Tensors in einem Schritt
// INPUT: UINT8-Tensor (NHWC/NCHW), Zielpuffer, ConvertOptions
// OUTPUT: Zielpuffer in NHWC oder NCHW als FP32, FP16 oder UINT8
// NEBENEFFEKTE: Schreibt in den Zielpuffer
// ABHAENGIGKEITEN: github.com/x448/float16
// HINWEISE: out = in * Multiplier[c] + Offset[c], Kanalumkehr vor der Normalisierung

package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// ConvertOptions steuert ToTensor.
type ConvertOptions struct {
	Layout          Layout     // Ziel-Layout: NHWC oder NCHW
	DataType        DataType   // Ziel-Typ: Float32, Float16 oder UInt8
	Multiplier      [3]float32 // pro Kanal
	Offset          [3]float32 // pro Kanal
	ReverseChannels bool       // RGB <-> BGR
	MemType         MemType    // Zielspeicher
	MaxROIWidth     int        // 0 = volle Breite
	MaxROIHeight    int        // 0 = volle Hoehe
}

// DefaultConvertOptions liefert NCHW/FP32 ohne Normalisierung.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		Layout:     LayoutNCHW,
		DataType:   Float32,
		Multiplier: [3]float32{1, 1, 1},
	}
}

// ConvertedSize gibt die benoetigte Zielgroesse in Bytes zurueck.
func ConvertedSize(src *Info, opts ConvertOptions) int {
	w, h := convertExtent(src, opts)
	return src.BatchSize() * src.Channels() * w * h * opts.DataType.Size()
}

func convertExtent(src *Info, opts ConvertOptions) (int, int) {
	w, h := src.MaxWidth(), src.MaxHeight()
	if opts.MaxROIWidth > 0 && opts.MaxROIWidth < w {
		w = opts.MaxROIWidth
	}
	if opts.MaxROIHeight > 0 && opts.MaxROIHeight < h {
		h = opts.MaxROIHeight
	}
	return w, h
}

// ToTensor wandelt src in das gewuenschte Format um und schreibt nach dst.
func ToTensor(src *Tensor, dst []byte, opts ConvertOptions) error {
	info := src.Info()
	if info.DataType() != UInt8 {
		return fmt.Errorf("%w: source must be uint8, got %s", ErrInvalidDataType, info.DataType())
	}
	if info.Layout() != LayoutNHWC && info.Layout() != LayoutNCHW {
		return fmt.Errorf("%w: source layout %s", ErrInvalidLayoutConversion, info.Layout())
	}
	if opts.Layout != LayoutNHWC && opts.Layout != LayoutNCHW {
		return fmt.Errorf("%w: target layout %s", ErrInvalidLayoutConversion, opts.Layout)
	}
	if opts.MemType == MemDevice {
		return fmt.Errorf("%w: %s", ErrUnsupportedMemType, opts.MemType)
	}
	if src.Data() == nil {
		return ErrNotAllocated
	}

	var put func(b []byte, v float32)
	switch opts.DataType {
	case Float32:
		put = func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
	case Float16:
		put = func(b []byte, v float32) { binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits()) }
	case UInt8:
		put = func(b []byte, v float32) { b[0] = uint8(min(max(v, 0), 255)) }
	default:
		return fmt.Errorf("%w: target %s", ErrInvalidDataType, opts.DataType)
	}

	need := ConvertedSize(info, opts)
	if len(dst) < need {
		return fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, need, len(dst))
	}

	n, c := info.BatchSize(), info.Channels()
	srcW, srcH := info.MaxWidth(), info.MaxHeight()
	w, h := convertExtent(info, opts)
	elem := opts.DataType.Size()
	data := src.Data()

	srcIndex := func(b, y, x, ch int) int {
		if info.Layout() == LayoutNHWC {
			return ((b*srcH+y)*srcW+x)*c + ch
		}
		return ((b*c+ch)*srcH+y)*srcW + x
	}
	dstIndex := func(b, y, x, ch int) int {
		if opts.Layout == LayoutNHWC {
			return ((b*h+y)*w+x)*c + ch
		}
		return ((b*c+ch)*h+y)*w + x
	}

	for b := range n {
		for y := range h {
			for x := range w {
				for ch := range c {
					sc := ch
					if opts.ReverseChannels && c == 3 {
						sc = 2 - ch
					}
					v := float32(data[srcIndex(b, y, x, sc)])*opts.Multiplier[ch%3] + opts.Offset[ch%3]
					off := dstIndex(b, y, x, ch) * elem
					put(dst[off:off+elem], v)
				}
			}
		}
	}
	return nil
}
