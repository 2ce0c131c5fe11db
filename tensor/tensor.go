// MODUL: tensor
// ZWECK: Batch-Tensor mit Puffer-Sicht und ROI pro Sample
// INPUT: Info (Form/Typ), optional fremder Puffer (Handle-Tensoren)
// OUTPUT: Tensor mit Datenzugriff, ROI-Aktualisierung und Kopierfunktionen
// NEBENEFFEKTE: Warnungen im Log bei geklemmten ROI-Werten
// ABHAENGIGKEITEN: log/slog (stdlib)
// HINWEISE: Handle-Tensoren besitzen ihren Puffer nicht, der Loader tauscht ihn pro Batch

package tensor

import (
	"fmt"
	"log/slog"
)

// Tensor verbindet eine Info mit einem Puffer und einer ROI.
type Tensor struct {
	info *Info
	buf  []byte
	roi  *ROI
}

// New erstellt einen Tensor ohne Puffer. Die ROI steht auf Max-Shape.
func New(info *Info) *Tensor {
	t := &Tensor{info: info}
	t.roi = NewROI(info.ROICount(), info.ROIDims())
	t.roi.Reset(info.MaxShape())
	return t
}

// NewFromDims ist eine Abkuerzung fuer NewInfo + New.
func NewFromDims(dims []int, mem MemType, dtype DataType, layout Layout) (*Tensor, error) {
	info, err := NewInfo(dims, mem, dtype, layout)
	if err != nil {
		return nil, err
	}
	return New(info), nil
}

func (t *Tensor) Info() *Info { return t.info }
func (t *Tensor) ROI() *ROI   { return t.roi }
func (t *Tensor) Data() []byte {
	return t.buf
}

// IsAllocated gibt true zurueck, wenn ein Puffer passender Groesse vorhanden ist.
func (t *Tensor) IsAllocated() bool { return len(t.buf) == t.info.DataSize() }

// Allocate reserviert den Puffer, falls noch keiner vorhanden ist.
func (t *Tensor) Allocate() error {
	if t.info.MemType() == MemDevice {
		return fmt.Errorf("%w: %s", ErrUnsupportedMemType, t.info.MemType())
	}
	if !t.IsAllocated() {
		t.buf = make([]byte, t.info.DataSize())
	}
	return nil
}

// SwapHandle ersetzt den Puffer durch buf und gibt den alten zurueck.
func (t *Tensor) SwapHandle(buf []byte) ([]byte, error) {
	if len(buf) != t.info.DataSize() {
		return nil, fmt.Errorf("%w: handle has %d bytes, tensor needs %d", ErrInvalidDims, len(buf), t.info.DataSize())
	}
	old := t.buf
	t.buf = buf
	return old, nil
}

// SetDims aendert die Form. Ein bestehender Puffer falscher Groesse wird verworfen.
func (t *Tensor) SetDims(dims []int) error {
	if err := t.info.SetDims(dims); err != nil {
		return err
	}
	t.afterShapeChange()
	return nil
}

// SetLayout wechselt das Layout (siehe Info.SetLayout).
func (t *Tensor) SetLayout(layout Layout) error {
	if err := t.info.SetLayout(layout); err != nil {
		return err
	}
	t.afterShapeChange()
	return nil
}

func (t *Tensor) afterShapeChange() {
	if t.buf != nil && len(t.buf) != t.info.DataSize() && t.info.Type() != TypeHandle {
		t.buf = nil
	}
	if t.roi.Count() != t.info.ROICount() || t.roi.Dims() != t.info.ROIDims() {
		t.roi = NewROI(t.info.ROICount(), t.info.ROIDims())
	}
	t.roi.Reset(t.info.MaxShape())
}

// ResetROI setzt alle Samples auf die volle Max-Shape.
func (t *Tensor) ResetROI() { t.roi.Reset(t.info.MaxShape()) }

// ============================================================================
// ROI-Aktualisierung
// ============================================================================

// UpdateROI setzt Breite und Hoehe pro Sample (Bild-Fall).
// Werte ueber der Max-Shape werden mit Warnung geklemmt, nie abgelehnt.
func (t *Tensor) UpdateROI(widths, heights []uint32) error {
	n := t.info.ROICount()
	if len(widths) != n || len(heights) != n {
		return fmt.Errorf("%w: got %d widths and %d heights for %d samples", ErrBatchSizeMismatch, len(widths), len(heights), n)
	}
	if t.roi.Dims() != 2 {
		return fmt.Errorf("%w: roi has %d dims, width/height update needs 2", ErrInvalidDims, t.roi.Dims())
	}

	maxW, maxH := uint32(t.info.MaxWidth()), uint32(t.info.MaxHeight())
	for i := range n {
		w, h := widths[i], heights[i]
		if w > maxW {
			slog.Warn("roi width exceeds max shape, clamping", "sample", i, "width", w, "max", maxW)
			w = maxW
		}
		if h > maxH {
			slog.Warn("roi height exceeds max shape, clamping", "sample", i, "height", h, "max", maxH)
			h = maxH
		}
		clear(t.roi.Begin(i))
		s := t.roi.Shape(i)
		s[0], s[1] = w, h
	}
	return nil
}

// UpdateROIShapes setzt die Shape pro Sample (generischer Fall).
func (t *Tensor) UpdateROIShapes(shapes [][]uint32) error {
	n := t.info.ROICount()
	if len(shapes) != n {
		return fmt.Errorf("%w: got %d shapes for %d samples", ErrBatchSizeMismatch, len(shapes), n)
	}

	maxShape := t.info.MaxShape()
	nd := t.roi.Dims()
	for i, shape := range shapes {
		if len(shape) != nd {
			return fmt.Errorf("%w: shape %d has %d values, need %d", ErrInvalidDims, i, len(shape), nd)
		}
		clear(t.roi.Begin(i))
		s := t.roi.Shape(i)
		for d, v := range shape {
			if limit := uint32(maxShape[d]); v > limit {
				slog.Warn("roi shape exceeds max shape, clamping", "sample", i, "dim", d, "value", v, "max", limit)
				v = limit
			}
			s[d] = v
		}
	}
	return nil
}

// CopyROI kopiert die ROI im ROI-Typ des Tensors nach dst.
func (t *Tensor) CopyROI(dst []uint32) error {
	return t.roi.CopyTo(dst, t.info.ROIType())
}

// ============================================================================
// Datenzugriff und Kopie
// ============================================================================

// Sample gibt die Bytes von Batch-Sample i zurueck.
func (t *Tensor) Sample(i int) []byte {
	size := t.info.SampleSize()
	return t.buf[i*size : (i+1)*size]
}

// CopyData kopiert den gesamten Puffer nach dst.
// Nur Host- und Pinned-Ziele werden in diesem Build unterstuetzt.
func (t *Tensor) CopyData(dst []byte, mem MemType) error {
	switch mem {
	case MemHost, MemPinned:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMemType, mem)
	}
	if t.buf == nil {
		return ErrNotAllocated
	}
	if len(dst) < len(t.buf) {
		return fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, len(t.buf), len(dst))
	}
	copy(dst, t.buf)
	return nil
}

// Release gibt den Puffer frei.
func (t *Tensor) Release() { t.buf = nil }

func (t *Tensor) String() string { return t.info.String() }
