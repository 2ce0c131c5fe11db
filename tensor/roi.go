package tensor

import (
	"fmt"
	"slices"
)

// ROI haelt pro Sample einen Begin- und einen Shape-Vektor.
// Bei Bildern ist die Reihenfolge {x, y} bzw. {Breite, Hoehe}.
// Intern wird immer XYWH gespeichert, LTRB nur beim Kopieren erzeugt.
type ROI struct {
	count int
	nd    int
	data  []uint32
}

// NewROI reserviert count Eintraege mit je nd Koordinaten.
func NewROI(count, nd int) *ROI {
	return &ROI{count: count, nd: nd, data: make([]uint32, count*nd*2)}
}

func (r *ROI) Count() int { return r.count }
func (r *ROI) Dims() int  { return r.nd }

// Begin gibt eine Sicht auf den Begin-Vektor von Sample i zurueck.
func (r *ROI) Begin(i int) []uint32 {
	off := i * r.nd * 2
	return r.data[off : off+r.nd]
}

// Shape gibt eine Sicht auf den Shape-Vektor von Sample i zurueck.
func (r *ROI) Shape(i int) []uint32 {
	off := i*r.nd*2 + r.nd
	return r.data[off : off+r.nd]
}

// Width und Height gelten fuer zweidimensionale ROIs.
func (r *ROI) Width(i int) uint32  { return r.Shape(i)[0] }
func (r *ROI) Height(i int) uint32 { return r.Shape(i)[1] }

// Set setzt Begin und Shape von Sample i.
func (r *ROI) Set(i int, begin, shape []uint32) {
	copy(r.Begin(i), begin)
	copy(r.Shape(i), shape)
}

// Reset setzt alle Begins auf 0 und alle Shapes auf maxShape.
func (r *ROI) Reset(maxShape []int) {
	for i := range r.count {
		clear(r.Begin(i))
		s := r.Shape(i)
		for d := range s {
			s[d] = uint32(maxShape[d])
		}
	}
}

// Raw gibt den internen Puffer zurueck (begin[nd] + shape[nd] pro Sample).
func (r *ROI) Raw() []uint32 { return r.data }

// CopyFrom uebernimmt alle Werte aus src gleicher Groesse.
func (r *ROI) CopyFrom(src *ROI) {
	copy(r.data, src.data)
}

// CopyTo kopiert die ROI im gewuenschten Format nach dst.
func (r *ROI) CopyTo(dst []uint32, typ ROIType) error {
	if len(dst) < len(r.data) {
		return fmt.Errorf("%w: need %d, got %d", ErrBufferTooSmall, len(r.data), len(dst))
	}
	copy(dst, r.data)
	if typ == ROILTRB {
		for i := range r.count {
			off := i*r.nd*2 + r.nd
			for d := range r.nd {
				dst[off+d] = r.Begin(i)[d] + r.Shape(i)[d]
			}
		}
	}
	return nil
}

// Clone erstellt eine unabhaengige Kopie.
func (r *ROI) Clone() *ROI {
	return &ROI{count: r.count, nd: r.nd, data: slices.Clone(r.data)}
}
