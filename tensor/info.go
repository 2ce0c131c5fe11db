// MODUL: info
// ZWECK: TensorInfo - Dimensionen, Strides, Datentyp und Max-Shape eines Batch-Tensors
// INPUT: Dimensionen, Speicherort, Datentyp, Layout
// OUTPUT: Info mit abgeleiteten Strides, Datengroesse und Max-Shape
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen (nur stdlib)
// HINWEISE: strides[last] == Elementgroesse, strides[i] == strides[i+1]*dims[i+1]

package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	ErrInvalidDims             = errors.New("tensor: invalid dimensions")
	ErrDimsCountChanged        = errors.New("tensor: number of dimensions cannot change")
	ErrInvalidLayoutConversion = errors.New("tensor: invalid layout conversion")
	ErrInvalidDataType         = errors.New("tensor: invalid data type")
	ErrUnsupportedMemType      = errors.New("tensor: unsupported memory type")
	ErrBatchSizeMismatch       = errors.New("tensor: batch size mismatch")
	ErrBufferTooSmall          = errors.New("tensor: destination buffer too small")
	ErrNotAllocated            = errors.New("tensor: buffer not allocated")
)

// layoutPermutations enthaelt die erlaubten Layout-Wechsel und die Dimensions-Permutation.
var layoutPermutations = map[[2]Layout][]int{
	{LayoutNHWC, LayoutNCHW}:   {0, 3, 1, 2},
	{LayoutNCHW, LayoutNHWC}:   {0, 2, 3, 1},
	{LayoutNFHWC, LayoutNFCHW}: {0, 1, 4, 2, 3},
	{LayoutNFCHW, LayoutNFHWC}: {0, 1, 3, 4, 2},
}

// ============================================================================
// Info
// ============================================================================

// Info beschreibt Form und Typ eines Tensors.
type Info struct {
	dims        []int
	strides     []int
	dataSize    int
	dataType    DataType
	layout      Layout
	memType     MemType
	colorFormat ColorFormat
	roiType     ROIType
	tensorType  Type
	maxShape    []int
}

// NewInfo erstellt eine Info und berechnet Strides, Datengroesse und Max-Shape.
func NewInfo(dims []int, mem MemType, dtype DataType, layout Layout) (*Info, error) {
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDataType, int(dtype))
	}
	if err := validateDims(dims, layout); err != nil {
		return nil, err
	}

	info := &Info{
		dims:       slices.Clone(dims),
		dataType:   dtype,
		layout:     layout,
		memType:    mem,
		roiType:    ROIXYWH,
		tensorType: TypeRegular,
	}
	if layout == LayoutNHWC && dims[3] == 1 || layout == LayoutNHW {
		info.colorFormat = ColorU8
	}
	info.reallocate()
	return info, nil
}

func validateDims(dims []int, layout Layout) error {
	if len(dims) < 2 {
		return fmt.Errorf("%w: need at least 2, got %d", ErrInvalidDims, len(dims))
	}
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("%w: dim %d is %d", ErrInvalidDims, i, d)
		}
	}
	if n := layout.numDims(); n != 0 && n != len(dims) {
		return fmt.Errorf("%w: layout %s needs %d dims, got %d", ErrInvalidDims, layout, n, len(dims))
	}
	return nil
}

// reallocate berechnet Strides, Datengroesse und Max-Shape neu.
func (i *Info) reallocate() {
	n := len(i.dims)
	i.strides = make([]int, n)
	i.strides[n-1] = i.dataType.Size()
	for d := n - 2; d >= 0; d-- {
		i.strides[d] = i.strides[d+1] * i.dims[d+1]
	}
	i.dataSize = i.strides[0] * i.dims[0]
	i.maxShape = i.deriveMaxShape()
}

// deriveMaxShape liefert {W, H} fuer Bild-Layouts, sonst dims[1:].
func (i *Info) deriveMaxShape() []int {
	d := i.dims
	switch i.layout {
	case LayoutNHWC:
		return []int{d[2], d[1]}
	case LayoutNCHW:
		return []int{d[3], d[2]}
	case LayoutNFHWC:
		return []int{d[3], d[2]}
	case LayoutNFCHW:
		return []int{d[4], d[3]}
	case LayoutNHW:
		return []int{d[2], d[1]}
	}
	return slices.Clone(d[1:])
}

// ============================================================================
// Setter
// ============================================================================

// SetDims setzt neue Dimensionen. Die Anzahl der Dimensionen muss gleich bleiben.
func (i *Info) SetDims(dims []int) error {
	if len(dims) != len(i.dims) {
		return fmt.Errorf("%w: have %d, got %d", ErrDimsCountChanged, len(i.dims), len(dims))
	}
	if err := validateDims(dims, i.layout); err != nil {
		return err
	}
	i.dims = slices.Clone(dims)
	i.reallocate()
	return nil
}

// SetLayout wechselt das Layout und permutiert die Dimensionen.
func (i *Info) SetLayout(layout Layout) error {
	if layout == i.layout {
		return nil
	}
	perm, ok := layoutPermutations[[2]Layout{i.layout, layout}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLayoutConversion, i.layout, layout)
	}

	dims := make([]int, len(perm))
	for d, p := range perm {
		dims[d] = i.dims[p]
	}
	i.dims = dims
	i.layout = layout
	i.reallocate()
	return nil
}

func (i *Info) SetColorFormat(c ColorFormat) { i.colorFormat = c }
func (i *Info) SetROIType(r ROIType)         { i.roiType = r }
func (i *Info) SetType(t Type)               { i.tensorType = t }
func (i *Info) SetMemType(m MemType)         { i.memType = m }

// SetDataType aendert den Elementtyp und berechnet die Strides neu.
func (i *Info) SetDataType(d DataType) error {
	if d.Size() == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDataType, int(d))
	}
	i.dataType = d
	i.reallocate()
	return nil
}

// ============================================================================
// Getter
// ============================================================================

func (i *Info) Dims() []int              { return slices.Clone(i.dims) }
func (i *Info) Strides() []int           { return slices.Clone(i.strides) }
func (i *Info) NumDims() int             { return len(i.dims) }
func (i *Info) BatchSize() int           { return i.dims[0] }
func (i *Info) DataSize() int            { return i.dataSize }
func (i *Info) DataType() DataType       { return i.dataType }
func (i *Info) Layout() Layout           { return i.layout }
func (i *Info) MemType() MemType         { return i.memType }
func (i *Info) ColorFormat() ColorFormat { return i.colorFormat }
func (i *Info) ROIType() ROIType         { return i.roiType }
func (i *Info) Type() Type               { return i.tensorType }
func (i *Info) IsImage() bool            { return i.layout.IsImage() }

// MaxShape gibt die maximale Ausdehnung pro Sample zurueck ({W, H} bei Bildern).
func (i *Info) MaxShape() []int { return slices.Clone(i.maxShape) }

// SampleSize gibt die Bytes pro Batch-Sample zurueck.
func (i *Info) SampleSize() int { return i.strides[0] }

// MaxWidth und MaxHeight gelten nur fuer Bild-Layouts.
func (i *Info) MaxWidth() int  { return i.maxShape[0] }
func (i *Info) MaxHeight() int { return i.maxShape[1] }

// Channels gibt die Kanalanzahl eines Bild-Layouts zurueck, sonst 1.
func (i *Info) Channels() int {
	switch i.layout {
	case LayoutNHWC:
		return i.dims[3]
	case LayoutNCHW:
		return i.dims[1]
	case LayoutNFHWC:
		return i.dims[4]
	case LayoutNFCHW:
		return i.dims[2]
	}
	return 1
}

// Frames gibt die Sequenzlaenge zurueck, 1 bei Nicht-Sequenzen.
func (i *Info) Frames() int {
	if i.layout.IsSequence() {
		return i.dims[1]
	}
	return 1
}

// ROICount gibt die Anzahl ROI-Eintraege zurueck (N*F bei Sequenzen).
func (i *Info) ROICount() int { return i.dims[0] * i.Frames() }

// ROIDims gibt die Koordinaten pro ROI-Vektor zurueck (2 bei Bildern).
func (i *Info) ROIDims() int {
	if i.IsImage() {
		return 2
	}
	return len(i.dims) - 1
}

// Clone erstellt eine tiefe Kopie.
func (i *Info) Clone() *Info {
	c := *i
	c.dims = slices.Clone(i.dims)
	c.strides = slices.Clone(i.strides)
	c.maxShape = slices.Clone(i.maxShape)
	return &c
}

func (i *Info) String() string {
	return fmt.Sprintf("%s%v %s %s", i.layout, i.dims, i.dataType, i.memType)
}
