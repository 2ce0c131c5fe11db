// MODUL: types
// ZWECK: Aufzaehlungstypen fuer Tensor-Layout, Datentyp, Speicherort, Farbformat und ROI-Typ
// INPUT: Keine
// OUTPUT: Layout, DataType, MemType, ColorFormat, ROIType, Type mit String-Darstellung
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen (nur stdlib)
// HINWEISE: Reihenfolge der Konstanten ist Teil der Handle-API und darf nicht umsortiert werden

package tensor

import "fmt"

// ============================================================================
// Layout
// ============================================================================

// Layout beschreibt die logische Anordnung der Dimensionen.
type Layout int

const (
	LayoutNHWC  Layout = iota // Batch, Hoehe, Breite, Kanaele
	LayoutNCHW                // Batch, Kanaele, Hoehe, Breite
	LayoutNFHWC               // Batch, Frames, Hoehe, Breite, Kanaele
	LayoutNFCHW               // Batch, Frames, Kanaele, Hoehe, Breite
	LayoutNHW                 // Batch, Hoehe, Breite (Einkanal)
	LayoutNFT                 // Spektrogramm: Frequenz x Zeit
	LayoutNTF                 // Spektrogramm: Zeit x Frequenz
	LayoutNone                // keine Bild-Semantik
)

var layoutNames = [...]string{"NHWC", "NCHW", "NFHWC", "NFCHW", "NHW", "NFT", "NTF", "NONE"}

func (l Layout) String() string {
	if l < 0 || int(l) >= len(layoutNames) {
		return fmt.Sprintf("Layout(%d)", int(l))
	}
	return layoutNames[l]
}

// IsImage gibt true fuer Layouts mit Breite und Hoehe zurueck.
func (l Layout) IsImage() bool {
	switch l {
	case LayoutNHWC, LayoutNCHW, LayoutNFHWC, LayoutNFCHW, LayoutNHW:
		return true
	}
	return false
}

// IsSequence gibt true fuer Layouts mit Frame-Dimension zurueck.
func (l Layout) IsSequence() bool {
	return l == LayoutNFHWC || l == LayoutNFCHW
}

// numDims gibt die feste Dimensionsanzahl eines Bild-Layouts zurueck, 0 wenn beliebig.
func (l Layout) numDims() int {
	switch l {
	case LayoutNHWC, LayoutNCHW:
		return 4
	case LayoutNFHWC, LayoutNFCHW:
		return 5
	case LayoutNHW, LayoutNFT, LayoutNTF:
		return 3
	}
	return 0
}

// ============================================================================
// DataType
// ============================================================================

// DataType ist der Elementtyp eines Tensors.
type DataType int

const (
	Float32 DataType = iota
	Float16
	UInt8
	Int8
	UInt32
	Int32
)

// Size gibt die Groesse eines Elements in Bytes zurueck.
func (d DataType) Size() int {
	switch d {
	case Float32, UInt32, Int32:
		return 4
	case Float16:
		return 2
	case UInt8, Int8:
		return 1
	}
	return 0
}

func (d DataType) String() string {
	switch d {
	case Float32:
		return "fp32"
	case Float16:
		return "fp16"
	case UInt8:
		return "uint8"
	case Int8:
		return "int8"
	case UInt32:
		return "uint32"
	case Int32:
		return "int32"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ============================================================================
// MemType
// ============================================================================

// MemType beschreibt den Speicherort eines Puffers.
type MemType int

const (
	MemHost MemType = iota
	MemPinned
	MemDevice
)

func (m MemType) String() string {
	switch m {
	case MemHost:
		return "host"
	case MemPinned:
		return "pinned"
	case MemDevice:
		return "device"
	}
	return fmt.Sprintf("MemType(%d)", int(m))
}

// ============================================================================
// ColorFormat
// ============================================================================

// ColorFormat beschreibt die Pixelanordnung dekodierter Bilder.
type ColorFormat int

const (
	ColorRGB24 ColorFormat = iota
	ColorBGR24
	ColorU8
	ColorRGBPlanar
)

// Channels gibt die Anzahl Farbkanaele zurueck.
func (c ColorFormat) Channels() int {
	if c == ColorU8 {
		return 1
	}
	return 3
}

func (c ColorFormat) String() string {
	switch c {
	case ColorRGB24:
		return "RGB24"
	case ColorBGR24:
		return "BGR24"
	case ColorU8:
		return "U8"
	case ColorRGBPlanar:
		return "RGB_PLANAR"
	}
	return fmt.Sprintf("ColorFormat(%d)", int(c))
}

// ============================================================================
// ROIType und Tensor-Type
// ============================================================================

// ROIType legt fest, wie ROI-Koordinaten nach aussen kopiert werden.
type ROIType int

const (
	ROILTRB ROIType = iota // links, oben, rechts, unten
	ROIXYWH                // x, y, Breite, Hoehe
)

// Type beschreibt die Herkunft des Tensor-Puffers.
type Type int

const (
	TypeUnknown Type = iota // Form noch nicht festgelegt
	TypeRegular             // eigener Puffer
	TypeVirtual             // Zwischenergebnis, Puffer vom Graph vergeben
	TypeHandle              // Puffer wird pro Batch vom Loader getauscht
)

func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeRegular:
		return "regular"
	case TypeVirtual:
		return "virtual"
	case TypeHandle:
		return "handle"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}
