package loader

import (
	"slices"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/tensor"
)

// Meta enthaelt die Begleitdaten eines dekodierten Batches.
type Meta struct {
	Names       []string
	Widths      []uint32 // ROI nach dem Dekodieren
	Heights     []uint32
	OrigWidths  []uint32 // Groesse vor dem Skalieren
	OrigHeights []uint32
	Padded      []bool // Fuellsamples des letzten Batches
	// Crops: vom Fused-Crop-Decoder genutztes Fenster, leer = ganzes Bild
	Crops []decoder.CropWindow
}

func newMeta(n int) Meta {
	return Meta{
		Names:       make([]string, n),
		Widths:      make([]uint32, n),
		Heights:     make([]uint32, n),
		OrigWidths:  make([]uint32, n),
		OrigHeights: make([]uint32, n),
		Padded:      make([]bool, n),
		Crops:       make([]decoder.CropWindow, n),
	}
}

// Clone kopiert alle Slices.
func (m Meta) Clone() Meta {
	return Meta{
		Names:       slices.Clone(m.Names),
		Widths:      slices.Clone(m.Widths),
		Heights:     slices.Clone(m.Heights),
		OrigWidths:  slices.Clone(m.OrigWidths),
		OrigHeights: slices.Clone(m.OrigHeights),
		Padded:      slices.Clone(m.Padded),
		Crops:       slices.Clone(m.Crops),
	}
}

// PaddedCount gibt die Anzahl der Fuellsamples zurueck.
func (m Meta) PaddedCount() int {
	n := 0
	for _, p := range m.Padded {
		if p {
			n++
		}
	}
	return n
}

// copySample uebernimmt die Begleitdaten von Slot src nach dst.
func (m Meta) copySample(dst, src int) {
	m.Names[dst] = m.Names[src]
	m.Widths[dst], m.Heights[dst] = m.Widths[src], m.Heights[src]
	m.OrigWidths[dst], m.OrigHeights[dst] = m.OrigWidths[src], m.OrigHeights[src]
	m.Crops[dst] = m.Crops[src]
}

// Batch ist ein Slot im Prefetch-Ring: Pixel im Format NHWC (bzw. planar) plus Meta.
type Batch struct {
	Meta
	Data      []byte
	Size      int
	MaxWidth  int
	MaxHeight int
	Color     tensor.ColorFormat
}

// NewBatch allokiert einen Batch fuer size Samples im Footprint maxW x maxH.
func NewBatch(size, maxW, maxH int, color tensor.ColorFormat) *Batch {
	b := &Batch{
		Meta:      newMeta(size),
		Size:      size,
		MaxWidth:  maxW,
		MaxHeight: maxH,
		Color:     color,
	}
	b.Data = make([]byte, size*b.SampleSize())
	return b
}

// SampleSize gibt die Bytes pro Sample zurueck.
func (b *Batch) SampleSize() int { return b.MaxWidth * b.MaxHeight * b.Color.Channels() }

// Sample gibt den Puffer von Sample i zurueck.
func (b *Batch) Sample(i int) []byte {
	ss := b.SampleSize()
	return b.Data[i*ss : (i+1)*ss]
}
