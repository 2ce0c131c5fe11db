// Package metadata - Labels, Bounding-Boxes, Masken und Keypoints pro Sample
//
// Dieses Modul enthaelt:
// - Batch: parallele Container pro Batch-Position
// - Reader: Interface aller Metadaten-Quellen (Lookup nach Sample-Namen)
// - Implementierungen: Label-Datei, Ordnerstruktur, COCO-JSON, eingebettete Labels
// - RandomBBoxCrop: box-gesteuerte Crop-Fenster fuer den Loader
package metadata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownType = errors.New("metadata: unknown reader type")
	ErrMissingName = errors.New("metadata: no record for sample")
	ErrNotRead     = errors.New("metadata: reader not initialized")
	ErrParse       = errors.New("metadata: parse error")
)

// Type waehlt die Metadaten-Quelle.
type Type int

const (
	TypeLabelFile Type = iota
	TypeFolder
	TypeCOCO
	TypeEmbedded
)

func (t Type) String() string {
	switch t {
	case TypeLabelFile:
		return "label_file"
	case TypeFolder:
		return "folder"
	case TypeCOCO:
		return "coco"
	case TypeEmbedded:
		return "embedded"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType liefert den Typ zu einem Namen.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{TypeLabelFile, TypeFolder, TypeCOCO, TypeEmbedded} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// BoundingBox in Pixelkoordinaten, Format links/oben/rechts/unten.
type BoundingBox struct {
	L, T, R, B float32
}

func (b BoundingBox) Width() float32  { return b.R - b.L }
func (b BoundingBox) Height() float32 { return b.B - b.T }
func (b BoundingBox) Area() float32   { return max(b.Width(), 0) * max(b.Height(), 0) }

// IoU berechnet Intersection over Union.
func (b BoundingBox) IoU(o BoundingBox) float32 {
	in := BoundingBox{L: max(b.L, o.L), T: max(b.T, o.T), R: min(b.R, o.R), B: min(b.B, o.B)}.Area()
	union := b.Area() + o.Area() - in
	if union <= 0 {
		return 0
	}
	return in / union
}

// Polygon ist eine Folge von x,y-Paaren.
type Polygon []float32

// Joints beschreibt die Keypoints einer Person-Annotation.
type Joints struct {
	ImageID      int
	AnnotationID int
	Center       [2]float32
	Scale        [2]float32
	Points       [][2]float32
	Visibility   []float32
	Score        float32
	Rotation     float32
}

// Record sind die Metadaten eines Samples.
type Record struct {
	Labels []int32
	Boxes  []BoundingBox
	Masks  [][]Polygon // pro Box eine Liste von Polygonen
	Joints []Joints
	Width  int
	Height int
}

func (r Record) clone() Record {
	c := Record{Width: r.Width, Height: r.Height}
	c.Labels = append([]int32(nil), r.Labels...)
	c.Boxes = append([]BoundingBox(nil), r.Boxes...)
	c.Masks = append([][]Polygon(nil), r.Masks...)
	c.Joints = append([]Joints(nil), r.Joints...)
	return c
}

// Batch haelt die Metadaten eines Batches, Index = Batch-Position.
type Batch struct {
	Names      []string
	Labels     [][]int32
	Boxes      [][]BoundingBox
	Masks      [][][]Polygon
	Joints     [][]Joints
	ImageSizes [][2]int
}

// NewBatch erstellt einen leeren Batch mit Kapazitaet n.
func NewBatch(n int) *Batch {
	b := &Batch{}
	b.grow(n)
	return b
}

func (b *Batch) grow(n int) {
	b.Names = make([]string, 0, n)
	b.Labels = make([][]int32, 0, n)
	b.Boxes = make([][]BoundingBox, 0, n)
	b.Masks = make([][][]Polygon, 0, n)
	b.Joints = make([][]Joints, 0, n)
	b.ImageSizes = make([][2]int, 0, n)
}

// Clear leert den Batch, die Kapazitaet bleibt erhalten.
func (b *Batch) Clear() { b.Resize(0) }

// Resize kuerzt oder verlaengert auf n Eintraege (neue Eintraege sind leer).
func (b *Batch) Resize(n int) {
	b.Names = resize(b.Names, n)
	b.Labels = resize(b.Labels, n)
	b.Boxes = resize(b.Boxes, n)
	b.Masks = resize(b.Masks, n)
	b.Joints = resize(b.Joints, n)
	b.ImageSizes = resize(b.ImageSizes, n)
}

func resize[T any](s []T, n int) []T {
	if n <= len(s) {
		return s[:n]
	}
	return append(s, make([]T, n-len(s))...)
}

// Append haengt einen Record an.
func (b *Batch) Append(name string, r Record) {
	r = r.clone()
	b.Names = append(b.Names, name)
	b.Labels = append(b.Labels, r.Labels)
	b.Boxes = append(b.Boxes, r.Boxes)
	b.Masks = append(b.Masks, r.Masks)
	b.Joints = append(b.Joints, r.Joints)
	b.ImageSizes = append(b.ImageSizes, [2]int{r.Width, r.Height})
}

func (b *Batch) Len() int { return len(b.Names) }

// BoundingBoxCount gibt die Summe aller Boxen im Batch zurueck.
func (b *Batch) BoundingBoxCount() int {
	n := 0
	for _, bx := range b.Boxes {
		n += len(bx)
	}
	return n
}

// LabelCount gibt die Summe aller Labels im Batch zurueck.
func (b *Batch) LabelCount() int {
	n := 0
	for _, l := range b.Labels {
		n += len(l)
	}
	return n
}

// MaskCount gibt die Anzahl der Polygone im Batch zurueck.
func (b *Batch) MaskCount() int {
	n := 0
	for _, sample := range b.Masks {
		for _, polys := range sample {
			n += len(polys)
		}
	}
	return n
}

// Config beschreibt eine Metadaten-Quelle.
type Config struct {
	Type Type
	Path string
	// COCO
	AvoidClassRemapping bool
	Masks               bool
	Keypoints           bool
	// Eingebettete Labels (TFRecord, WebDataset, CIFAR-10)
	Labels map[string]int32
}

// Reader liefert Metadaten nach Sample-Namen.
type Reader interface {
	Init(cfg Config) error
	// Read liest die Quelle vollstaendig ein
	Read() error
	// Lookup liefert die Records in der Reihenfolge von names
	Lookup(names []string) (*Batch, error)
	Exists(name string) bool
	Len() int
	Release()
	Type() Type
}

// New erstellt, initialisiert und liest einen Reader.
func New(cfg Config) (Reader, error) {
	var r Reader
	switch cfg.Type {
	case TypeLabelFile:
		r = &LabelFileReader{}
	case TypeFolder:
		r = &FolderReader{}
	case TypeCOCO:
		r = &COCOReader{}
	case TypeEmbedded:
		r = &EmbeddedReader{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(cfg.Type))
	}
	if err := r.Init(cfg); err != nil {
		return nil, err
	}
	if err := r.Read(); err != nil {
		return nil, err
	}
	return r, nil
}

// store ist die gemeinsame Name -> Record Ablage der einfachen Reader.
type store struct {
	records map[string]Record
}

func (s *store) put(name string, r Record) {
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	s.records[name] = r
}

func (s *store) Exists(name string) bool {
	_, ok := s.records[name]
	return ok
}

func (s *store) Len() int { return len(s.records) }

func (s *store) Lookup(names []string) (*Batch, error) {
	if s.records == nil {
		return nil, ErrNotRead
	}
	b := NewBatch(len(names))
	for _, n := range names {
		r, ok := s.records[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingName, n)
		}
		b.Append(n, r)
	}
	return b, nil
}

func (s *store) Release() { s.records = nil }
