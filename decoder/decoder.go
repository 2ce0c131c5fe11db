// Package decoder - Dekodierung komprimierter Samples in Batch-Puffer
//
// Dieses Modul enthaelt:
// - Decoder: Interface (Info-Abfrage, Volldekodierung, Crop-Fenster)
// - Type/New: Factory fuer die eingebauten Decoder
// - Error/Status: Fehlerstatus, der die Ersetzungsstrategie des Loaders ausloest
//
// Implementierungen:
// - image.go: Standard-Bilddecoder (jpeg, png, gif, bmp, tiff, webp)
// - Fused-Crop: gleicher Decoder, wendet das Crop-Fenster vor dem Skalieren an
package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/7blacky7/rocal/tensor"
)

// ============================================================================
// Typen
// ============================================================================

// Type waehlt die Decoder-Implementierung.
type Type int

const (
	TypeImage Type = iota
	TypeFusedCrop
)

func (t Type) String() string {
	switch t {
	case TypeImage:
		return "image"
	case TypeFusedCrop:
		return "fused_crop"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType liefert den Typ zu einem Namen.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "image":
		return TypeImage, nil
	case "fused_crop", "fusedcrop":
		return TypeFusedCrop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Status beschreibt das Ergebnis einer Dekodierung.
type Status int

const (
	StatusOK Status = iota
	StatusHeaderDecodeFailed
	StatusContentDecodeFailed
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusHeaderDecodeFailed:
		return "header decode failed"
	case StatusContentDecodeFailed:
		return "content decode failed"
	case StatusUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

var (
	ErrUnknownType   = errors.New("decoder: unknown decoder type")
	ErrInvalidOutput = errors.New("decoder: invalid output buffer")
)

// Error wird bei fehlgeschlagener Dekodierung zurueckgegeben.
type Error struct {
	Status Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "decoder: " + e.Status.String()
	}
	return "decoder: " + e.Status.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf liefert den Status eines Decoder-Fehlers (StatusOK bei nil).
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Status
	}
	return StatusContentDecodeFailed
}

// Info enthaelt die Abmessungen eines komprimierten Bildes.
type Info struct {
	Width  int
	Height int
	Format ImageFormat
}

// CropWindow ist ein Rechteck in Koordinaten des Originalbildes.
type CropWindow struct {
	X, Y, W, H int
}

// Empty gibt true zurueck, wenn kein Fenster gesetzt ist.
func (c CropWindow) Empty() bool { return c.W <= 0 || c.H <= 0 }

// Request beschreibt den Ziel-Footprint eines Samples.
type Request struct {
	MaxWidth  int
	MaxHeight int
	Color     tensor.ColorFormat
}

// Result enthaelt die tatsaechlich geschriebene Ausdehnung (neue ROI).
type Result struct {
	Width  int
	Height int
}

// ============================================================================
// Decoder Interface
// ============================================================================

// Decoder wandelt komprimierte Bytes in Pixel um. Eine Instanz pro Worker.
type Decoder interface {
	// Initialize bereitet den Decoder fuer ein Geraet vor
	Initialize(deviceID int) error
	// DecodeInfo liest nur den Header
	DecodeInfo(data []byte) (Info, error)
	// Decode schreibt das Bild skaliert in den Footprint MaxWidth x MaxHeight von out
	Decode(data []byte, out []byte, req Request) (Result, error)
	// IsPartialDecoder gibt true zurueck, wenn SetCropWindow beachtet wird
	IsPartialDecoder() bool
	SetCropWindow(w CropWindow)
	Release()
}

// New erstellt einen Decoder des angegebenen Typs.
func New(t Type) (Decoder, error) {
	switch t {
	case TypeImage:
		return &ImageDecoder{}, nil
	case TypeFusedCrop:
		return &ImageDecoder{partial: true}, nil
	}
	return nil, &FactoryError{Op: "new", Err: fmt.Errorf("%w: %d", ErrUnknownType, int(t))}
}

// OutputSize gibt die Bytes pro Sample fuer einen Footprint zurueck.
func OutputSize(maxW, maxH int, c tensor.ColorFormat) int {
	return maxW * maxH * c.Channels()
}

// FactoryError beschreibt einen Fehler beim Erstellen eines Decoders.
type FactoryError struct {
	Op  string
	Err error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("decoder %s: %v", e.Op, e.Err)
}

func (e *FactoryError) Unwrap() error { return e.Err }
