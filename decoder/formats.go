// MODUL: formats
// ZWECK: Bildformat-Erkennung anhand von Magic-Bytes vor dem Dekodieren
// INPUT: Komprimierte Bild-Bytes
// OUTPUT: ImageFormat, Fehler bei unbekanntem Format
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Erkennt JPEG/PNG/GIF/BMP/TIFF/WebP

package decoder

import (
	"bytes"
	"errors"
)

// ImageFormat repraesentiert ein erkanntes Bildformat
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatGIF     ImageFormat = "gif"
	FormatBMP     ImageFormat = "bmp"
	FormatTIFF    ImageFormat = "tiff"
	FormatWebP    ImageFormat = "webp"
	FormatUnknown ImageFormat = "unknown"
)

// Magic-Byte-Signaturen
var (
	magicJPEG   = []byte{0xFF, 0xD8, 0xFF}
	magicPNG    = []byte{0x89, 0x50, 0x4E, 0x47}
	magicGIF    = []byte("GIF8")
	magicBMP    = []byte("BM")
	magicTIFFLE = []byte{0x49, 0x49, 0x2A, 0x00}
	magicTIFFBE = []byte{0x4D, 0x4D, 0x00, 0x2A}
	magicRIFF   = []byte("RIFF")
)

// ErrUnknownFormat wird zurueckgegeben wenn das Format nicht erkannt wurde
var ErrUnknownFormat = errors.New("decoder: unknown image format")

// DetectFormat erkennt das Bildformat anhand der Magic-Bytes
func DetectFormat(data []byte) ImageFormat {
	if len(data) < 4 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(data, magicGIF):
		return FormatGIF
	case bytes.HasPrefix(data, magicTIFFLE), bytes.HasPrefix(data, magicTIFFBE):
		return FormatTIFF
	case bytes.HasPrefix(data, magicRIFF) && isWebP(data):
		return FormatWebP
	case bytes.HasPrefix(data, magicBMP):
		return FormatBMP
	}
	return FormatUnknown
}

// isWebP prueft auf "WEBP" Marker nach RIFF Header
func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[8:12]) == "WEBP"
}

// ValidateFormat prueft ob ein Format dekodiert werden kann
func ValidateFormat(format ImageFormat) error {
	if format == FormatUnknown {
		return ErrUnknownFormat
	}
	return nil
}

// String implementiert Stringer Interface
func (f ImageFormat) String() string {
	return string(f)
}
