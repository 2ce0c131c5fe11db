// MODUL: tfrecord
// ZWECK: Reader fuer TFRecord-Dateien mit tf.train.Example-Records
// INPUT: Datei oder Verzeichnis mit TFRecord-Dateien
// OUTPUT: Kodierte Bilder (Feature "image/encoded") und Labels ("image/class/label")
// NEBENEFFEKTE: Liest beim Init alle Dateien einmal komplett (Index + CRC-Pruefung)
// ABHAENGIGKEITEN: google.golang.org/protobuf/encoding/protowire, hash/crc32
// HINWEISE: Record = uint64 len | uint32 masked crc(len) | data | uint32 masked crc(data)

package reader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// Feature-Namen im tf.train.Example
const (
	FeatureEncoded  = "image/encoded"
	FeatureFilename = "image/filename"
	FeatureLabel    = "image/class/label"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, crcTable)
	return ((c >> 15) | (c << 17)) + 0xa282ead8
}

// ============================================================================
// Record-Framing
// ============================================================================

// WriteTFRecord schreibt einen Record inklusive Laenge und Pruefsummen.
func WriteTFRecord(w io.Writer, data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))
	_, err := w.Write(footer[:])
	return err
}

// readTFRecord liest den naechsten Record. io.EOF am sauberen Dateiende.
func readTFRecord(r io.Reader, buf []byte) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptRecord)
	}
	if binary.LittleEndian.Uint32(header[8:]) != maskedCRC(header[:8]) {
		return nil, fmt.Errorf("%w: length checksum mismatch", ErrCorruptRecord)
	}

	n := binary.LittleEndian.Uint64(header[:8])
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: record length %d", ErrCorruptRecord, n)
	}
	if cap(buf) < int(n) {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated data", ErrCorruptRecord)
	}

	var footer [4]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated footer", ErrCorruptRecord)
	}
	if binary.LittleEndian.Uint32(footer[:]) != maskedCRC(buf) {
		return nil, fmt.Errorf("%w: data checksum mismatch", ErrCorruptRecord)
	}
	return buf, nil
}

// ============================================================================
// tf.train.Example
// ============================================================================

// Feature ist ein dekodiertes tf.train.Feature.
type Feature struct {
	Bytes  [][]byte
	Floats []float32
	Ints   []int64
}

// ParseExample dekodiert ein tf.train.Example in eine Feature-Map.
//
//	Example  { Features features = 1; }
//	Features { map<string, Feature> feature = 1; }
//	Feature  { oneof { BytesList = 1; FloatList = 2; Int64List = 3; } }
func ParseExample(b []byte) (map[string]Feature, error) {
	features := map[string]Feature{}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		return forEachField(v, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != 1 || typ != protowire.BytesType {
				return nil
			}
			return parseMapEntry(entry, features)
		})
	})
	if err != nil {
		return nil, err
	}
	return features, nil
}

func parseMapEntry(b []byte, out map[string]Feature) error {
	var key string
	var feature Feature
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			key = string(v)
		case num == 2 && typ == protowire.BytesType:
			f, err := parseFeature(v)
			if err != nil {
				return err
			}
			feature = f
		}
		return nil
	})
	if err != nil {
		return err
	}
	out[key] = feature
	return nil
}

func parseFeature(b []byte) (Feature, error) {
	var f Feature
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		return forEachValue(list, func(typ protowire.Type, v []byte, scalar uint64) error {
			switch num {
			case 1:
				if typ == protowire.BytesType {
					f.Bytes = append(f.Bytes, v)
				}
			case 2:
				switch typ {
				case protowire.Fixed32Type:
					f.Floats = append(f.Floats, math.Float32frombits(uint32(scalar)))
				case protowire.BytesType:
					for len(v) >= 4 {
						f.Floats = append(f.Floats, math.Float32frombits(binary.LittleEndian.Uint32(v)))
						v = v[4:]
					}
				}
			case 3:
				switch typ {
				case protowire.VarintType:
					f.Ints = append(f.Ints, int64(scalar))
				case protowire.BytesType:
					for len(v) > 0 {
						x, n := protowire.ConsumeVarint(v)
						if n < 0 {
							return protowire.ParseError(n)
						}
						f.Ints = append(f.Ints, int64(x))
						v = v[n:]
					}
				}
			}
			return nil
		})
	})
	return f, err
}

// forEachField ruft fn fuer jedes Feld einer Nachricht auf (nur Bytes-Werte werden weitergereicht).
func forEachField(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		if typ == protowire.BytesType {
			v, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

// forEachValue iteriert ueber die Werte einer *List-Nachricht (Feld 1, gepackt oder einzeln).
func forEachValue(b []byte, fn func(protowire.Type, []byte, uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		var scalar uint64
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var x uint32
			x, n = protowire.ConsumeFixed32(b)
			scalar = uint64(x)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]
		if num != 1 {
			continue
		}
		if err := fn(typ, v, scalar); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// TFRecord Reader
// ============================================================================

// tfrecordItem verweist auf einen Record innerhalb einer Datei.
type tfrecordItem struct {
	file   int
	offset int64
}

// TFRecord liest Bilder aus tf.train.Example-Records.
type TFRecord struct {
	files   []string
	items   []tfrecordItem
	labels  map[string]int32
	cur     cursor
	handles map[int]*os.File
	current []byte
	offset  int
	scratch []byte
}

func (r *TFRecord) Init(cfg Config) error {
	files, err := recordFiles(cfg.Path, cfg.FilePrefix)
	if err != nil {
		return err
	}

	r.files = files
	r.items = r.items[:0]
	r.labels = map[string]int32{}
	r.handles = map[int]*os.File{}

	var all []entry
	for fi, path := range files {
		if err := r.index(fi, path, cfg, &all); err != nil {
			return err
		}
	}
	if err := r.cur.init(all, cfg); err != nil {
		return err
	}
	slog.Debug("tfrecord reader initialized", "path", cfg.Path, "files", len(files), "records", len(all))
	return nil
}

// index liest alle Records einer Datei und merkt sich Offset, Name und Label.
func (r *TFRecord) index(fi int, path string, cfg Config, all *[]entry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("datei oeffnen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var offset int64
	for n := 0; ; n++ {
		rec, err := readTFRecord(br, r.scratch)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s record %d: %w", path, n, err)
		}
		r.scratch = rec

		features, err := ParseExample(rec)
		if err != nil {
			return fmt.Errorf("%s record %d: %w", path, n, err)
		}
		if len(features[FeatureEncoded].Bytes) == 0 {
			return fmt.Errorf("%s record %d: %w: %s", path, n, ErrMissingFeature, FeatureEncoded)
		}

		id := filepath.Base(path) + "_" + strconv.Itoa(n)
		if names := features[FeatureFilename].Bytes; len(names) > 0 {
			id = string(names[0])
		}
		if labels := features[FeatureLabel].Ints; len(labels) > 0 {
			r.labels[id] = int32(labels[0])
		}

		if cfg.Filter == nil || cfg.Filter.Exists(id) {
			*all = append(*all, entry{id: id, ref: len(r.items)})
			r.items = append(r.items, tfrecordItem{file: fi, offset: offset})
		}
		offset += int64(len(rec)) + 16
	}
}

// recordFiles liefert eine einzelne Datei oder alle Dateien eines Verzeichnisses.
func recordFiles(path, prefix string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	return listFiles(path, prefix)
}

func (r *TFRecord) Count() int { return r.cur.count() }

func (r *TFRecord) Open() (int, error) {
	e, err := r.cur.next()
	if err != nil {
		return 0, err
	}
	item := r.items[e.ref]

	f, ok := r.handles[item.file]
	if !ok {
		if f, err = os.Open(r.files[item.file]); err != nil {
			return 0, fmt.Errorf("datei oeffnen fehlgeschlagen: %w", err)
		}
		r.handles[item.file] = f
	}

	rec, err := readTFRecord(io.NewSectionReader(f, item.offset, math.MaxInt64-item.offset), r.scratch)
	if err != nil {
		return 0, err
	}
	r.scratch = rec
	features, err := ParseExample(rec)
	if err != nil {
		return 0, err
	}
	r.current = features[FeatureEncoded].Bytes[0]
	r.offset = 0
	return len(r.current), nil
}

func (r *TFRecord) Read(buf []byte) (int, error) {
	n := copy(buf, r.current[r.offset:])
	r.offset += n
	return n, nil
}

func (r *TFRecord) Close() { r.current = nil }

func (r *TFRecord) Reset() error {
	r.Close()
	r.cur.reset()
	return nil
}

func (r *TFRecord) ID() string               { return r.cur.current.id }
func (r *TFRecord) CurrentIsPadding() bool   { return r.cur.current.padded }
func (r *TFRecord) LastBatchPaddedSize() int { return r.cur.lastPad }
func (r *TFRecord) Labels() map[string]int32 { return r.labels }

func (r *TFRecord) Release() {
	r.Close()
	for _, f := range r.handles {
		f.Close()
	}
	clear(r.handles)
}
