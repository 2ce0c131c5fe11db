// MODUL: webdataset
// ZWECK: Reader fuer WebDataset-Tar-Archive (Samples gruppiert nach Schluessel)
// INPUT: Tar-Datei oder Verzeichnis mit .tar-Dateien
// OUTPUT: Bilddaten pro Schluessel, Label aus der .cls-Komponente
// NEBENEFFEKTE: Liest beim Init alle Header, Bilddaten werden per Offset nachgeladen
// ABHAENGIGKEITEN: archive/tar (stdlib)
// HINWEISE: Schluessel = Pfad bis zum ersten Punkt im Dateinamen

package reader

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "bmp": true, "gif": true, "tif": true, "tiff": true,
}

type wdsItem struct {
	file   int
	offset int64
	size   int64
}

// WebDataset liest Bilder aus Tar-Archiven.
type WebDataset struct {
	files   []string
	items   []wdsItem
	labels  map[string]int32
	cur     cursor
	handles map[int]*os.File
	section *io.SectionReader
	size    int
}

// countingReader zaehlt gelesene Bytes, um Daten-Offsets im Archiv zu bestimmen.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (r *WebDataset) Init(cfg Config) error {
	files, err := recordFiles(cfg.Path, cfg.FilePrefix)
	if err != nil {
		return err
	}

	r.files = r.files[:0]
	r.items = r.items[:0]
	r.labels = map[string]int32{}
	r.handles = map[int]*os.File{}

	var all []entry
	for _, p := range files {
		if !strings.HasSuffix(p, ".tar") {
			continue
		}
		r.files = append(r.files, p)
		if err := r.index(len(r.files)-1, p, cfg, &all); err != nil {
			return err
		}
	}
	if err := r.cur.init(all, cfg); err != nil {
		return err
	}
	slog.Debug("webdataset reader initialized", "path", cfg.Path, "archives", len(r.files), "samples", len(all))
	return nil
}

func sampleKey(name string) (string, string) {
	dir, base := path.Split(name)
	key, ext, _ := strings.Cut(base, ".")
	return dir + key, strings.ToLower(ext)
}

func (r *WebDataset) index(fi int, p string, cfg Config, all *[]entry) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("archiv oeffnen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	tr := tar.NewReader(cr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		key, ext := sampleKey(hdr.Name)
		switch {
		case ext == "cls":
			b, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			label, err := strconv.Atoi(strings.TrimSpace(string(b)))
			if err != nil {
				slog.Warn("invalid class label in webdataset", "archive", p, "key", key, "error", err)
				continue
			}
			r.labels[key] = int32(label)
		case imageExtensions[ext] && hdr.Size > 0:
			if cfg.Filter != nil && !cfg.Filter.Exists(key) {
				continue
			}
			*all = append(*all, entry{id: key, ref: len(r.items)})
			r.items = append(r.items, wdsItem{file: fi, offset: cr.n, size: hdr.Size})
		}
	}
}

func (r *WebDataset) Count() int { return r.cur.count() }

func (r *WebDataset) Open() (int, error) {
	e, err := r.cur.next()
	if err != nil {
		return 0, err
	}
	item := r.items[e.ref]

	f, ok := r.handles[item.file]
	if !ok {
		if f, err = os.Open(r.files[item.file]); err != nil {
			return 0, fmt.Errorf("archiv oeffnen fehlgeschlagen: %w", err)
		}
		r.handles[item.file] = f
	}
	r.section = io.NewSectionReader(f, item.offset, item.size)
	r.size = int(item.size)
	return r.size, nil
}

func (r *WebDataset) Read(buf []byte) (int, error) {
	if r.section == nil {
		return 0, ErrNotOpen
	}
	return io.ReadFull(r.section, buf[:min(len(buf), r.size)])
}

func (r *WebDataset) Close() { r.section = nil }

func (r *WebDataset) Reset() error {
	r.Close()
	r.cur.reset()
	return nil
}

func (r *WebDataset) ID() string               { return r.cur.current.id }
func (r *WebDataset) CurrentIsPadding() bool   { return r.cur.current.padded }
func (r *WebDataset) LastBatchPaddedSize() int { return r.cur.lastPad }
func (r *WebDataset) Labels() map[string]int32 { return r.labels }

func (r *WebDataset) Release() {
	r.Close()
	for _, f := range r.handles {
		f.Close()
	}
	clear(r.handles)
}
