package reader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// CIFAR-10 Binaerformat: 1 Byte Label + 3072 Byte planares RGB (32x32)
const (
	CifarWidth      = 32
	CifarHeight     = 32
	cifarPixelBytes = CifarWidth * CifarHeight * 3
	cifarRecordSize = 1 + cifarPixelBytes
)

type cifarItem struct {
	file   int
	offset int64
}

// Cifar10 liest CIFAR-10-Binaerdateien und liefert die Pixel als HWC-RGB.
// Die Samples sind bereits dekodiert, die Pipeline nutzt den Raw-Decoder.
type Cifar10 struct {
	files   []string
	items   []cifarItem
	labels  map[string]int32
	cur     cursor
	handles map[int]*os.File
	planar  []byte
	current []byte
	offset  int
}

func (r *Cifar10) Init(cfg Config) error {
	prefix := cfg.FilePrefix
	files, err := recordFiles(cfg.Path, prefix)
	if err != nil {
		return err
	}

	r.files = r.files[:0]
	r.items = r.items[:0]
	r.labels = map[string]int32{}
	r.handles = map[int]*os.File{}
	r.planar = make([]byte, cifarRecordSize)
	r.current = make([]byte, cifarPixelBytes)

	var all []entry
	for _, p := range files {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.Size()%cifarRecordSize != 0 {
			slog.Warn("skipping file with invalid cifar10 size", "path", p, "size", info.Size())
			continue
		}
		r.files = append(r.files, p)
		fi := len(r.files) - 1

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("datei oeffnen fehlgeschlagen: %w", err)
		}
		var label [1]byte
		for n := range int(info.Size() / cifarRecordSize) {
			off := int64(n) * cifarRecordSize
			if _, err := f.ReadAt(label[:], off); err != nil {
				f.Close()
				return err
			}
			id := filepath.Base(p) + "_" + strconv.Itoa(n)
			r.labels[id] = int32(label[0])
			if cfg.Filter != nil && !cfg.Filter.Exists(id) {
				continue
			}
			all = append(all, entry{id: id, ref: len(r.items)})
			r.items = append(r.items, cifarItem{file: fi, offset: off})
		}
		f.Close()
	}

	return r.cur.init(all, cfg)
}

func (r *Cifar10) Count() int { return r.cur.count() }

func (r *Cifar10) Open() (int, error) {
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
	if _, err := f.ReadAt(r.planar, item.offset); err != nil && err != io.EOF {
		return 0, err
	}

	// planar RRR..GGG..BBB -> interleaved RGBRGB..
	const plane = CifarWidth * CifarHeight
	pix := r.planar[1:]
	for i := range plane {
		r.current[i*3+0] = pix[i]
		r.current[i*3+1] = pix[plane+i]
		r.current[i*3+2] = pix[2*plane+i]
	}
	r.offset = 0
	return cifarPixelBytes, nil
}

func (r *Cifar10) Read(buf []byte) (int, error) {
	n := copy(buf, r.current[r.offset:])
	r.offset += n
	return n, nil
}

func (r *Cifar10) Close() {}

func (r *Cifar10) Reset() error {
	r.cur.reset()
	return nil
}

func (r *Cifar10) ID() string               { return r.cur.current.id }
func (r *Cifar10) CurrentIsPadding() bool   { return r.cur.current.padded }
func (r *Cifar10) CurrentShape() (int, int) { return CifarWidth, CifarHeight }
func (r *Cifar10) LastBatchPaddedSize() int { return r.cur.lastPad }
func (r *Cifar10) Labels() map[string]int32 { return r.labels }

func (r *Cifar10) Release() {
	for _, f := range r.handles {
		f.Close()
	}
	clear(r.handles)
}
