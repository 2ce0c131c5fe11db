package reader

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileSource liest Dateien aus einem Verzeichnisbaum.
type FileSource struct {
	paths []string
	cur   cursor
	file  *os.File
	size  int
}

func (r *FileSource) Init(cfg Config) error {
	paths, err := listFiles(cfg.Path, cfg.FilePrefix)
	if err != nil {
		return err
	}

	r.paths = r.paths[:0]
	var all []entry
	for _, p := range paths {
		id := filepath.Base(p)
		if cfg.Filter != nil && !cfg.Filter.Exists(id) {
			continue
		}
		all = append(all, entry{id: id, ref: len(r.paths)})
		r.paths = append(r.paths, p)
	}

	if err := r.cur.init(all, cfg); err != nil {
		return err
	}
	slog.Debug("file source initialized", "path", cfg.Path, "shard", cfg.ShardID, "files", len(all), "shard_size", r.cur.size())
	return nil
}

// listFiles liefert alle regulaeren, nicht leeren Dateien in lexikalischer Reihenfolge.
func listFiles(root, prefix string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasPrefix(d.Name(), prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() == 0 {
			slog.Warn("skipping empty file", "path", path)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verzeichnis lesen fehlgeschlagen: %w", err)
	}
	return files, nil
}

func (r *FileSource) Count() int { return r.cur.count() }

func (r *FileSource) Open() (int, error) {
	e, err := r.cur.next()
	if err != nil {
		return 0, err
	}

	f, err := os.Open(r.paths[e.ref])
	if err != nil {
		return 0, fmt.Errorf("datei oeffnen fehlgeschlagen: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	r.file, r.size = f, int(info.Size())
	return r.size, nil
}

func (r *FileSource) Read(buf []byte) (int, error) {
	if r.file == nil {
		return 0, ErrNotOpen
	}
	n := min(len(buf), r.size)
	return io.ReadFull(r.file, buf[:n])
}

func (r *FileSource) Close() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

func (r *FileSource) Reset() error {
	r.Close()
	r.cur.reset()
	return nil
}

func (r *FileSource) ID() string               { return r.cur.current.id }
func (r *FileSource) CurrentIsPadding() bool   { return r.cur.current.padded }
func (r *FileSource) LastBatchPaddedSize() int { return r.cur.lastPad }
func (r *FileSource) Release()                 { r.Close() }
