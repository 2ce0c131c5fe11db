package metadata

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// LabelFileReader liest Zeilen der Form "name label".
type LabelFileReader struct {
	store
	path string
}

func (r *LabelFileReader) Init(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("%w: label file path is empty", ErrParse)
	}
	r.path = cfg.Path
	return nil
}

func (r *LabelFileReader) Read() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("label-datei oeffnen fehlgeschlagen: %w", err)
	}
	defer f.Close()

	r.records = make(map[string]Record)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) != 2 {
			return fmt.Errorf("%w: %s:%d: expected \"name label\"", ErrParse, r.path, line)
		}
		label, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s:%d: %v", ErrParse, r.path, line, err)
		}
		name := filepath.Base(fields[0])
		if r.Exists(name) {
			slog.Warn("duplicate label entry, keeping last", "name", name, "line", line)
		}
		r.put(name, Record{Labels: []int32{int32(label)}})
	}
	return sc.Err()
}

func (r *LabelFileReader) Type() Type { return TypeLabelFile }

// FolderReader vergibt als Label den Index des Unterordners (lexikalisch sortiert).
type FolderReader struct {
	store
	root    string
	classes []string
}

func (r *FolderReader) Init(cfg Config) error {
	r.root = cfg.Path
	return nil
}

func (r *FolderReader) Read() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("verzeichnis lesen fehlgeschlagen: %w", err)
	}

	r.records = make(map[string]Record)
	r.classes = r.classes[:0]
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			r.classes = append(r.classes, e.Name())
		}
	}
	slices.Sort(r.classes)

	for label, class := range r.classes {
		err := filepath.WalkDir(filepath.Join(r.root, class), func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return err
			}
			if r.Exists(d.Name()) {
				slog.Warn("sample name appears in several classes, keeping last", "name", d.Name(), "class", class)
			}
			r.put(d.Name(), Record{Labels: []int32{int32(label)}})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Classes gibt die Klassennamen in Label-Reihenfolge zurueck.
func (r *FolderReader) Classes() []string { return r.classes }

func (r *FolderReader) Type() Type { return TypeFolder }

// EmbeddedReader nutzt Labels, die die Datenquelle selbst mitliefert.
type EmbeddedReader struct {
	store
	labels map[string]int32
}

func (r *EmbeddedReader) Init(cfg Config) error {
	if cfg.Labels == nil {
		return fmt.Errorf("%w: source carries no labels", ErrNotRead)
	}
	r.labels = cfg.Labels
	return nil
}

func (r *EmbeddedReader) Read() error {
	r.records = make(map[string]Record, len(r.labels))
	for name, l := range r.labels {
		r.put(name, Record{Labels: []int32{l}})
	}
	return nil
}

func (r *EmbeddedReader) Type() Type { return TypeEmbedded }
