// MODUL: coco
// ZWECK: COCO-Annotationen (Boxen, Klassen, Polygon-Masken, Keypoints) pro Bild
// INPUT: instances_*.json bzw. person_keypoints_*.json
// OUTPUT: Record pro file_name; Bilder ohne Annotation sind mit leeren Listen enthalten
// NEBENEFFEKTE: Liest die JSON-Datei vollstaendig ein
// ABHAENGIGKEITEN: github.com/wk8/go-ordered-map/v2
// HINWEISE: bbox [x,y,w,h] wird zu LTRB (r=x+w, b=y+h); Klassen-IDs werden ohne
//           AvoidClassRemapping auf 1..K (aufsteigend nach ID) abgebildet

package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoAnnotation struct {
	ID           int             `json:"id"`
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	BBox         []float32       `json:"bbox"`
	IsCrowd      int             `json:"iscrowd"`
	Segmentation json.RawMessage `json:"segmentation"`
	Keypoints    []float32       `json:"keypoints"`
	NumKeypoints int             `json:"num_keypoints"`
}

type cocoFile struct {
	Images      []cocoImage      `json:"images"`
	Categories  []cocoCategory   `json:"categories"`
	Annotations []cocoAnnotation `json:"annotations"`
}

// COCOReader liest eine COCO-Annotationsdatei.
type COCOReader struct {
	store
	cfg Config
	// Kategorie-ID -> Label, aufsteigend nach ID
	labels *orderedmap.OrderedMap[int, int32]
	names  *orderedmap.OrderedMap[int32, string]
}

func (r *COCOReader) Init(cfg Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("%w: annotation path is empty", ErrParse)
	}
	r.cfg = cfg
	return nil
}

func (r *COCOReader) Read() error {
	data, err := os.ReadFile(r.cfg.Path)
	if err != nil {
		return fmt.Errorf("annotationen lesen fehlgeschlagen: %w", err)
	}
	var f cocoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, r.cfg.Path, err)
	}

	r.buildCategories(f.Categories)

	byID := make(map[int]string, len(f.Images))
	r.records = make(map[string]Record, len(f.Images))
	for _, img := range f.Images {
		name := filepath.Base(img.FileName)
		byID[img.ID] = name
		r.put(name, Record{Width: img.Width, Height: img.Height})
	}

	skipped := 0
	for _, a := range f.Annotations {
		name, ok := byID[a.ImageID]
		if !ok {
			skipped++
			continue
		}
		if len(a.BBox) != 4 {
			return fmt.Errorf("%w: annotation %d has %d bbox values", ErrParse, a.ID, len(a.BBox))
		}
		label, ok := r.labels.Get(a.CategoryID)
		if !ok {
			return fmt.Errorf("%w: annotation %d uses unknown category %d", ErrParse, a.ID, a.CategoryID)
		}

		rec := r.records[name]
		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		rec.Boxes = append(rec.Boxes, BoundingBox{L: x, T: y, R: x + w, B: y + h})
		rec.Labels = append(rec.Labels, label)
		if r.cfg.Masks {
			rec.Masks = append(rec.Masks, parsePolygons(a.Segmentation))
		}
		if r.cfg.Keypoints && a.NumKeypoints > 0 {
			rec.Joints = append(rec.Joints, newJoints(a))
		}
		r.records[name] = rec
	}
	if skipped > 0 {
		slog.Warn("coco annotations reference unknown images", "count", skipped)
	}
	slog.Debug("coco annotations loaded", "images", len(f.Images), "annotations", len(f.Annotations), "categories", r.labels.Len())
	return nil
}

func (r *COCOReader) buildCategories(cats []cocoCategory) {
	slices.SortFunc(cats, func(a, b cocoCategory) int { return a.ID - b.ID })
	r.labels = orderedmap.New[int, int32]()
	r.names = orderedmap.New[int32, string]()
	for i, c := range cats {
		label := int32(c.ID)
		if !r.cfg.AvoidClassRemapping {
			label = int32(i + 1)
		}
		r.labels.Set(c.ID, label)
		r.names.Set(label, c.Name)
	}
}

// parsePolygons liest Polygon-Segmentierungen; RLE (iscrowd) ergibt keine Polygone.
func parsePolygons(raw json.RawMessage) []Polygon {
	var polys [][]float32
	if len(raw) == 0 || json.Unmarshal(raw, &polys) != nil {
		return nil
	}
	out := make([]Polygon, len(polys))
	for i, p := range polys {
		out[i] = Polygon(p)
	}
	return out
}

// newJoints leitet Mittelpunkt und Skala aus der Box ab (Skala in Einheiten von 200px, +25%).
func newJoints(a cocoAnnotation) Joints {
	x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
	j := Joints{
		ImageID:      a.ImageID,
		AnnotationID: a.ID,
		Center:       [2]float32{x + w/2, y + h/2},
		Scale:        [2]float32{w / 200 * 1.25, h / 200 * 1.25},
		Score:        1,
	}
	for k := 0; k+2 < len(a.Keypoints); k += 3 {
		j.Points = append(j.Points, [2]float32{a.Keypoints[k], a.Keypoints[k+1]})
		vis := float32(0)
		if a.Keypoints[k+2] > 0 {
			vis = 1
		}
		j.Visibility = append(j.Visibility, vis)
	}
	return j
}

// Categories liefert Label -> Klassenname in Label-Reihenfolge.
func (r *COCOReader) Categories() []string {
	var out []string
	for pair := r.names.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Label liefert das Label einer COCO-Kategorie-ID.
func (r *COCOReader) Label(categoryID int) (int32, bool) {
	return r.labels.Get(categoryID)
}

func (r *COCOReader) Type() Type { return TypeCOCO }
