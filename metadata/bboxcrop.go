package metadata

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/param"
)

// RandomBBoxCrop waehlt Crop-Fenster, die die Boxen eines Samples mit einer
// zufaellig gewaehlten IoU-Schwelle ueberdecken. Der Loader legt das genutzte
// Fenster pro Batch-Position in seinen Metadaten ab (siehe AdjustBatch).
type RandomBBoxCrop struct {
	// Thresholds: Schwelle 0 bedeutet "kein Crop"
	Thresholds       []float32
	ScaleMin         float64
	ScaleMax         float64
	RatioMin         float64
	RatioMax         float64
	Attempts         int
	AllBoxesAboveMin bool

	meta Reader
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewRandomBBoxCrop erstellt die Quelle mit den ueblichen SSD-Schwellen.
func NewRandomBBoxCrop(meta Reader) *RandomBBoxCrop {
	return &RandomBBoxCrop{
		Thresholds:       []float32{0, 0.1, 0.3, 0.5, 0.7, 0.9},
		ScaleMin:         0.3,
		ScaleMax:         1,
		RatioMin:         0.5,
		RatioMax:         2,
		Attempts:         50,
		AllBoxesAboveMin: true,
		meta:             meta,
		rng:              param.NewRand(),
	}
}

func (c *RandomBBoxCrop) boxes(name string) []BoundingBox {
	b, err := c.meta.Lookup([]string{name})
	if err != nil || b.Len() == 0 {
		return nil
	}
	return b.Boxes[0]
}

func (c *RandomBBoxCrop) CropWindow(name string, width, height int) (decoder.CropWindow, bool) {
	if width <= 0 || height <= 0 {
		return decoder.CropWindow{}, false
	}
	boxes := c.boxes(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	full := decoder.CropWindow{W: width, H: height}
	if len(boxes) == 0 || len(c.Thresholds) == 0 {
		return full, false
	}

	threshold := c.Thresholds[c.rng.IntN(len(c.Thresholds))]
	if threshold <= 0 {
		return full, false
	}

	for range c.Attempts {
		s := c.ScaleMin + c.rng.Float64()*(c.ScaleMax-c.ScaleMin)
		r := c.RatioMin + c.rng.Float64()*(c.RatioMax-c.RatioMin)
		w := int(math.Round(float64(width) * s * math.Sqrt(r)))
		h := int(math.Round(float64(height) * s / math.Sqrt(r)))
		if w <= 0 || h <= 0 || w > width || h > height {
			continue
		}
		win := decoder.CropWindow{
			X: c.rng.IntN(width - w + 1),
			Y: c.rng.IntN(height - h + 1),
			W: w,
			H: h,
		}
		if c.accept(win, boxes, threshold) {
			return win, true
		}
	}
	return full, false
}

func (c *RandomBBoxCrop) accept(win decoder.CropWindow, boxes []BoundingBox, threshold float32) bool {
	crop := windowBox(win)
	hits := 0
	for _, b := range boxes {
		if crop.IoU(b) >= threshold {
			hits++
		} else if c.AllBoxesAboveMin {
			return false
		}
	}
	return hits > 0
}

func windowBox(w decoder.CropWindow) BoundingBox {
	return BoundingBox{L: float32(w.X), T: float32(w.Y), R: float32(w.X + w.W), B: float32(w.Y + w.H)}
}

// AdjustBatch rechnet die Boxen jeder Batch-Position in ihr Crop-Fenster um.
// Leere Fenster (ganzes Bild) lassen die Boxen unveraendert.
func AdjustBatch(b *Batch, windows []decoder.CropWindow) {
	for i := range min(b.Len(), len(windows)) {
		win := windows[i]
		if win.Empty() {
			continue
		}
		b.Boxes[i], b.Labels[i] = AdjustBoxes(win, b.Boxes[i], b.Labels[i])
		b.ImageSizes[i] = [2]int{win.W, win.H}
	}
}

// AdjustBoxes verschiebt Boxen in Fensterkoordinaten und beschneidet sie.
// Boxen, deren Mittelpunkt ausserhalb des Fensters liegt, entfallen samt Label.
func AdjustBoxes(win decoder.CropWindow, boxes []BoundingBox, labels []int32) ([]BoundingBox, []int32) {
	crop := windowBox(win)
	outBoxes := boxes[:0:0]
	outLabels := labels[:0:0]
	for i, b := range boxes {
		cx, cy := (b.L+b.R)/2, (b.T+b.B)/2
		if cx < crop.L || cx > crop.R || cy < crop.T || cy > crop.B {
			continue
		}
		outBoxes = append(outBoxes, BoundingBox{
			L: max(b.L, crop.L) - crop.L,
			T: max(b.T, crop.T) - crop.T,
			R: min(b.R, crop.R) - crop.L,
			B: min(b.B, crop.B) - crop.T,
		})
		if i < len(labels) {
			outLabels = append(outLabels, labels[i])
		}
	}
	return outBoxes, outLabels
}
