package loader

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/param"
)

// CropWindowSource liefert pro Sample ein Crop-Fenster fuer Fused-Crop-Decoder.
// ok=false bedeutet: kein Fenster, ganzes Bild dekodieren.
type CropWindowSource interface {
	CropWindow(name string, width, height int) (w decoder.CropWindow, ok bool)
}

// RandomCrop waehlt Fenster mit zufaelliger Flaeche und Seitenverhaeltnis.
type RandomCrop struct {
	AreaMin, AreaMax   float64
	RatioMin, RatioMax float64
	Attempts           int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomCrop erstellt eine Quelle mit den ueblichen Grenzen
// (Flaeche [0.08, 1], Seitenverhaeltnis [3/4, 4/3], 10 Versuche).
func NewRandomCrop() *RandomCrop {
	return &RandomCrop{
		AreaMin:  0.08,
		AreaMax:  1,
		RatioMin: 3.0 / 4.0,
		RatioMax: 4.0 / 3.0,
		Attempts: 10,
		rng:      param.NewRand(),
	}
}

func (c *RandomCrop) CropWindow(_ string, width, height int) (decoder.CropWindow, bool) {
	if width <= 0 || height <= 0 {
		return decoder.CropWindow{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	area := float64(width * height)
	logMin, logMax := math.Log(c.RatioMin), math.Log(c.RatioMax)
	for range c.Attempts {
		target := area * (c.AreaMin + c.rng.Float64()*(c.AreaMax-c.AreaMin))
		ratio := math.Exp(logMin + c.rng.Float64()*(logMax-logMin))

		w := int(math.Round(math.Sqrt(target * ratio)))
		h := int(math.Round(math.Sqrt(target / ratio)))
		if w > 0 && h > 0 && w <= width && h <= height {
			return decoder.CropWindow{
				X: c.rng.IntN(width - w + 1),
				Y: c.rng.IntN(height - h + 1),
				W: w,
				H: h,
			}, true
		}
	}

	// Fallback: zentrierter Ausschnitt mit geklemmtem Seitenverhaeltnis
	w, h := width, height
	if r := float64(width) / float64(height); r < c.RatioMin {
		h = int(math.Round(float64(width) / c.RatioMin))
	} else if r > c.RatioMax {
		w = int(math.Round(float64(height) * c.RatioMax))
	}
	return decoder.CropWindow{X: (width - w) / 2, Y: (height - h) / 2, W: w, H: h}, true
}
