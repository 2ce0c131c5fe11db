package api

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/tensor"
)

// GetOutputTensors gibt die Ausgaben des zuletzt gelesenen Batches zurueck.
// Die Puffer bleiben bis zum naechsten Run gueltig.
func GetOutputTensors(h Handle) (*tensor.List, Status) {
	return query(h, "output tensors", (*pipeline.Context).OutputTensors)
}

// CopyData kopiert Ausgabe idx unveraendert nach dst.
func CopyData(h Handle, idx int, dst []byte, mem tensor.MemType) Status {
	return call(h, "copy data", func(c *pipeline.Context) error { return c.CopyData(idx, dst, mem) })
}

// ToTensor normalisiert, wandelt das Layout und kopiert Ausgabe idx in einem Schritt.
func ToTensor(h Handle, idx int, dst []byte, opts tensor.ConvertOptions) Status {
	return call(h, "to tensor", func(c *pipeline.Context) error { return c.ToTensor(idx, dst, opts) })
}

// ============================================================================
// Info
// ============================================================================

func GetOutputWidth(h Handle) int  { return info(h, (*pipeline.Context).OutputWidth) }
func GetOutputHeight(h Handle) int { return info(h, (*pipeline.Context).OutputHeight) }

func GetOutputColorFormat(h Handle) tensor.ColorFormat {
	return info(h, (*pipeline.Context).OutputColorFormat)
}

// GetRemainingImages gibt die in dieser Epoche noch abholbaren Samples zurueck.
func GetRemainingImages(h Handle) int { return info(h, (*pipeline.Context).Remaining) }

// IsEmpty ist true am Epochenende und fuer ungueltige Handles.
func IsEmpty(h Handle) bool {
	if _, err := contexts.Get(h); err != nil {
		return true
	}
	return info(h, (*pipeline.Context).IsEmpty)
}

func GetAugmentationBranchCount(h Handle) int {
	return info(h, (*pipeline.Context).AugmentationBranchCount)
}

func GetLastBatchPaddedSize(h Handle) int {
	return info(h, (*pipeline.Context).LastBatchPaddedSize)
}

// TimingInfo enthaelt die aufsummierten Zeiten der Stufen.
type TimingInfo struct {
	LoadTime     time.Duration
	DecodeTime   time.Duration
	ProcessTime  time.Duration
	TransferTime time.Duration
}

func GetTimingInfo(h Handle) TimingInfo {
	t := info(h, (*pipeline.Context).Timing)
	return TimingInfo{
		LoadTime:     t.LoadTime,
		DecodeTime:   t.DecodeTime,
		ProcessTime:  t.ProcessTime,
		TransferTime: t.TransferTime,
	}
}

// GetTimingReport liefert alle Stufen- und Batchzeiten in fester Reihenfolge.
func GetTimingReport(h Handle) *orderedmap.OrderedMap[string, time.Duration] {
	return info(h, (*pipeline.Context).Timing).Report()
}
