package pipeline

import (
	"fmt"
	"time"

	"github.com/7blacky7/rocal/tensor"
)

// OutputTensors gibt die Ausgabe-Tensoren des zuletzt gelesenen Batches zurueck.
// Die Puffer bleiben bis zum naechsten Run gueltig.
func (c *Context) OutputTensors() (*tensor.List, error) {
	if _, err := c.currentSlot(); err != nil {
		return nil, err
	}
	return tensor.NewList(c.outputs...), nil
}

func (c *Context) output(idx int) (*tensor.Tensor, error) {
	if _, err := c.currentSlot(); err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(c.outputs) {
		return nil, fmt.Errorf("%w: output %d of %d", ErrInvalidArgument, idx, len(c.outputs))
	}
	return c.outputs[idx], nil
}

// CopyData kopiert Ausgabe idx unveraendert nach dst.
func (c *Context) CopyData(idx int, dst []byte, mem tensor.MemType) error {
	t, err := c.output(idx)
	if err != nil {
		return err
	}
	start := time.Now()
	defer c.timing.addTransfer(start)
	return t.CopyData(dst, mem)
}

// ToTensor normalisiert Ausgabe idx und schreibt sie im gewuenschten Layout nach dst.
func (c *Context) ToTensor(idx int, dst []byte, opts tensor.ConvertOptions) error {
	t, err := c.output(idx)
	if err != nil {
		return err
	}
	start := time.Now()
	defer c.timing.addTransfer(start)
	return tensor.ToTensor(t, dst, opts)
}

// ============================================================================
// Info
// ============================================================================

func (c *Context) firstOutput() *tensor.Tensor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outputs) == 0 {
		return nil
	}
	return c.outputs[0]
}

// OutputWidth gibt die maximale Breite des ersten Ausgangs zurueck (0 vor Verify).
func (c *Context) OutputWidth() int {
	if t := c.firstOutput(); t != nil {
		return t.Info().MaxWidth()
	}
	return 0
}

// OutputHeight gibt die maximale Hoehe des ersten Ausgangs zurueck (0 vor Verify).
func (c *Context) OutputHeight() int {
	if t := c.firstOutput(); t != nil {
		return t.Info().MaxHeight()
	}
	return 0
}

// OutputColorFormat gibt das Farbformat des ersten Ausgangs zurueck.
func (c *Context) OutputColorFormat() tensor.ColorFormat {
	if t := c.firstOutput(); t != nil {
		return t.Info().ColorFormat()
	}
	return 0
}

// Remaining schaetzt die Samples, die in dieser Epoche noch per Run abgeholt
// werden koennen: Loader-Bestand, der Batch in Arbeit und fertige Ring-Slots.
func (c *Context) Remaining() int {
	c.mu.Lock()
	loaders, ring := c.loaders, c.ring
	c.mu.Unlock()
	if loaders == nil || ring == nil {
		return 0
	}

	ready := ring.Level()
	if c.held.Load() {
		ready--
	}
	n := loaders.Remaining() + int(c.inflight.Load()) + max(ready, 0)*c.opts.BatchSize
	return max(n, 0)
}

// IsEmpty meldet das Ende der Epoche.
func (c *Context) IsEmpty() bool { return c.Remaining() == 0 }

// AugmentationBranchCount gibt die Anzahl der Ausgaenge zurueck.
func (c *Context) AugmentationBranchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outputs)
}

// LastBatchPaddedSize gibt die Fuellsamples des letzten Batches der Epoche zurueck.
func (c *Context) LastBatchPaddedSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaders == nil {
		return 0
	}
	return c.loaders.LastBatchPaddedSize()
}
