package api

import (
	"fmt"

	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

// TensorHandle verweist auf einen Tensor einer Pipeline.
type TensorHandle Handle

const InvalidTensor TensorHandle = 0

func tensorOf(h TensorHandle) (*tensor.Tensor, error) {
	r, err := tensors.Get(Handle(h))
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %s", pipeline.ErrForeignTensor, Handle(h))
	}
	return r.t, nil
}

// TensorInfo liefert die Beschreibung eines Tensors (nil bei ungueltigem Handle).
func TensorInfo(h TensorHandle) *tensor.Info {
	t, err := tensorOf(h)
	if err != nil {
		return nil
	}
	return t.Info()
}

// addTensor fuehrt einen Graph-Aufruf aus und registriert den neuen Tensor.
func addTensor(h Handle, op string, fn func(c *pipeline.Context) (*tensor.Tensor, error)) TensorHandle {
	t, st := query(h, op, fn)
	if st != StatusOK || t == nil {
		return InvalidTensor
	}
	return TensorHandle(tensors.Add(tensorRef{owner: h, t: t}))
}

// ============================================================================
// Quellen
// ============================================================================

func FileSource(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "file source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.FileSource(o) })
}

func TFRecordSource(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "tfrecord source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.TFRecordSource(o) })
}

func WebDatasetSource(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "webdataset source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.WebDatasetSource(o) })
}

func ArchiveSource(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "archive source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.ArchiveSource(o) })
}

func Cifar10Source(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "cifar10 source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.Cifar10Source(o) })
}

// ExternalFileSource erwartet Dateinamen oder komprimierte Puffer per ExternalSourceFeedInput.
func ExternalFileSource(h Handle, o pipeline.SourceOptions, mode reader.ExternalMode) TensorHandle {
	return addTensor(h, "external source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.ExternalFileSource(o, mode) })
}

// RawSource erwartet dekodierte HWC-Pixel per ExternalSourceFeedInput.
func RawSource(h Handle, o pipeline.SourceOptions) TensorHandle {
	return addTensor(h, "raw source", func(c *pipeline.Context) (*tensor.Tensor, error) { return c.RawSource(o) })
}

// ExternalSourceFeedInput reicht Dateinamen (Dateimodus) oder Puffer weiter.
// eos beendet die Sequenz; danach liefert Run nach dem letzten Batch RunNoMoreData.
func ExternalSourceFeedInput(h Handle, names []string, samples []reader.Sample, eos bool) Status {
	return call(h, "external source feed", func(c *pipeline.Context) error {
		return c.ExternalSourceFeedInput(names, samples, eos)
	})
}
