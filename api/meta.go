package api

import (
	"github.com/7blacky7/rocal/metadata"
	"github.com/7blacky7/rocal/pipeline"
)

// ============================================================================
// Metadaten-Reader
// ============================================================================

func CreateLabelReader(h Handle, path string) Status {
	return call(h, "label reader", func(c *pipeline.Context) error {
		_, err := c.CreateLabelReader(path)
		return err
	})
}

func CreateFolderReader(h Handle, root string) Status {
	return call(h, "folder reader", func(c *pipeline.Context) error {
		_, err := c.CreateFolderReader(root)
		return err
	})
}

func CreateCOCOReader(h Handle, path string, o pipeline.COCOOptions) Status {
	return call(h, "coco reader", func(c *pipeline.Context) error {
		_, err := c.CreateCOCOReader(path, o)
		return err
	})
}

// CreateEmbeddedLabelReader nutzt die Labels aus TFRecord, WebDataset oder CIFAR-10.
func CreateEmbeddedLabelReader(h Handle) Status {
	return call(h, "embedded label reader", (*pipeline.Context).CreateEmbeddedLabelReader)
}

// RandomBBoxCrop aktiviert box-gesteuerte Crops im Decoder.
func RandomBBoxCrop(h Handle) Status {
	return call(h, "random bbox crop", func(c *pipeline.Context) error {
		_, err := c.RandomBBoxCrop()
		return err
	})
}

// ============================================================================
// Metadaten des aktuellen Batches
// ============================================================================

func batchOf(h Handle, op string) (*metadata.Batch, Status) {
	return query(h, op, (*pipeline.Context).Metadata)
}

// GetImageLabels gibt pro Sample das erste Label zurueck (-1 ohne Label).
func GetImageLabels(h Handle) ([]int32, Status) {
	b, st := batchOf(h, "image labels")
	if st != StatusOK {
		return nil, st
	}
	out := make([]int32, b.Len())
	for i, l := range b.Labels {
		out[i] = -1
		if len(l) > 0 {
			out[i] = l[0]
		}
	}
	return out, StatusOK
}

func GetBoundingBoxCount(h Handle) int {
	b, st := batchOf(h, "bounding box count")
	if st != StatusOK {
		return 0
	}
	return b.BoundingBoxCount()
}

// GetBoundingBoxCords gibt pro Sample die Boxen (LTRB, Pixel) zurueck.
func GetBoundingBoxCords(h Handle) ([][]metadata.BoundingBox, Status) {
	b, st := batchOf(h, "bounding box cords")
	if st != StatusOK {
		return nil, st
	}
	return b.Boxes, StatusOK
}

func GetBoundingBoxLabels(h Handle) ([][]int32, Status) {
	b, st := batchOf(h, "bounding box labels")
	if st != StatusOK {
		return nil, st
	}
	return b.Labels, StatusOK
}

func GetMaskCount(h Handle) int {
	b, st := batchOf(h, "mask count")
	if st != StatusOK {
		return 0
	}
	return b.MaskCount()
}

// GetMaskCoordinates gibt pro Sample und Box die Polygone zurueck.
func GetMaskCoordinates(h Handle) ([][][]metadata.Polygon, Status) {
	b, st := batchOf(h, "mask coordinates")
	if st != StatusOK {
		return nil, st
	}
	return b.Masks, StatusOK
}

func GetJointsData(h Handle) ([][]metadata.Joints, Status) {
	b, st := batchOf(h, "joints data")
	if st != StatusOK {
		return nil, st
	}
	return b.Joints, StatusOK
}

func GetImageNames(h Handle) ([]string, Status) {
	return query(h, "image names", (*pipeline.Context).ImageNames)
}

// GetImageSizes gibt die Bildgroessen vor dem Dekodier-Skalieren zurueck.
func GetImageSizes(h Handle) (widths, heights []uint32, st Status) {
	type sizes struct{ w, h []uint32 }
	s, st := query(h, "image sizes", func(c *pipeline.Context) (sizes, error) {
		w, hh, err := c.OriginalSizes()
		return sizes{w, hh}, err
	})
	return s.w, s.h, st
}
