package pipeline

import (
	"fmt"
	"maps"
	"slices"

	"github.com/7blacky7/rocal/metadata"
	"github.com/7blacky7/rocal/reader"
)

// COCOOptions steuert, was der COCO-Reader zusaetzlich zu den Boxen liest.
type COCOOptions struct {
	Masks               bool
	Keypoints           bool
	AvoidClassRemapping bool
}

// CreateLabelReader liest eine Datei mit Zeilen "name label".
func (c *Context) CreateLabelReader(path string) (metadata.Reader, error) {
	return c.addMetadata(metadata.Config{Type: metadata.TypeLabelFile, Path: path})
}

// CreateFolderReader vergibt Labels nach Unterordnern von root.
func (c *Context) CreateFolderReader(root string) (metadata.Reader, error) {
	return c.addMetadata(metadata.Config{Type: metadata.TypeFolder, Path: root})
}

// CreateCOCOReader liest eine COCO-Annotationsdatei.
func (c *Context) CreateCOCOReader(path string, o COCOOptions) (metadata.Reader, error) {
	return c.addMetadata(metadata.Config{
		Type:                metadata.TypeCOCO,
		Path:                path,
		Masks:               o.Masks,
		Keypoints:           o.Keypoints,
		AvoidClassRemapping: o.AvoidClassRemapping,
	})
}

func (c *Context) addMetadata(cfg metadata.Config) (metadata.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return nil, err
	}
	if c.meta != nil || c.metaCfg != nil {
		return nil, ErrMetadataExists
	}
	r, err := metadata.New(cfg)
	if err != nil {
		return nil, err
	}
	c.meta = r
	return r, nil
}

// CreateEmbeddedLabelReader nutzt die Labels, die TFRecord, WebDataset oder
// CIFAR-10 mitliefern. Die Labels stehen erst nach Verify fest.
func (c *Context) CreateEmbeddedLabelReader() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return err
	}
	if c.meta != nil || c.metaCfg != nil {
		return ErrMetadataExists
	}
	c.metaCfg = &metadata.Config{Type: metadata.TypeEmbedded}
	return nil
}

func (c *Context) buildEmbeddedMetadata(readers []reader.Reader) error {
	labels := make(map[string]int32)
	for _, r := range readers {
		l, ok := r.(reader.Labeled)
		if !ok {
			return fmt.Errorf("%w: %s source carries no labels", ErrMetadataMismatch, c.src.kind)
		}
		maps.Copy(labels, l.Labels())
	}

	cfg := *c.metaCfg
	cfg.Labels = labels
	r, err := metadata.New(cfg)
	if err != nil {
		return err
	}
	if c.meta != nil {
		c.meta.Release()
	}
	c.meta = r
	return nil
}

// RandomBBoxCrop schaltet die box-gesteuerte Crop-Auswahl im Decoder ein.
// Boxen der Ausgabe werden auf das gewaehlte Fenster umgerechnet.
func (c *Context) RandomBBoxCrop() (*metadata.RandomBBoxCrop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return nil, err
	}
	if c.meta == nil {
		return nil, ErrNoMetadata
	}
	c.bboxCrop = metadata.NewRandomBBoxCrop(c.meta)
	return c.bboxCrop, nil
}

// ============================================================================
// Metadaten des aktuellen Batches
// ============================================================================

func (c *Context) currentSlot() (*outputSlot, error) {
	if !c.held.Load() || c.current == nil {
		return nil, ErrNoBatch
	}
	return c.current, nil
}

// Metadata gibt Labels, Boxen, Masken und Keypoints des zuletzt gelesenen Batches zurueck.
func (c *Context) Metadata() (*metadata.Batch, error) {
	s, err := c.currentSlot()
	if err != nil {
		return nil, err
	}
	if s.labels == nil {
		return nil, ErrNoMetadata
	}
	return s.labels, nil
}

// ImageNames gibt die Sample-Namen des zuletzt gelesenen Batches zurueck.
func (c *Context) ImageNames() ([]string, error) {
	s, err := c.currentSlot()
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.meta.Names), nil
}

// OriginalSizes gibt die Bildgroessen vor dem Dekodier-Skalieren zurueck.
func (c *Context) OriginalSizes() (widths, heights []uint32, err error) {
	s, err := c.currentSlot()
	if err != nil {
		return nil, nil, err
	}
	return slices.Clone(s.meta.OrigWidths), slices.Clone(s.meta.OrigHeights), nil
}
