package pipeline

import (
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/envconfig"
	"github.com/7blacky7/rocal/loader"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

// SourceOptions beschreibt eine Datenquelle.
type SourceOptions struct {
	Path            string
	FilePrefix      string
	Color           tensor.ColorFormat
	Shards          int
	IsOutput        bool
	Shuffle         bool
	Loop            bool
	MaxWidth        int // Footprint der dekodierten Bilder
	MaxHeight       int
	Decoder         decoder.Type
	LastBatchPolicy reader.LastBatchPolicy
}

type source struct {
	kind       reader.Type
	opts       SourceOptions
	skipDecode bool
	external   *reader.ExternalSource
	mode       reader.ExternalMode
	out        *tensor.Tensor
	isOutput   bool
}

// FileSource liest Bilddateien aus einem Verzeichnis (rekursiv, lexikalisch sortiert).
func (c *Context) FileSource(o SourceOptions) (*tensor.Tensor, error) {
	return c.addSource(&source{kind: reader.TypeFileSource, opts: o})
}

// TFRecordSource liest tf.train.Example-Records mit JPEG-kodierten Bildern.
func (c *Context) TFRecordSource(o SourceOptions) (*tensor.Tensor, error) {
	return c.addSource(&source{kind: reader.TypeTFRecord, opts: o})
}

// WebDatasetSource liest Tar-Shards im WebDataset-Format.
func (c *Context) WebDatasetSource(o SourceOptions) (*tensor.Tensor, error) {
	return c.addSource(&source{kind: reader.TypeWebDataset, opts: o})
}

// ArchiveSource liest ein SQLite-Archiv mit Schluessel/Bild-Eintraegen.
func (c *Context) ArchiveSource(o SourceOptions) (*tensor.Tensor, error) {
	return c.addSource(&source{kind: reader.TypeArchive, opts: o})
}

// Cifar10Source liest CIFAR-10-Binaerdateien. Footprint ist fest 32x32 RGB.
func (c *Context) Cifar10Source(o SourceOptions) (*tensor.Tensor, error) {
	o.MaxWidth, o.MaxHeight = reader.CifarWidth, reader.CifarHeight
	o.Color = tensor.ColorRGB24
	o.Shards = max(o.Shards, 1)
	return c.addSource(&source{kind: reader.TypeCifar10, opts: o, skipDecode: true})
}

// ExternalFileSource wird vom Aufrufer per FeedInput mit Dateinamen oder
// komprimierten Puffern befuellt.
func (c *Context) ExternalFileSource(o SourceOptions, mode reader.ExternalMode) (*tensor.Tensor, error) {
	if mode == reader.ModeRawUncompressed {
		return nil, fmt.Errorf("%w: use RawSource for decoded pixels", ErrInvalidArgument)
	}
	return c.addSource(&source{kind: reader.TypeExternalSource, opts: o, external: reader.NewExternalSource(), mode: mode})
}

// RawSource wird vom Aufrufer mit bereits dekodierten HWC-Pixeln befuellt.
func (c *Context) RawSource(o SourceOptions) (*tensor.Tensor, error) {
	s := &source{kind: reader.TypeExternalSource, opts: o, skipDecode: true, external: reader.NewExternalSource(), mode: reader.ModeRawUncompressed}
	return c.addSource(s)
}

func (c *Context) addSource(s *source) (*tensor.Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCreated(); err != nil {
		return nil, err
	}
	if c.src != nil {
		return nil, ErrSourceExists
	}

	o := s.opts
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return nil, fmt.Errorf("%w: max size %dx%d", ErrInvalidArgument, o.MaxWidth, o.MaxHeight)
	}
	if o.Shards < 0 {
		return nil, fmt.Errorf("%w: %d shards", ErrInvalidArgument, o.Shards)
	}

	n, ch := c.opts.BatchSize, o.Color.Channels()
	dims, layout := []int{n, o.MaxHeight, o.MaxWidth, ch}, tensor.LayoutNHWC
	if o.Color == tensor.ColorRGBPlanar {
		dims, layout = []int{n, ch, o.MaxHeight, o.MaxWidth}, tensor.LayoutNCHW
	}
	out, err := tensor.NewFromDims(dims, tensor.MemHost, tensor.UInt8, layout)
	if err != nil {
		return nil, err
	}
	out.Info().SetColorFormat(o.Color)
	out.Info().SetType(tensor.TypeHandle)
	if err := out.Allocate(); err != nil {
		return nil, err
	}

	if s.external != nil {
		// Externe Quellen haben genau einen Shard
		s.opts.Shards = 1
		err := s.external.Init(reader.Config{
			Type:            reader.TypeExternalSource,
			ShardCount:      1,
			BatchSize:       n,
			LastBatchPolicy: o.LastBatchPolicy,
			ExternalMode:    s.mode,
		})
		if err != nil {
			return nil, err
		}
	}

	s.out = out
	s.isOutput = o.IsOutput
	c.src = s
	c.tensors[out] = true
	return out, nil
}

// ExternalSourceFeedInput reicht Dateinamen (Dateimodus) oder Puffer an die
// externe Quelle weiter. eos markiert das Ende der Sequenz.
func (c *Context) ExternalSourceFeedInput(names []string, samples []reader.Sample, eos bool) error {
	c.mu.Lock()
	src := c.src
	state := c.state
	c.mu.Unlock()
	if state == StateReleased {
		return ErrReleased
	}
	if src == nil || src.external == nil {
		return fmt.Errorf("%w: no external source", ErrNoSource)
	}
	if src.external.Mode() == reader.ModeFileName {
		return src.external.FeedFileNames(names, eos)
	}
	return src.external.FeedData(samples, eos)
}

// buildLoaders erstellt Reader und Loader fuer jeden Shard.
// Alle Shards teilen sich einen Semaphor fuer die Decoder-Threads.
func (c *Context) buildLoaders() (*loader.Sharded, error) {
	s := c.src
	shards := max(s.opts.Shards, 1)
	threads := c.opts.Threads
	if threads == 0 {
		threads = loader.CPUThreads(shards)
	}
	sem := semaphore.NewWeighted(int64(threads * shards))

	decType := s.opts.Decoder
	var crops loader.CropWindowSource
	switch {
	case c.bboxCrop != nil:
		decType = decoder.TypeFusedCrop
		crops = c.bboxCrop
	case decType == decoder.TypeFusedCrop:
		crops = loader.NewRandomCrop()
	}

	seed := c.opts.ShuffleSeed
	if seed == 0 {
		seed = param.Seed()
	}

	var loaders []*loader.Loader
	cleanup := func() {
		for _, l := range loaders {
			l.Release()
		}
	}
	for shard := range shards {
		var r reader.Reader = s.external
		if s.external == nil {
			var err error
			r, err = reader.New(reader.Config{
				Type:            s.kind,
				Path:            s.opts.Path,
				ShardID:         shard,
				ShardCount:      shards,
				BatchSize:       c.opts.BatchSize,
				Shuffle:         s.opts.Shuffle && !envconfig.NoShuffle(),
				Loop:            s.opts.Loop,
				Seed:            seed,
				LastBatchPolicy: s.opts.LastBatchPolicy,
				FilePrefix:      s.opts.FilePrefix,
				Filter:          c.filter(),
			})
			if err != nil {
				cleanup()
				return nil, err
			}
		}

		rd, err := loader.NewReadAndDecode(r, loader.Config{
			BatchSize:   c.opts.BatchSize,
			DecoderType: decType,
			DeviceID:    c.opts.DeviceID,
			SkipDecode:  s.skipDecode,
			CropWindows: crops,
		}, sem)
		if err != nil {
			r.Release()
			cleanup()
			return nil, err
		}
		l, err := loader.New(rd, c.opts.PrefetchDepth, s.opts.MaxWidth, s.opts.MaxHeight, s.opts.Color)
		if err != nil {
			rd.Release()
			r.Release()
			cleanup()
			return nil, err
		}
		loaders = append(loaders, l)
	}
	return loader.NewSharded(loaders...)
}

// filter schraenkt die Quelle auf Samples mit Metadaten ein.
func (c *Context) filter() reader.Filter {
	if c.meta == nil {
		return nil
	}
	return c.meta
}
