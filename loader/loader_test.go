package loader

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/7blacky7/rocal/decoder"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

// createPNGBytes erzeugt ein einfarbiges PNG
func createPNGBytes(w, h int, c color.Color) []byte {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgba.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, rgba)
	return buf.Bytes()
}

// writeDataset legt gueltige PNGs und (optional) kaputte .jpg-Dateien an
func writeDataset(t *testing.T, valid int, corrupt ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i := range valid {
		name := filepath.Join(dir, string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(name, createPNGBytes(8+i, 6, color.RGBA{uint8(i * 10), 0, 0, 255}), 0o644))
	}
	for _, c := range corrupt {
		require.NoError(t, os.WriteFile(filepath.Join(dir, c), []byte("definitely not an image"), 0o644))
	}
	return dir
}

func newFileReader(t *testing.T, dir string, batch int, policy reader.LastBatchPolicy) reader.Reader {
	t.Helper()
	r, err := reader.New(reader.Config{
		Type:            reader.TypeFileSource,
		Path:            dir,
		ShardCount:      1,
		BatchSize:       batch,
		LastBatchPolicy: policy,
	})
	require.NoError(t, err)
	return r
}

func newReadAndDecode(t *testing.T, r reader.Reader, batch int) *ReadAndDecode {
	t.Helper()
	rd, err := NewReadAndDecode(r, Config{BatchSize: batch}, semaphore.NewWeighted(2))
	require.NoError(t, err)
	return rd
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		failed []bool
		i      int
		want   int
		ok     bool
	}{
		{"letzter ok", []bool{true, false, false, false}, 0, 3, true},
		{"letzter kaputt", []bool{false, false, true, true}, 3, 1, true},
		{"nur einer ok", []bool{true, false, true}, 2, 1, true},
		{"alle kaputt", []bool{true, true, true}, 1, 0, false},
		{"eigener slot zaehlt nicht", []bool{false}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Substitute(tt.failed, tt.i)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("Substitute() = %d, %v, erwartet %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// Mindestens ein gueltiges Sample: der Batch ist vollstaendig, das kaputte
// Sample ist durch das letzte gueltige ersetzt.
func TestLoadSubstitutesCorruptSample(t *testing.T) {
	dir := writeDataset(t, 3, "d.jpg")
	rd := newReadAndDecode(t, newFileReader(t, dir, 4, reader.PolicyDrop), 4)

	b := NewBatch(4, 16, 16, tensor.ColorRGB24)
	require.NoError(t, rd.Load(t.Context(), b))

	assert.Equal(t, []string{"a.png", "b.png", "c.png", "c.png"}, b.Names)
	assert.Equal(t, []uint32{8, 9, 10, 10}, b.Widths)
	assert.Equal(t, []uint32{6, 6, 6, 6}, b.Heights)
	assert.Equal(t, b.Sample(2), b.Sample(3))
	assert.Equal(t, 1, rd.Timing().Batches)
}

func TestLoadAllCorruptIsFatal(t *testing.T) {
	dir := writeDataset(t, 0, "a.jpg", "b.jpg")
	rd := newReadAndDecode(t, newFileReader(t, dir, 2, reader.PolicyDrop), 2)

	err := rd.Load(t.Context(), NewBatch(2, 16, 16, tensor.ColorRGB24))
	assert.ErrorIs(t, err, ErrAllFailed)
}

func TestLoadInvalidBatch(t *testing.T) {
	dir := writeDataset(t, 2)
	rd := newReadAndDecode(t, newFileReader(t, dir, 2, reader.PolicyDrop), 2)

	assert.ErrorIs(t, rd.Load(t.Context(), nil), ErrInvalidBatch)
	assert.ErrorIs(t, rd.Load(t.Context(), NewBatch(2, 0, 16, tensor.ColorRGB24)), ErrInvalidBatch)
	assert.ErrorIs(t, rd.Load(t.Context(), NewBatch(3, 16, 16, tensor.ColorRGB24)), ErrInvalidBatch)
}

func TestLoadScalesIntoFootprint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.png"), createPNGBytes(40, 20, color.White), 0o644))
	rd := newReadAndDecode(t, newFileReader(t, dir, 1, reader.PolicyDrop), 1)

	b := NewBatch(1, 10, 10, tensor.ColorU8)
	require.NoError(t, rd.Load(t.Context(), b))
	assert.Equal(t, []uint32{10}, b.Widths)
	assert.Equal(t, []uint32{5}, b.Heights)
	assert.Equal(t, []uint32{40}, b.OrigWidths)
	assert.Equal(t, []uint32{20}, b.OrigHeights)
}

type fixedWindow struct{ names []string }

func (f *fixedWindow) CropWindow(name string, w, h int) (decoder.CropWindow, bool) {
	f.names = append(f.names, name)
	return decoder.CropWindow{X: 0, Y: 0, W: w / 2, H: h / 2}, true
}

func TestLoadFusedCropWindows(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.png"), createPNGBytes(20, 10, color.White), 0o644))
	r := newFileReader(t, dir, 1, reader.PolicyDrop)

	src := &fixedWindow{}
	rd, err := NewReadAndDecode(r, Config{BatchSize: 1, DecoderType: decoder.TypeFusedCrop, CropWindows: src}, nil)
	require.NoError(t, err)

	b := NewBatch(1, 32, 32, tensor.ColorRGB24)
	require.NoError(t, rd.Load(t.Context(), b))
	assert.Equal(t, []string{"x.png"}, src.names)
	assert.Equal(t, uint32(10), b.Widths[0])
	assert.Equal(t, uint32(5), b.Heights[0])
	assert.Equal(t, decoder.CropWindow{W: 10, H: 5}, b.Crops[0])
}

func TestLoadSkipDecode(t *testing.T) {
	ext := reader.NewExternalSource()
	require.NoError(t, ext.Init(reader.Config{
		Type:         reader.TypeExternalSource,
		ShardCount:   1,
		BatchSize:    2,
		ExternalMode: reader.ModeRawUncompressed,
	}))
	require.NoError(t, ext.FeedData([]reader.Sample{
		{Name: "p", Data: []byte{1, 2, 3, 4, 5, 6}, Width: 2, Height: 1},
		{Name: "q", Data: []byte{9}, Width: 1, Height: 1},
	}, true))

	rd, err := NewReadAndDecode(ext, Config{BatchSize: 2, SkipDecode: true}, nil)
	require.NoError(t, err)

	b := NewBatch(2, 2, 2, tensor.ColorRGB24)
	require.NoError(t, rd.Load(t.Context(), b))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Sample(0)[:6])
	assert.Equal(t, []byte{9, 9, 9}, b.Sample(1)[:3])
	assert.Equal(t, []uint32{2, 1}, b.Widths)
}

func newExternal(t *testing.T, batch int, policy reader.LastBatchPolicy) *reader.ExternalSource {
	t.Helper()
	ext := reader.NewExternalSource()
	require.NoError(t, ext.Init(reader.Config{
		Type:            reader.TypeExternalSource,
		ShardCount:      1,
		BatchSize:       batch,
		LastBatchPolicy: policy,
		ExternalMode:    reader.ModeRawCompressed,
	}))
	return ext
}

// Ein leeres Sample am Ende darf einen begonnenen Batch nicht als Epochenende
// verschlucken.
func TestLoadShortBatchIsNotEndOfEpoch(t *testing.T) {
	ext := newExternal(t, 2, reader.PolicyFill)
	require.NoError(t, ext.FeedData([]reader.Sample{
		{Name: "a", Data: createPNGBytes(4, 4, color.White)},
		{Name: "leer"},
	}, true))
	rd := newReadAndDecode(t, ext, 2)

	err := rd.Load(t.Context(), NewBatch(2, 8, 8, tensor.ColorRGB24))
	require.ErrorIs(t, err, ErrShortBatch)
	assert.NotErrorIs(t, err, reader.ErrNoMoreData)
}

func newOutput(t *testing.T, batch, w, h int) *tensor.Tensor {
	t.Helper()
	out, err := tensor.NewFromDims([]int{batch, h, w, 3}, tensor.MemHost, tensor.UInt8, tensor.LayoutNHWC)
	require.NoError(t, err)
	out.Info().SetType(tensor.TypeHandle)
	require.NoError(t, out.Allocate())
	return out
}

func TestLoaderEpochAndReset(t *testing.T) {
	dir := writeDataset(t, 10)
	r := newFileReader(t, dir, 4, reader.PolicyDrop)
	l, err := New(newReadAndDecode(t, r, 4), 2, 16, 16, tensor.ColorRGB24)
	require.NoError(t, err)
	defer l.Release()

	out := newOutput(t, 4, 16, 16)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, err = l.Next(ctx, out)
	assert.ErrorIs(t, err, ErrNotRunning)

	l.Start()
	epoch := func() int {
		n := 0
		for {
			meta, err := l.Next(ctx, out)
			if err != nil {
				require.ErrorIs(t, err, reader.ErrNoMoreData)
				return n
			}
			require.Len(t, meta.Names, 4)
			assert.Equal(t, uint32(6), out.ROI().Height(0))
			n++
		}
	}

	assert.Equal(t, 2, epoch())
	assert.Equal(t, 0, l.Remaining())

	require.NoError(t, l.Reset())
	assert.Equal(t, 2, epoch())
}

func TestLoaderPropagatesFatalError(t *testing.T) {
	dir := writeDataset(t, 0, "a.jpg")
	r := newFileReader(t, dir, 1, reader.PolicyDrop)
	l, err := New(newReadAndDecode(t, r, 1), 2, 8, 8, tensor.ColorRGB24)
	require.NoError(t, err)
	defer l.Release()

	l.Start()
	_, err = l.Next(t.Context(), newOutput(t, 1, 8, 8))
	assert.ErrorIs(t, err, ErrAllFailed)
}

// Ein freigegebener Reader beendet den Loader mit Fehler statt Next
// blockieren zu lassen.
func TestLoaderReleasedReaderClosesRing(t *testing.T) {
	ext := newExternal(t, 1, reader.PolicyFill)
	l, err := New(newReadAndDecode(t, ext, 1), 2, 8, 8, tensor.ColorRGB24)
	require.NoError(t, err)
	defer l.Release()

	ext.Unblock()
	l.Start()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err = l.Next(ctx, newOutput(t, 1, 8, 8))
	assert.ErrorIs(t, err, reader.ErrReleased)
}

func TestLoaderDiscardKeepsReader(t *testing.T) {
	ext := newExternal(t, 1, reader.PolicyFill)
	first, err := New(newReadAndDecode(t, ext, 1), 2, 8, 8, tensor.ColorRGB24)
	require.NoError(t, err)
	first.Discard()

	l, err := New(newReadAndDecode(t, ext, 1), 2, 8, 8, tensor.ColorRGB24)
	require.NoError(t, err)
	defer l.Release()
	require.NoError(t, ext.FeedData([]reader.Sample{{Name: "a", Data: createPNGBytes(4, 4, color.White)}}, true))
	l.Start()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	out := newOutput(t, 1, 8, 8)
	meta, err := l.Next(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, meta.Names)

	_, err = l.Next(ctx, out)
	assert.ErrorIs(t, err, reader.ErrNoMoreData)
}

func TestShardedRoundRobin(t *testing.T) {
	dir := writeDataset(t, 8)
	sem := semaphore.NewWeighted(int64(CPUThreads(2)))

	var loaders []*Loader
	for shard := range 2 {
		r, err := reader.New(reader.Config{
			Type:            reader.TypeFileSource,
			Path:            dir,
			ShardID:         shard,
			ShardCount:      2,
			BatchSize:       2,
			LastBatchPolicy: reader.PolicyDrop,
		})
		require.NoError(t, err)
		rd, err := NewReadAndDecode(r, Config{BatchSize: 2}, sem)
		require.NoError(t, err)
		l, err := New(rd, 2, 16, 16, tensor.ColorRGB24)
		require.NoError(t, err)
		loaders = append(loaders, l)
	}

	s, err := NewSharded(loaders...)
	require.NoError(t, err)
	defer s.Release()
	s.Start()

	out := newOutput(t, 2, 16, 16)
	var names []string
	for {
		meta, err := s.Next(t.Context(), out)
		if err != nil {
			require.ErrorIs(t, err, reader.ErrNoMoreData)
			break
		}
		names = append(names, meta.Names...)
	}
	// Shard 0 liefert a,c; Shard 1 liefert b,d; reihum
	assert.Equal(t, []string{"a.png", "c.png", "b.png", "d.png", "e.png", "g.png", "f.png", "h.png"}, names)
	assert.Equal(t, 4, s.Timing().Batches)
}

func TestRandomCropWithinBounds(t *testing.T) {
	c := NewRandomCrop()
	for range 100 {
		w, ok := c.CropWindow("x", 64, 48)
		require.True(t, ok)
		assert.True(t, w.W > 0 && w.H > 0)
		assert.LessOrEqual(t, w.X+w.W, 64)
		assert.LessOrEqual(t, w.Y+w.H, 48)
	}
	_, ok := c.CropWindow("x", 0, 10)
	assert.False(t, ok)
}

func TestCPUThreads(t *testing.T) {
	assert.GreaterOrEqual(t, CPUThreads(1), 2)
	assert.Equal(t, 2, CPUThreads(1<<20))
	assert.Equal(t, CPUThreads(1), CPUThreads(0))
}
