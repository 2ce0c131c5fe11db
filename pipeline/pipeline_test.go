package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/rocal/graph"
	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/param"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

// writeJPEGs legt n einfarbige JPEGs (64x48) an: img_00.jpg, img_01.jpg, ...
func writeJPEGs(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		writeJPEG(t, filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i)), 64, 48, uint8(i*20))
	}
	return dir
}

func writeJPEG(t *testing.T, path string, w, h int, v uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{v, 128, 255 - v, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
}

func newContext(t *testing.T, batch int) *Context {
	t.Helper()
	c, err := New(WithBatchSize(batch), WithThreads(2), WithPrefetchDepth(2), WithSeed(7))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func fileSource(t *testing.T, c *Context, dir string, policy reader.LastBatchPolicy) *tensor.Tensor {
	t.Helper()
	src, err := c.FileSource(SourceOptions{
		Path:            dir,
		Color:           tensor.ColorRGB24,
		MaxWidth:        64,
		MaxHeight:       48,
		LastBatchPolicy: policy,
	})
	require.NoError(t, err)
	return src
}

// drain ruft Run bis zum Epochenende auf und zaehlt die Batches.
func drain(t *testing.T, c *Context) int {
	t.Helper()
	n := 0
	for {
		err := c.Run(context.Background())
		if errors.Is(err, ErrNoMoreData) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func TestResizeRotateEpoch(t *testing.T) {
	c := newContext(t, 4)
	src := fileSource(t, c, writeJPEGs(t, 10), reader.PolicyDrop)

	resized, err := c.Resize(src, false, node.ResizeOptions{Width: 300, Height: 300})
	require.NoError(t, err)
	angle, err := param.NewDiscrete([]float32{0, 10, 135}, []float64{1, 1, 1})
	require.NoError(t, err)
	rotated, err := c.Rotate(resized, true, angle, 0, 0, node.InterpLinear)
	require.NoError(t, err)
	assert.Equal(t, 300, rotated.Info().MaxWidth())

	require.NoError(t, c.Verify())
	assert.Equal(t, StateVerified, c.State())
	assert.Equal(t, 1, c.AugmentationBranchCount())
	assert.Equal(t, 300, c.OutputWidth())
	assert.Equal(t, 300, c.OutputHeight())
	assert.Equal(t, tensor.ColorRGB24, c.OutputColorFormat())

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateRunning, c.State())

	outs, err := c.OutputTensors()
	require.NoError(t, err)
	require.Equal(t, 1, outs.Len())
	assert.Equal(t, []int{4, 300, 300, 3}, outs.At(0).Info().Dims())

	names, err := c.ImageNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"img_00.jpg", "img_01.jpg", "img_02.jpg", "img_03.jpg"}, names)

	// zweiter Batch, danach Epochenende (10 Bilder, DROP)
	assert.Equal(t, 1, drain(t, c))
	assert.ErrorIs(t, c.Run(context.Background()), ErrNoMoreData, "Epochenende bleibt stabil")
	assert.Equal(t, 0, c.Remaining())
	assert.True(t, c.IsEmpty())
}

func TestResetRepeatsEpoch(t *testing.T) {
	c := newContext(t, 4)
	src := fileSource(t, c, writeJPEGs(t, 9), reader.PolicyDrop)
	_, err := c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())

	first := drain(t, c)
	assert.Equal(t, 2, first)

	require.NoError(t, c.Reset())
	assert.Equal(t, StateVerified, c.State())
	assert.Equal(t, first, drain(t, c), "Reset liefert dieselbe Batch-Anzahl")
}

// ============================================================================
// Externe Quelle
// ============================================================================

func externalSource(t *testing.T, c *Context, policy reader.LastBatchPolicy) *tensor.Tensor {
	t.Helper()
	src, err := c.ExternalFileSource(SourceOptions{
		Color:           tensor.ColorRGB24,
		MaxWidth:        64,
		MaxHeight:       48,
		LastBatchPolicy: policy,
	}, reader.ModeFileName)
	require.NoError(t, err)
	return src
}

func jpegPaths(dir string, from, to int) []string {
	var names []string
	for i := from; i < to; i++ {
		names = append(names, filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i)))
	}
	return names
}

// runWithin ist Run mit Zeitlimit, damit ein haengender Loader den Test nicht blockiert.
func runWithin(t *testing.T, c *Context) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "Run blockiert")
	return err
}

func drainWithin(t *testing.T, c *Context) int {
	t.Helper()
	n := 0
	for {
		err := runWithin(t, c)
		if errors.Is(err, ErrNoMoreData) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func TestExternalSourceFeedInChunks(t *testing.T) {
	dir := writeJPEGs(t, 5)
	c := newContext(t, 2)
	src := externalSource(t, c, reader.PolicyFill)
	_, err := c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())

	require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 0, 2), nil, false))
	require.NoError(t, runWithin(t, c))
	names, err := c.ImageNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"img_00.jpg", "img_01.jpg"}, names)

	require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 2, 5), nil, true))
	require.NoError(t, runWithin(t, c))
	require.NoError(t, runWithin(t, c))
	names, err = c.ImageNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"img_04.jpg", "img_04.jpg"}, names)
	assert.Equal(t, 1, c.LastBatchPaddedSize())

	assert.ErrorIs(t, runWithin(t, c), ErrNoMoreData)
}

func TestExternalSourceLastBatchPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  reader.LastBatchPolicy
		batches int
		padded  int
	}{
		{"drop verwirft den Rest", reader.PolicyDrop, 1, 0},
		{"fill fuellt auf", reader.PolicyFill, 2, 3},
	}

	dir := writeJPEGs(t, 5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContext(t, 4)
			src := externalSource(t, c, tt.policy)
			_, err := c.Copy(src, true)
			require.NoError(t, err)
			require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 0, 5), nil, true))
			require.NoError(t, c.Verify())

			assert.Equal(t, tt.batches, drainWithin(t, c))
			assert.Equal(t, tt.padded, c.LastBatchPaddedSize())
		})
	}
}

func TestExternalSourceVerifyAfterFailedVerify(t *testing.T) {
	dir := writeJPEGs(t, 4)
	c := newContext(t, 2)
	src := externalSource(t, c, reader.PolicyFill)

	require.ErrorIs(t, c.Verify(), graph.ErrNoOutput)
	assert.Equal(t, StateCreated, c.State())

	_, err := c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())
	require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 0, 4), nil, true))
	assert.Equal(t, 2, drainWithin(t, c))
}

func TestExternalSourceResetAndRefeed(t *testing.T) {
	dir := writeJPEGs(t, 6)
	c := newContext(t, 2)
	src := externalSource(t, c, reader.PolicyDrop)
	_, err := c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())

	// Ein ueberzaehliges Sample wird unter DROP mit der Epoche verworfen
	require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 0, 3), nil, true))
	assert.Equal(t, 1, drainWithin(t, c))

	require.NoError(t, c.Reset())
	require.NoError(t, c.ExternalSourceFeedInput(jpegPaths(dir, 2, 6), nil, true))
	require.NoError(t, runWithin(t, c))
	names, err := c.ImageNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"img_02.jpg", "img_03.jpg"}, names)
	assert.Equal(t, 1, drainWithin(t, c))
}

func TestPartialBatchClearsPaddedROI(t *testing.T) {
	c := newContext(t, 4)
	src := fileSource(t, c, writeJPEGs(t, 5), reader.PolicyPartial)
	_, err := c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())

	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Run(context.Background()))

	outs, err := c.OutputTensors()
	require.NoError(t, err)
	roi := outs.At(0).ROI()
	assert.Equal(t, uint32(64), roi.Width(0))
	for i := 1; i < 4; i++ {
		assert.Zero(t, roi.Width(i), "Fuellsample %d", i)
		assert.Zero(t, roi.Height(i), "Fuellsample %d", i)
	}
	assert.Equal(t, 3, c.LastBatchPaddedSize())
	assert.ErrorIs(t, c.Run(context.Background()), ErrNoMoreData)
}

func TestLifecycleErrors(t *testing.T) {
	c := newContext(t, 2)

	assert.ErrorIs(t, c.Run(context.Background()), ErrNotRunning)
	assert.ErrorIs(t, c.Reset(), ErrNotRunning)
	assert.ErrorIs(t, c.Verify(), ErrNoSource)
	assert.Equal(t, StateCreated, c.State(), "fehlgeschlagenes Verify bleibt in Created")

	_, err := c.OutputTensors()
	assert.ErrorIs(t, err, ErrNoBatch)
	_, err = c.Metadata()
	assert.ErrorIs(t, err, ErrNoBatch)

	src := fileSource(t, c, writeJPEGs(t, 2), reader.PolicyFill)
	_, err = c.FileSource(SourceOptions{Path: t.TempDir(), MaxWidth: 8, MaxHeight: 8})
	assert.ErrorIs(t, err, ErrSourceExists)

	other := newContext(t, 2)
	_, err = other.Copy(src, true)
	assert.ErrorIs(t, err, ErrForeignTensor)

	_, err = c.Copy(src, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify())
	assert.ErrorIs(t, c.Verify(), ErrAlreadyVerified)
	_, err = c.Copy(src, true)
	assert.ErrorIs(t, err, ErrAlreadyVerified, "Graph ist nach Verify fest")

	require.NoError(t, c.Release())
	assert.Equal(t, StateReleased, c.State())
	assert.ErrorIs(t, c.Release(), ErrReleased)
	assert.ErrorIs(t, c.Run(context.Background()), ErrReleased)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{"prefetch zu klein", []Option{WithPrefetchDepth(1)}, ErrInvalidDepth},
		{"gpu", []Option{WithDevice(ModeGPU, 0)}, ErrInvalidMode},
		{"geraetespeicher", []Option{WithOutputMemType(tensor.MemDevice)}, tensor.ErrUnsupportedMemType},
		{"negative threads ignoriert", []Option{WithThreads(-1)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			o.PrefetchDepth = 3
			o.Apply(tt.opts...)
			err := o.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

const pipelineCOCO = `{
  "images": [
    {"id": 1, "file_name": "img_00.jpg", "width": 64, "height": 48},
    {"id": 2, "file_name": "img_01.jpg", "width": 64, "height": 48}
  ],
  "categories": [{"id": 3, "name": "car"}, {"id": 8, "name": "tree"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 3, "bbox": [1, 2, 10, 10]},
    {"id": 2, "image_id": 1, "category_id": 8, "bbox": [20, 5, 8, 30]},
    {"id": 3, "image_id": 1, "category_id": 3, "bbox": [40, 10, 12, 12]}
  ]
}`

func TestCOCOMetadataFollowsBatch(t *testing.T) {
	c := newContext(t, 2)
	src := fileSource(t, c, writeJPEGs(t, 2), reader.PolicyFill)
	_, err := c.Copy(src, true)
	require.NoError(t, err)

	ann := filepath.Join(t.TempDir(), "instances.json")
	require.NoError(t, os.WriteFile(ann, []byte(pipelineCOCO), 0o644))
	_, err = c.CreateCOCOReader(ann, COCOOptions{})
	require.NoError(t, err)
	_, err = c.CreateLabelReader(ann)
	assert.ErrorIs(t, err, ErrMetadataExists)

	require.NoError(t, c.Verify())
	require.NoError(t, c.Run(context.Background()))

	b, err := c.Metadata()
	require.NoError(t, err)
	require.Equal(t, 2, b.Len())
	assert.Len(t, b.Boxes[0], 3)
	assert.Empty(t, b.Boxes[1])
	if diff := cmp.Diff([]int32{1, 2, 1}, b.Labels[0]); diff != "" {
		t.Errorf("Labels weichen ab (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, b.BoundingBoxCount())

	w, h, err := c.OriginalSizes()
	require.NoError(t, err)
	assert.Equal(t, []uint32{64, 64}, w)
	assert.Equal(t, []uint32{48, 48}, h)
}

func TestRandomBBoxCropNeedsMetadata(t *testing.T) {
	c := newContext(t, 2)
	_, err := c.RandomBBoxCrop()
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestToTensorAndTiming(t *testing.T) {
	c := newContext(t, 2)
	src := fileSource(t, c, writeJPEGs(t, 4), reader.PolicyDrop)
	_, err := c.CenterCrop(src, true, 32, 32)
	require.NoError(t, err)
	require.NoError(t, c.Verify())
	require.NoError(t, c.Run(context.Background()))

	outs, err := c.OutputTensors()
	require.NoError(t, err)
	opts := tensor.DefaultConvertOptions()
	dst := make([]byte, tensor.ConvertedSize(outs.At(0).Info(), opts))
	require.NoError(t, c.ToTensor(0, dst, opts))
	assert.ErrorIs(t, c.ToTensor(1, dst, opts), ErrInvalidArgument)

	raw := make([]byte, outs.At(0).Info().DataSize())
	require.NoError(t, c.CopyData(0, raw, tensor.MemHost))

	assert.Equal(t, 1, drain(t, c))

	tm := c.Timing()
	assert.Equal(t, 2, tm.Batches)
	assert.GreaterOrEqual(t, tm.BatchMax, tm.BatchMean)

	report := tm.Report()
	assert.Equal(t, 7, report.Len())
	assert.Equal(t, "load", report.Oldest().Key)
}
