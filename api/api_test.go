package api

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/rocal/metadata"
	"github.com/7blacky7/rocal/node"
	"github.com/7blacky7/rocal/pipeline"
	"github.com/7blacky7/rocal/reader"
	"github.com/7blacky7/rocal/tensor"
)

func writeJPEGs(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, 40, 30))
		for y := range 30 {
			for x := range 40 {
				img.Set(x, y, color.RGBA{uint8(i * 25), 90, 200, 255})
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i)))
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(f, img, nil))
		require.NoError(t, f.Close())
	}
	return dir
}

func create(t *testing.T, batch int) Handle {
	t.Helper()
	h := Create(batch, pipeline.ModeCPU, 0, 2, pipeline.WithPrefetchDepth(2))
	require.NotEqual(t, InvalidHandle, h, GetErrorMessage(InvalidHandle))
	t.Cleanup(func() { Release(h) })
	return h
}

func source(dir string, policy reader.LastBatchPolicy) pipeline.SourceOptions {
	return pipeline.SourceOptions{
		Path:            dir,
		Color:           tensor.ColorRGB24,
		MaxWidth:        40,
		MaxHeight:       30,
		LastBatchPolicy: policy,
	}
}

func TestRegistryGenerations(t *testing.T) {
	var r Registry[string]

	a := r.Add("a")
	b := r.Add("b")
	assert.Equal(t, 2, r.Len())

	v, err := r.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = r.Remove(a)
	require.NoError(t, err)
	_, err = r.Get(a)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	// Slot wird wiederverwendet, das alte Handle bleibt ungueltig
	c := r.Add("c")
	assert.Equal(t, a.index(), c.index())
	assert.NotEqual(t, a, c)
	_, err = r.Get(a)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = r.Get(InvalidHandle)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = r.Remove(a)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	var seen []string
	r.Range(func(_ Handle, v string) bool {
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []string{"c", "b"}, seen)

	assert.Equal(t, 1, r.RemoveFunc(func(v string) bool { return v == "b" }))
	_, err = r.Get(b)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, 1, r.Len())
}

func TestParseHandle(t *testing.T) {
	h := makeHandle(7, 3)
	got, err := ParseHandle(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	got, err = ParseHandle(fmt.Sprint(uint64(h)))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = ParseHandle("x:1")
	assert.Error(t, err)
}

func TestCreateFailure(t *testing.T) {
	tests := []struct {
		name    string
		batch   int
		mode    pipeline.Mode
		threads int
		want    string
	}{
		{"batch null", 0, pipeline.ModeCPU, 1, "invalid batch size"},
		{"gpu", 2, pipeline.ModeGPU, 1, "processing mode not available"},
		{"threads negativ", 2, pipeline.ModeCPU, -1, "invalid thread count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Create(tt.batch, tt.mode, 0, tt.threads)
			assert.Equal(t, InvalidHandle, h)
			assert.Contains(t, GetErrorMessage(InvalidHandle), tt.want)
			assert.Equal(t, StatusContextInvalid, GetStatus(h))
		})
	}
}

func TestEpochThroughHandles(t *testing.T) {
	h := create(t, 4)

	src := FileSource(h, source(writeJPEGs(t, 10), reader.PolicyDrop))
	require.NotEqual(t, InvalidTensor, src, GetErrorMessage(h))
	resized := Resize(h, src, false, node.ResizeOptions{Width: 300, Height: 300})
	require.NotEqual(t, InvalidTensor, resized, GetErrorMessage(h))
	angle := CreateFloatRand([]float32{0, 10, 135}, []float64{1, 1, 1})
	require.NotEqual(t, NoParam, angle)
	rotated := Rotate(h, resized, true, angle, 0, 0, node.InterpLinear)
	require.NotEqual(t, InvalidTensor, rotated, GetErrorMessage(h))
	assert.Equal(t, 300, TensorInfo(rotated).MaxWidth())

	require.Equal(t, StatusOK, Verify(h), GetErrorMessage(h))
	assert.Equal(t, 1, GetAugmentationBranchCount(h))
	assert.Equal(t, 300, GetOutputWidth(h))
	assert.Equal(t, 300, GetOutputHeight(h))
	assert.Equal(t, tensor.ColorRGB24, GetOutputColorFormat(h))

	for range 2 {
		require.Equal(t, RunOK, Run(h), GetErrorMessage(h))
	}
	outs, st := GetOutputTensors(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, 1, outs.Len())

	assert.Equal(t, RunNoMoreData, Run(h))
	assert.Equal(t, StatusOK, GetStatus(h), "Epochenende ist kein Fehler")
	assert.True(t, IsEmpty(h))
	assert.Zero(t, GetRemainingImages(h))

	require.Equal(t, StatusOK, Reset(h))
	assert.Equal(t, RunOK, Run(h))

	require.Equal(t, StatusOK, Release(h))
	assert.Equal(t, StatusContextInvalid, Release(h))
	assert.Equal(t, StatusContextInvalid, Verify(h))
	assert.Equal(t, RunContextInvalid, Run(h))
	assert.Nil(t, TensorInfo(src), "Tensor-Handles sterben mit der Pipeline")
	assert.True(t, IsEmpty(h))
}

func TestRawSourceThroughHandles(t *testing.T) {
	h := create(t, 2)
	src := RawSource(h, pipeline.SourceOptions{Color: tensor.ColorRGB24, MaxWidth: 4, MaxHeight: 4})
	require.NotEqual(t, InvalidTensor, src, GetErrorMessage(h))
	require.NotEqual(t, InvalidTensor, Copy(h, src, true), GetErrorMessage(h))

	var samples []reader.Sample
	for i := range 3 {
		px := make([]byte, 2*2*3)
		for k := range px {
			px[k] = uint8(i + 1)
		}
		samples = append(samples, reader.Sample{Name: fmt.Sprintf("r%d", i), Data: px, Width: 2, Height: 2})
	}
	require.Equal(t, StatusOK, ExternalSourceFeedInput(h, nil, samples[:2], false), GetErrorMessage(h))
	require.Equal(t, StatusOK, Verify(h), GetErrorMessage(h))

	require.Equal(t, RunOK, Run(h), GetErrorMessage(h))
	names, st := GetImageNames(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, []string{"r0", "r1"}, names)

	require.Equal(t, StatusOK, ExternalSourceFeedInput(h, nil, samples[2:], true), GetErrorMessage(h))
	require.Equal(t, RunOK, Run(h), GetErrorMessage(h))
	names, _ = GetImageNames(h)
	assert.Equal(t, []string{"r2", "r2"}, names)
	assert.Equal(t, 1, GetLastBatchPaddedSize(h))
	assert.Equal(t, RunNoMoreData, Run(h))

	// Dateiquellen nehmen keine Eingaben an
	other := create(t, 2)
	require.NotEqual(t, InvalidTensor, FileSource(other, source(writeJPEGs(t, 2), reader.PolicyFill)))
	assert.NotEqual(t, StatusOK, ExternalSourceFeedInput(other, []string{"x.jpg"}, nil, true))
}

func TestVerifyFailureIsCaptured(t *testing.T) {
	h := create(t, 2)

	assert.Equal(t, RunNotRunning, Run(h))
	assert.Equal(t, StatusRuntimeError, Verify(h))
	assert.Equal(t, StatusRuntimeError, GetStatus(h))
	assert.Contains(t, GetErrorMessage(h), "no source defined")
	assert.Contains(t, GetErrorMessage(h), "verify")
	assert.Equal(t, RunNotRunning, Run(h), "Verify ist fehlgeschlagen, Pipeline bleibt in Created")

	// Tensor einer anderen Pipeline
	other := create(t, 2)
	foreign := FileSource(other, source(writeJPEGs(t, 2), reader.PolicyFill))
	require.NotEqual(t, InvalidTensor, foreign)
	assert.Equal(t, InvalidTensor, Copy(h, foreign, true))
	assert.Contains(t, GetErrorMessage(h), "does not belong")
	assert.Equal(t, InvalidTensor, Copy(h, InvalidTensor, true))
}

func TestParameters(t *testing.T) {
	fixed := CreateIntParameter(3)
	uniform := CreateFloatUniformRand(0.5, 1.5)
	discrete := CreateIntRand([]int{0, 1}, []float64{1, 1})
	t.Cleanup(func() {
		ReleaseParameter(fixed)
		ReleaseParameter(uniform)
		ReleaseParameter(discrete)
	})

	v, st := GetIntValue(fixed)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, 3, v)

	assert.Equal(t, StatusOK, UpdateIntParameter(9, fixed))
	v, _ = GetIntValue(fixed)
	assert.Equal(t, 9, v)

	f, st := GetFloatValue(uniform)
	require.Equal(t, StatusOK, st)
	assert.GreaterOrEqual(t, f, float32(0.5))
	assert.LessOrEqual(t, f, float32(1.5))

	tests := []struct {
		name string
		st   Status
		want Status
	}{
		{"uniform ok", UpdateFloatUniformRand(1, 2, uniform), StatusOK},
		{"uniform verkehrter bereich", UpdateFloatUniformRand(2, 1, uniform), StatusUpdateParameterFailed},
		{"fester wert auf uniform", UpdateFloatParameter(1, uniform), StatusInvalidParameterType},
		{"float auf int", UpdateFloatParameter(1, fixed), StatusInvalidParameterType},
		{"diskret ok", UpdateIntRand([]int{2, 3}, []float64{1, 3}, discrete), StatusOK},
		{"diskret ohne werte", UpdateIntRand(nil, nil, discrete), StatusUpdateParameterFailed},
		{"unbekanntes handle", UpdateIntParameter(1, NoParam), StatusUpdateParameterFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st)
		})
	}

	assert.Equal(t, NoParam, CreateIntUniformRand(5, 1), "verkehrter Bereich liefert kein Handle")

	stale := CreateIntParameter(1)
	require.Equal(t, StatusOK, ReleaseParameter(stale))
	assert.Equal(t, StatusUpdateParameterFailed, UpdateIntParameter(2, stale))
	assert.Equal(t, StatusUpdateParameterFailed, ReleaseParameter(stale))

	SetSeed(1234)
	assert.Equal(t, uint64(1234), GetSeed())
}

func TestWrongParameterTypeInGraph(t *testing.T) {
	h := create(t, 2)
	src := FileSource(h, source(writeJPEGs(t, 2), reader.PolicyFill))
	require.NotEqual(t, InvalidTensor, src)

	angle := CreateIntParameter(90)
	t.Cleanup(func() { ReleaseParameter(angle) })

	assert.Equal(t, InvalidTensor, Rotate(h, src, true, angle, 0, 0, node.InterpLinear))
	assert.Equal(t, StatusInvalidParameterType, GetStatus(h))
}

const cocoJSON = `{
  "images": [
    {"id": 1, "file_name": "img_00.jpg", "width": 40, "height": 30},
    {"id": 2, "file_name": "img_01.jpg", "width": 40, "height": 30}
  ],
  "categories": [{"id": 1, "name": "a"}, {"id": 4, "name": "b"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 10, 10]},
    {"id": 2, "image_id": 1, "category_id": 4, "bbox": [5, 5, 10, 20]},
    {"id": 3, "image_id": 1, "category_id": 4, "bbox": [20, 2, 8, 8]}
  ]
}`

func TestCOCOAlignment(t *testing.T) {
	h := create(t, 2)
	src := FileSource(h, source(writeJPEGs(t, 2), reader.PolicyFill))
	require.NotEqual(t, InvalidTensor, Copy(h, src, true))

	ann := filepath.Join(t.TempDir(), "instances.json")
	require.NoError(t, os.WriteFile(ann, []byte(cocoJSON), 0o644))
	require.Equal(t, StatusOK, CreateCOCOReader(h, ann, pipeline.COCOOptions{}), GetErrorMessage(h))

	_, st := GetBoundingBoxCords(h)
	assert.Equal(t, StatusRuntimeError, st, "vor Run gibt es keinen Batch")

	require.Equal(t, StatusOK, Verify(h), GetErrorMessage(h))
	require.Equal(t, RunOK, Run(h))

	assert.Equal(t, 3, GetBoundingBoxCount(h))
	boxes, st := GetBoundingBoxCords(h)
	require.Equal(t, StatusOK, st)
	require.Len(t, boxes, 2)
	assert.Len(t, boxes[0], 3)
	assert.Empty(t, boxes[1])
	want := metadata.BoundingBox{L: 5, T: 5, R: 15, B: 25}
	if diff := cmp.Diff(want, boxes[0][1]); diff != "" {
		t.Errorf("Box weicht ab (-want +got):\n%s", diff)
	}

	labels, st := GetBoundingBoxLabels(h)
	require.Equal(t, StatusOK, st)
	require.Len(t, labels, 2)
	assert.Equal(t, []int32{1, 2, 2}, labels[0])
	assert.Empty(t, labels[1])

	first, st := GetImageLabels(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, []int32{1, -1}, first)

	names, st := GetImageNames(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, []string{"img_00.jpg", "img_01.jpg"}, names)

	w, hh, st := GetImageSizes(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, []uint32{40, 40}, w)
	assert.Equal(t, []uint32{30, 30}, hh)

	tm := GetTimingInfo(h)
	assert.Positive(t, tm.LoadTime+tm.DecodeTime, "Laden und Dekodieren wurden gemessen")
}
