package reader

import (
	"archive/tar"
	"bytes"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
// Hilfsfunktionen
// ============================================================================

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readAll(t *testing.T, r Reader) []string {
	t.Helper()
	var ids []string
	for r.Count() > 0 {
		size, err := r.Open()
		require.NoError(t, err)
		buf := make([]byte, size)
		_, err = r.Read(buf)
		require.NoError(t, err)
		r.Close()
		ids = append(ids, r.ID())
	}
	return ids
}

func entries(n int) []entry {
	out := make([]entry, n)
	for i := range out {
		out[i] = entry{id: string(rune('a' + i)), ref: i}
	}
	return out
}

type allow map[string]bool

func (a allow) Exists(name string) bool { return a[name] }

// ============================================================================
// cursor
// ============================================================================

func TestCursorSharding(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		shard   int
		shards  int
		batch   int
		policy  LastBatchPolicy
		size    int
		lastPad int
	}{
		{"ein_shard_fill", 10, 0, 1, 4, PolicyFill, 12, 2},
		{"ein_shard_drop", 10, 0, 1, 4, PolicyDrop, 10, 0},
		{"ein_shard_partial", 10, 0, 1, 4, PolicyPartial, 12, 2},
		{"drei_shards_voll", 10, 0, 3, 2, PolicyFill, 4, 0},
		{"drei_shards_aufgefuellt", 10, 2, 3, 2, PolicyFill, 4, 0},
		{"drei_shards_batch3", 10, 1, 3, 3, PolicyFill, 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c cursor
			cfg := Config{ShardID: tt.shard, ShardCount: tt.shards, BatchSize: tt.batch, LastBatchPolicy: tt.policy}
			require.NoError(t, c.init(entries(tt.items), cfg))
			assert.Equal(t, tt.size, c.size())
			assert.Equal(t, tt.lastPad, c.lastPad)
			assert.Equal(t, tt.size, c.count())
		})
	}
}

func TestCursorInvalidConfig(t *testing.T) {
	var c cursor
	assert.ErrorIs(t, c.init(entries(3), Config{ShardCount: 1}), ErrInvalidBatch)
	assert.ErrorIs(t, c.init(entries(3), Config{ShardID: 2, ShardCount: 2, BatchSize: 1}), ErrInvalidShard)
	assert.ErrorIs(t, c.init(nil, Config{ShardCount: 1, BatchSize: 1}), ErrEmptySource)
}

func TestCursorLoop(t *testing.T) {
	var c cursor
	require.NoError(t, c.init(entries(3), Config{ShardCount: 1, BatchSize: 1, Loop: true}))
	for range 7 {
		_, err := c.next()
		require.NoError(t, err)
		assert.Equal(t, 3, c.count())
	}
}

func TestCursorResetKeepsCount(t *testing.T) {
	var c cursor
	require.NoError(t, c.init(entries(9), Config{ShardCount: 1, BatchSize: 2, Shuffle: true, Seed: 5}))

	epoch := func() []string {
		var ids []string
		for c.count() > 0 {
			e, err := c.next()
			require.NoError(t, err)
			ids = append(ids, e.id)
		}
		_, err := c.next()
		assert.ErrorIs(t, err, ErrNoMoreData)
		return ids
	}

	first := epoch()
	c.reset()
	second := epoch()
	assert.Len(t, second, len(first))
	assert.ElementsMatch(t, first[:9], second[:9])
}

// ============================================================================
// FileSource
// ============================================================================

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.jpg":         "aaa",
		"sub/b.jpg":     "bb",
		"sub/c.jpg":     "c",
		"empty.jpg":     "",
		".hidden.jpg":   "x",
		".git/config":   "x",
		"sub/d.jpg":     "dddd",
	})

	r, err := New(Config{Type: TypeFileSource, Path: dir, ShardCount: 1, BatchSize: 2, LastBatchPolicy: PolicyDrop})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, 4, r.Count())
	size, err := r.Open()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(buf[:n]))
	assert.Equal(t, "a.jpg", r.ID())
	r.Close()

	assert.Equal(t, []string{"b.jpg", "c.jpg", "d.jpg"}, readAll(t, r))
	assert.Equal(t, 0, r.Count())

	require.NoError(t, r.Reset())
	assert.Equal(t, 4, r.Count())
}

func TestFileSourceFilterAndPadding(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"1.jpg": "1", "2.jpg": "2", "3.jpg": "3"})

	r, err := New(Config{Type: TypeFileSource, Path: dir, ShardCount: 1, BatchSize: 4, Filter: allow{"1.jpg": true, "3.jpg": true}})
	require.NoError(t, err)
	defer r.Release()

	ids := readAll(t, r)
	assert.Equal(t, []string{"1.jpg", "3.jpg", "3.jpg", "3.jpg"}, ids)
	assert.Equal(t, 2, r.LastBatchPaddedSize())
}

func TestFileSourceEmptyDir(t *testing.T) {
	_, err := New(Config{Type: TypeFileSource, Path: t.TempDir(), ShardCount: 1, BatchSize: 1})
	var fe *FactoryError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "init", fe.Op)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestFactoryUnknownType(t *testing.T) {
	_, err := New(Config{Type: Type(42), ShardCount: 1, BatchSize: 1})
	assert.ErrorIs(t, err, ErrUnknownType)

	typ, err := ParseType("TFRecord")
	require.NoError(t, err)
	assert.Equal(t, TypeTFRecord, typ)
	assert.True(t, Has(TypeCifar10))

	_, err = ParseType("tfrecords")
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), `did you mean "tfrecord"`)
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []LastBatchPolicy{PolicyFill, PolicyDrop, PolicyPartial} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParsePolicy("DROP")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, got)

	_, err = ParsePolicy("pad")
	assert.Error(t, err)
}

// ============================================================================
// ExternalSource
// ============================================================================

func newExternal(t *testing.T, mode ExternalMode, batch int) *ExternalSource {
	t.Helper()
	r, err := New(Config{Type: TypeExternalSource, ShardCount: 1, BatchSize: batch, ExternalMode: mode})
	require.NoError(t, err)
	return r.(*ExternalSource)
}

func TestExternalSourceCountNeedsEOSAndDrain(t *testing.T) {
	r := newExternal(t, ModeRawCompressed, 2)

	assert.Equal(t, 2, r.Count(), "ohne EOS nie 0")
	require.NoError(t, r.FeedData([]Sample{{Name: "a", Data: []byte{1}}, {Name: "b", Data: []byte{2}}}, true))
	assert.Equal(t, 2, r.Count(), "EOS gesetzt, Queue aber nicht leer")

	for range 2 {
		_, err := r.Open()
		require.NoError(t, err)
	}
	assert.Equal(t, 0, r.Count())

	require.NoError(t, r.Reset())
	assert.Equal(t, 2, r.Count())
}

func TestExternalSourceBlockingOpen(t *testing.T) {
	r := newExternal(t, ModeRawCompressed, 1)

	done := make(chan string)
	go func() {
		if _, err := r.Open(); err != nil {
			done <- err.Error()
			return
		}
		buf := make([]byte, 3)
		n, _ := r.Read(buf)
		done <- string(buf[:n])
	}()

	select {
	case <-done:
		t.Fatal("Open darf bei leerer Queue nicht zurueckkehren")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, r.FeedData([]Sample{{Name: "x", Data: []byte("abc")}}, false))
	select {
	case got := <-done:
		assert.Equal(t, "abc", got)
	case <-time.After(2 * time.Second):
		t.Fatal("Open blieb nach FeedData blockiert")
	}
}

func TestExternalSourceUnblock(t *testing.T) {
	r := newExternal(t, ModeFileName, 1)

	var wg sync.WaitGroup
	var openErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, openErr = r.Open()
	}()
	time.Sleep(20 * time.Millisecond)
	r.Unblock()
	wg.Wait()
	assert.ErrorIs(t, openErr, ErrReleased)
}

func TestExternalSourcePadsLastBatch(t *testing.T) {
	r := newExternal(t, ModeRawCompressed, 4)
	require.NoError(t, r.FeedData([]Sample{
		{Name: "a", Data: []byte{1}}, {Name: "b", Data: []byte{2}}, {Name: "c", Data: []byte{3}},
	}, true))

	var ids []string
	var padded []bool
	for range 4 {
		_, err := r.Open()
		require.NoError(t, err)
		ids = append(ids, r.ID())
		padded = append(padded, r.CurrentIsPadding())
	}
	assert.Equal(t, []string{"a", "b", "c", "c"}, ids)
	assert.Equal(t, []bool{false, false, false, true}, padded)
	assert.Equal(t, 1, r.LastBatchPaddedSize())
	assert.Equal(t, 0, r.Count())

	_, err := r.Open()
	assert.ErrorIs(t, err, ErrNoMoreData)
}

func TestExternalSourceDropsIncompleteTail(t *testing.T) {
	r, err := New(Config{Type: TypeExternalSource, ShardCount: 1, BatchSize: 4, LastBatchPolicy: PolicyDrop, ExternalMode: ModeRawCompressed})
	require.NoError(t, err)
	ext := r.(*ExternalSource)

	var samples []Sample
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		samples = append(samples, Sample{Name: name, Data: []byte(name)})
	}
	require.NoError(t, ext.FeedData(samples, true))

	var ids []string
	for range 4 {
		_, err := ext.Open()
		require.NoError(t, err)
		ids = append(ids, ext.ID())
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, 0, ext.Count(), "ein unvollstaendiger Rest zaehlt unter DROP nicht")

	_, err = ext.Open()
	assert.ErrorIs(t, err, ErrNoMoreData)
	assert.Equal(t, 0, ext.LastBatchPaddedSize())

	// Nach Reset beginnt die neue Sequenz ohne den verworfenen Rest
	require.NoError(t, ext.Reset())
	require.NoError(t, ext.FeedData([]Sample{{Name: "f", Data: []byte("f")}}, true))
	assert.Equal(t, 0, ext.Count())
}

func TestExternalSourceDropWaitsForFullBatch(t *testing.T) {
	r, err := New(Config{Type: TypeExternalSource, ShardCount: 1, BatchSize: 2, LastBatchPolicy: PolicyDrop, ExternalMode: ModeRawCompressed})
	require.NoError(t, err)
	ext := r.(*ExternalSource)
	require.NoError(t, ext.FeedData([]Sample{{Name: "a", Data: []byte{1}}}, false))

	done := make(chan error, 1)
	go func() {
		_, err := ext.Open()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Open darf unter DROP erst mit vollem Batch beginnen")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, ext.FeedData([]Sample{{Name: "b", Data: []byte{2}}}, true))
	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, "a", ext.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("Open blieb trotz vollem Batch blockiert")
	}
}

func TestExternalSourceFileNames(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"img.jpg": "data"})

	r := newExternal(t, ModeFileName, 1)
	require.Error(t, r.FeedData([]Sample{{Data: []byte{1}}}, false))
	require.NoError(t, r.FeedFileNames([]string{filepath.Join(dir, "img.jpg")}, true))

	size, err := r.Open()
	require.NoError(t, err)
	buf := make([]byte, size)
	_, err = r.Read(buf)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "data", string(buf))
	assert.Equal(t, "img.jpg", r.ID())
}

// ============================================================================
// TFRecord
// ============================================================================

func appendBytesFeature(b []byte, key string, value []byte) []byte {
	var list []byte
	list = protowire.AppendTag(list, 1, protowire.BytesType)
	list = protowire.AppendBytes(list, value)
	var feature []byte
	feature = protowire.AppendTag(feature, 1, protowire.BytesType)
	feature = protowire.AppendBytes(feature, list)
	return appendMapEntry(b, key, feature)
}

func appendInt64Feature(b []byte, key string, value int64) []byte {
	var packed []byte
	packed = protowire.AppendVarint(packed, uint64(value))
	var list []byte
	list = protowire.AppendTag(list, 1, protowire.BytesType)
	list = protowire.AppendBytes(list, packed)
	var feature []byte
	feature = protowire.AppendTag(feature, 3, protowire.BytesType)
	feature = protowire.AppendBytes(feature, list)
	return appendMapEntry(b, key, feature)
}

func appendMapEntry(b []byte, key string, feature []byte) []byte {
	var e []byte
	e = protowire.AppendTag(e, 1, protowire.BytesType)
	e = protowire.AppendString(e, key)
	e = protowire.AppendTag(e, 2, protowire.BytesType)
	e = protowire.AppendBytes(e, feature)
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, e)
}

func encodeExample(name string, data []byte, label int64) []byte {
	var features []byte
	features = appendBytesFeature(features, FeatureEncoded, data)
	features = appendBytesFeature(features, FeatureFilename, []byte(name))
	features = appendInt64Feature(features, FeatureLabel, label)
	var example []byte
	example = protowire.AppendTag(example, 1, protowire.BytesType)
	return protowire.AppendBytes(example, features)
}

func TestParseExample(t *testing.T) {
	features, err := ParseExample(encodeExample("x.jpg", []byte{9, 8}, 7))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{9, 8}}, features[FeatureEncoded].Bytes)
	assert.Equal(t, []int64{7}, features[FeatureLabel].Ints)
	assert.Equal(t, "x.jpg", string(features[FeatureFilename].Bytes[0]))

	_, err = ParseExample([]byte{0x0a, 0xff})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestTFRecordReader(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	for i, name := range []string{"r0.jpg", "r1.jpg", "r2.jpg"} {
		require.NoError(t, WriteTFRecord(&buf, encodeExample(name, bytes.Repeat([]byte{byte(i)}, i+1), int64(10+i))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.tfrecord"), buf.Bytes(), 0o644))

	r, err := New(Config{Type: TypeTFRecord, Path: dir, ShardCount: 1, BatchSize: 1})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, map[string]int32{"r0.jpg": 10, "r1.jpg": 11, "r2.jpg": 12}, r.(Labeled).Labels())

	r.Open()
	r.Close()
	size, err := r.Open()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	data := make([]byte, size)
	_, err = r.Read(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, data)
	assert.Equal(t, "r1.jpg", r.ID())
}

func TestTFRecordCorruptChecksum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTFRecord(&buf, encodeExample("a", []byte{1}, 0)))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff

	path := filepath.Join(t.TempDir(), "bad.tfrecord")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := New(Config{Type: TypeTFRecord, Path: path, ShardCount: 1, BatchSize: 1})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestReadTFRecordEOF(t *testing.T) {
	_, err := readTFRecord(bytes.NewReader(nil), nil)
	assert.True(t, errors.Is(err, io.EOF))
}

// ============================================================================
// WebDataset
// ============================================================================

func TestWebDataset(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	add := func(name string, data []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	add("s/000.jpg", []byte("first-image"))
	add("s/000.cls", []byte("3\n"))
	add("s/001.png", []byte("second"))
	add("s/001.cls", []byte("5"))
	add("s/002.json", []byte("{}"))
	require.NoError(t, tw.Close())

	path := filepath.Join(t.TempDir(), "shard-0.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := New(Config{Type: TypeWebDataset, Path: path, ShardCount: 1, BatchSize: 1})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, map[string]int32{"s/000": 3, "s/001": 5}, r.(Labeled).Labels())

	size, err := r.Open()
	require.NoError(t, err)
	data := make([]byte, size)
	_, err = r.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "first-image", string(data))
	assert.Equal(t, "s/000", r.ID())

	size, err = r.Open()
	require.NoError(t, err)
	data = make([]byte, size)
	_, err = r.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

// ============================================================================
// Archive (SQLite)
// ============================================================================

func TestArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(ArchiveSchema)
	require.NoError(t, err)
	for _, rec := range []struct {
		key   string
		data  []byte
		label int
	}{{"b", []byte("bbb"), 2}, {"a", []byte("a"), 1}, {"c", []byte{}, 3}} {
		_, err = db.Exec(`INSERT INTO records (key, data, label) VALUES (?, ?, ?)`, rec.key, rec.data, rec.label)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	r, err := New(Config{Type: TypeArchive, Path: path, ShardCount: 1, BatchSize: 1})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, []string{"a", "b"}, readAll(t, r))
	assert.Equal(t, int32(2), r.(Labeled).Labels()["b"])
}

// ============================================================================
// CIFAR-10
// ============================================================================

func TestCifar10(t *testing.T) {
	record := make([]byte, cifarRecordSize)
	record[0] = 6
	const plane = CifarWidth * CifarHeight
	record[1] = 10         // R von Pixel 0
	record[1+plane] = 20   // G von Pixel 0
	record[1+2*plane] = 30 // B von Pixel 0

	dir := t.TempDir()
	data := append(append([]byte(nil), record...), record...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_batch_1.bin"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.bin"), []byte{1, 2, 3}, 0o644))

	r, err := New(Config{Type: TypeCifar10, Path: dir, ShardCount: 1, BatchSize: 2})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, 2, r.Count())
	size, err := r.Open()
	require.NoError(t, err)
	assert.Equal(t, CifarWidth*CifarHeight*3, size)
	pix := make([]byte, size)
	_, err = r.Read(pix)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30}, pix[:3])
	assert.Equal(t, "data_batch_1.bin_0", r.ID())
	assert.Equal(t, int32(6), r.(Labeled).Labels()["data_batch_1.bin_1"])

	w, h := r.(ShapeReporter).CurrentShape()
	assert.Equal(t, [2]int{32, 32}, [2]int{w, h})
}
