package dataset

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/augment"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/testutil"
)

func TestScanAssignsSortedLabels(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"PNEUMONIA", "NORMAL"}, 3, 8, 8, 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "NORMAL", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o755))

	ds, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"NORMAL", "PNEUMONIA"}, ds.Classes)
	assert.Len(t, ds.Samples, 6)
	assert.Equal(t, []int{3, 3}, ClassCounts(ds.Samples, ds.NumClasses()))
	for _, s := range ds.Samples {
		assert.Equal(t, ds.Classes[s.Label], filepath.Base(filepath.Dir(s.Path)))
	}
}

func TestScanFailures(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := Scan(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, errdefs.ErrDataNotFound)
	})

	t.Run("single class", func(t *testing.T) {
		root := testutil.WriteDataset(t, t.TempDir(), []string{"only"}, 2, 4, 4, 1)
		_, err := Scan(root)
		assert.ErrorIs(t, err, errdefs.ErrDataNotFound)
	})

	t.Run("no images", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
		_, err := Scan(root)
		assert.ErrorIs(t, err, errdefs.ErrDataNotFound)
	})

	t.Run("file instead of dir", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := Scan(path)
		assert.ErrorIs(t, err, errdefs.ErrDataNotFound)
	})
}

func TestSplitIsDeterministicAndDisjoint(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 10, 4, 4, 1)
	ds, err := Scan(root)
	require.NoError(t, err)

	train, val := ds.Split(0.1, 123)
	assert.Len(t, val, 2)
	assert.Len(t, train, 18)

	train2, val2 := ds.Split(0.1, 123)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)

	seen := map[string]bool{}
	for _, s := range append(append([]Sample{}, train...), val...) {
		assert.False(t, seen[s.Path])
		seen[s.Path] = true
	}
	assert.Len(t, seen, 20)

	_, tiny := (&Dataset{Samples: ds.Samples[:5]}).Split(0.1, 1)
	assert.Empty(t, tiny)
}

func TestFingerprintIgnoresRootLocation(t *testing.T) {
	a := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 2, 4, 4, 1)
	b := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 2, 4, 4, 1)
	c := testutil.WriteDataset(t, t.TempDir(), []string{"a", "c"}, 2, 4, 4, 1)

	da, err := Scan(a)
	require.NoError(t, err)
	db, err := Scan(b)
	require.NoError(t, err)
	dc, err := Scan(c)
	require.NoError(t, err)

	assert.Equal(t, da.Fingerprint(), db.Fingerprint())
	assert.NotEqual(t, da.Fingerprint(), dc.Fingerprint())
}

func TestLoaderResizesInOrder(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 4, 12, 10, 1)
	ds, err := Scan(root)
	require.NoError(t, err)

	var calls int
	l := NewLoader(6, 5, resize.Bilinear, 4, WithProgress(func(done, total int) { calls++ }))
	images, err := l.Load(context.Background(), ds.Samples)
	require.NoError(t, err)
	require.Len(t, images, 8)
	for _, img := range images {
		assert.Equal(t, 6, img.Bounds().Dx())
		assert.Equal(t, 5, img.Bounds().Dy())
	}
	assert.Equal(t, 8, calls)

	again, err := NewLoader(6, 5, resize.Bilinear, 1).Load(context.Background(), ds.Samples)
	require.NoError(t, err)
	for i := range images {
		assert.Equal(t, images[i].Pix, again[i].Pix)
	}
}

func TestLoaderReportsCorruptImage(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 2, 4, 4, 1)
	bad := filepath.Join(root, "b", "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not really a jpeg"), 0o644))

	ds, err := Scan(root)
	require.NoError(t, err)

	_, err = NewLoader(4, 4, resize.Bilinear, 2).Load(context.Background(), ds.Samples)
	require.ErrorIs(t, err, errdefs.ErrCorruptImage)

	var corrupt *errdefs.CorruptImageError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, bad, corrupt.Path)
}

func TestLoaderHonoursCancellation(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 2, 4, 4, 1)
	ds, err := Scan(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLoader(4, 4, resize.Bilinear, 2).Load(ctx, ds.Samples)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShuffleOrderIsPermutation(t *testing.T) {
	for _, buffer := range []int{1, 3, 10, 1000} {
		order := ShuffleOrder(25, buffer, rand.New(rand.NewSource(5)))
		sorted := append([]int(nil), order...)
		sort.Ints(sorted)
		assert.Equal(t, Sequential(25), sorted, "buffer %d", buffer)
	}

	assert.Equal(t, Sequential(10), ShuffleOrder(10, 1, rand.New(rand.NewSource(1))))
	assert.Equal(t,
		ShuffleOrder(50, 8, rand.New(rand.NewSource(9))),
		ShuffleOrder(50, 8, rand.New(rand.NewSource(9))))
}

func TestBatcherCoversEverySample(t *testing.T) {
	root := testutil.WriteDataset(t, t.TempDir(), []string{"a", "b"}, 5, 4, 4, 1)
	ds, err := Scan(root)
	require.NoError(t, err)
	images, err := NewLoader(4, 4, resize.Bilinear, 2).Load(context.Background(), ds.Samples)
	require.NoError(t, err)

	aug := augment.New(config.AugmentConfig{FlipHorizontal: true}, 1)
	b := NewBatcher(images, Labels(ds.Samples), Sequential(10), 4, aug)
	require.Equal(t, 3, b.Len())

	var sizes, labels []int
	for i := 0; i < b.Len(); i++ {
		batch := b.Batch(i)
		sizes = append(sizes, batch.X.Batch())
		assert.Equal(t, []int{batch.X.Batch(), 4, 4, 3}, []int(batch.X.Shape))
		labels = append(labels, batch.Labels...)
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, Labels(ds.Samples), labels)
}
