// Package testutil builds on-disk image fixtures for package tests.
package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Pattern renders class-specific images: class k gets a bright vertical
// band in the k-th slot of the width, plus noise.
func Pattern(class, classes, w, h int, rng *rand.Rand) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	band := w / classes
	if band < 1 {
		band = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 30 + rng.Intn(30)
			if x/band == class {
				v = 200 + rng.Intn(50)
			}
			img.Set(x, y, color.NRGBA{R: uint8(v), G: uint8(v), B: uint8(v), A: 255})
		}
	}
	return img
}

func WritePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// WriteDataset writes perClass images of size w x h for each named class
// under root and returns root.
func WriteDataset(t testing.TB, root string, classes []string, perClass, w, h int, seed int64) string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	for k, class := range classes {
		for i := 0; i < perClass; i++ {
			WritePNG(t, filepath.Join(root, class, fmt.Sprintf("img_%03d.png", i)), Pattern(k, len(classes), w, h, rng))
		}
	}
	return root
}
