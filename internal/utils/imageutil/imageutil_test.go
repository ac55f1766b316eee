package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecodeSniffsContent(t *testing.T) {
	img := solid(4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	var pngBuf, jpgBuf, bmpBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	require.NoError(t, jpeg.Encode(&jpgBuf, img, nil))
	require.NoError(t, bmp.Encode(&bmpBuf, img))

	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "jpeg": jpgBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, 4, got.Bounds().Dx())
			assert.Equal(t, 3, got.Bounds().Dy())
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "fake.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, 0o644))
	_, err = DecodeFile(path)
	assert.Error(t, err)
}

func TestResizeGrayscaleReplicatesChannels(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 200})

	out := Resize(gray, 8, 6, resize.Bilinear)
	require.Equal(t, image.Rect(0, 0, 8, 6), out.Bounds())

	tensor := Tensor(out)
	require.Len(t, tensor, 8*6*3)
	for _, v := range tensor {
		assert.InDelta(t, 200, v, 1)
	}
}

func TestResizeDropsAlpha(t *testing.T) {
	img := solid(2, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 0})
	out := Resize(img, 2, 2, resize.NearestNeighbor)
	tensor := Tensor(out)
	assert.Equal(t, []float32{255, 0, 0}, tensor[:3])
	assert.Equal(t, uint8(0xff), out.Pix[3])
}

func TestToTensorOrdersHWC(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.Set(1, 0, color.RGBA{R: 4, G: 5, B: 6, A: 255})

	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, Tensor(img))
}

func TestParseInterpolation(t *testing.T) {
	for _, name := range []string{"", "nearest", "bilinear", "bicubic", "lanczos3"} {
		_, err := ParseInterpolation(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseInterpolation("cubic-spline")
	assert.Error(t, err)
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a.PNG"))
	assert.True(t, IsImageFile("b.jpeg"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile(".DS_Store"))
}
