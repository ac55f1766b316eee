// Package imageutil decodes image files of any supported container into a
// fixed-size RGB raster and converts rasters into HWC float tensors.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Extensions accepted when scanning a dataset directory.
var Extensions = map[string]struct{}{
	".bmp":  {},
	".gif":  {},
	".jpeg": {},
	".jpg":  {},
	".png":  {},
}

// IsImageFile reports whether name carries one of Extensions, case-insensitively.
func IsImageFile(name string) bool {
	_, ok := Extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ParseInterpolation maps a config name to an nfnt interpolation function.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(name) {
	case "nearest":
		return resize.NearestNeighbor, nil
	case "", "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "lanczos3", "lanczos":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("unsupported interpolation %q", name)
	}
}

// Decode sniffs the content type of data and decodes it with the matching
// decoder. Extensions are not trusted.
func Decode(data []byte) (image.Image, error) {
	mtype := mimetype.Detect(data)
	r := bytes.NewReader(data)

	switch mtype.String() {
	case "image/png":
		return png.Decode(r)
	case "image/jpeg":
		return jpeg.Decode(r)
	case "image/gif":
		return gif.Decode(r)
	case "image/bmp", "image/x-ms-bmp":
		return bmp.Decode(r)
	case "image/tiff":
		return tiff.Decode(r)
	case "image/webp":
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported image type %s", mtype.String())
	}
}

// DecodeReader reads r fully and decodes it with Decode.
func DecodeReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// DecodeFile reads and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// ToRGB flattens img onto an opaque RGBA raster. Grayscale and paletted
// inputs are replicated into three channels, alpha is dropped.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// Resize scales img to exactly width x height, ignoring aspect ratio, and
// returns an opaque RGB raster.
func Resize(img image.Image, width, height int, interp resize.InterpolationFunction) *image.RGBA {
	rgb := ToRGB(img)
	if rgb.Bounds().Dx() == width && rgb.Bounds().Dy() == height {
		return rgb
	}

	scaled := resize.Resize(uint(width), uint(height), rgb, interp)
	if out, ok := scaled.(*image.RGBA); ok && out.Bounds().Min == (image.Point{}) {
		return out
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out
}

// LoadFile decodes the file at path and resizes it in one step.
func LoadFile(path string, width, height int, interp resize.InterpolationFunction) (*image.RGBA, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return Resize(img, width, height, interp), nil
}

// ToTensor writes the RGB channels of img into dst in height, width, channel
// order with raw 0..255 values. dst must hold at least 3*w*h values.
func ToTensor(img *image.RGBA, dst []float32) {
	b := img.Bounds()
	i := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4:]
			dst[i+0] = float32(p[0])
			dst[i+1] = float32(p[1])
			dst[i+2] = float32(p[2])
			i += 3
		}
	}
}

// Tensor allocates and fills a new HWC tensor for img.
func Tensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	dst := make([]float32, b.Dx()*b.Dy()*3)
	ToTensor(img, dst)
	return dst
}
