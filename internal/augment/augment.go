// Package augment applies the random flip, rotation and zoom used on
// training images. Every draw comes from the Augmenter's own seeded source.
package augment

import (
	"image"
	"image/draw"
	"math"
	"math/rand"

	"github.com/anthonynsimon/bild/transform"

	"github.com/cozy-creator/xray-classifier/internal/config"
)

type Augmenter struct {
	cfg config.AugmentConfig
	rng *rand.Rand
}

func New(cfg config.AugmentConfig, seed int64) *Augmenter {
	return &Augmenter{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Enabled reports whether Apply can change an image at all.
func (a *Augmenter) Enabled() bool {
	return a.cfg.FlipHorizontal || a.cfg.Rotation > 0 || a.cfg.Zoom > 0
}

// Apply returns a transformed copy of img with the same bounds size. The
// input is never modified. Areas uncovered by rotation or zoom-out are black.
func (a *Augmenter) Apply(img *image.RGBA) *image.RGBA {
	out := img

	if a.cfg.FlipHorizontal && a.rng.Float64() < 0.5 {
		out = transform.FlipH(out)
	}

	if a.cfg.Rotation > 0 {
		degrees := (a.rng.Float64()*2 - 1) * a.cfg.Rotation * 360
		out = transform.Rotate(out, degrees, &transform.RotationOptions{ResizeBounds: false})
	}

	if a.cfg.Zoom > 0 {
		factor := (a.rng.Float64()*2 - 1) * a.cfg.Zoom
		out = zoom(out, factor)
	}

	if out == img {
		out = transform.Crop(img, img.Bounds())
	}
	return out
}

// zoom scales the view by 1+factor: a negative factor crops the centre and
// enlarges it, a positive one shrinks the image onto a black canvas.
func zoom(img *image.RGBA, factor float64) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	vw := int(math.Round(float64(w) * (1 + factor)))
	vh := int(math.Round(float64(h) * (1 + factor)))
	if vw < 1 {
		vw = 1
	}
	if vh < 1 {
		vh = 1
	}

	switch {
	case vw == w && vh == h:
		return img
	case vw <= w && vh <= h:
		x0, y0 := b.Min.X+(w-vw)/2, b.Min.Y+(h-vh)/2
		crop := transform.Crop(img, image.Rect(x0, y0, x0+vw, y0+vh))
		return transform.Resize(crop, w, h, transform.Linear)
	default:
		sw := int(math.Round(float64(w) * float64(w) / float64(vw)))
		sh := int(math.Round(float64(h) * float64(h) / float64(vh)))
		if sw < 1 {
			sw = 1
		}
		if sh < 1 {
			sh = 1
		}
		small := transform.Resize(img, sw, sh, transform.Linear)

		canvas := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)
		offset := image.Pt((w-sw)/2, (h-sh)/2)
		draw.Draw(canvas, small.Bounds().Add(offset), small, small.Bounds().Min, draw.Src)
		return canvas
	}
}
