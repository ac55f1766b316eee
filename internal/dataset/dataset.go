// Package dataset reads a directory of class-labelled images: one
// subdirectory per class, class indices assigned in sorted name order.
package dataset

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/utils/hashutil"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
)

type Sample struct {
	Path  string
	Label int
}

type Dataset struct {
	Root    string
	Classes []string
	Samples []Sample
}

// Scan lists root. Every non-hidden subdirectory is a class; image files
// anywhere below it are samples of that class. Files directly under root
// are ignored.
func Scan(root string) (*Dataset, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &errdefs.DataNotFoundError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &errdefs.DataNotFoundError{Path: root, Reason: "not a directory"}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &errdefs.DataNotFoundError{Path: root, Err: err}
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)

	if len(classes) < 2 {
		return nil, &errdefs.DataNotFoundError{Path: root, Reason: "need at least two class directories"}
	}

	ds := &Dataset{Root: root, Classes: classes}
	for label, class := range classes {
		dir := filepath.Join(root, class)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if imageutil.IsImageFile(d.Name()) {
				ds.Samples = append(ds.Samples, Sample{Path: path, Label: label})
			}
			return nil
		})
		if err != nil {
			return nil, &errdefs.DataNotFoundError{Path: dir, Err: err}
		}
	}

	if len(ds.Samples) == 0 {
		return nil, &errdefs.DataNotFoundError{Path: root, Reason: "no image files"}
	}

	return ds, nil
}

func (d *Dataset) NumClasses() int { return len(d.Classes) }

// Split shuffles all samples with seed and holds out the last
// int(fraction*n) of them for validation.
func (d *Dataset) Split(fraction float64, seed int64) (train, val []Sample) {
	samples := append([]Sample(nil), d.Samples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})

	numVal := int(fraction * float64(len(samples)))
	cut := len(samples) - numVal
	return samples[:cut], samples[cut:]
}

// Fingerprint hashes the class names and the relative path and label of
// every sample, so two scans of the same tree compare equal.
func (d *Dataset) Fingerprint() string {
	h := hashutil.NewDigest()
	h.Int(len(d.Classes))
	for _, c := range d.Classes {
		h.String(c)
	}
	h.Int(len(d.Samples))
	for _, s := range d.Samples {
		rel, err := filepath.Rel(d.Root, s.Path)
		if err != nil {
			rel = s.Path
		}
		h.String(filepath.ToSlash(rel)).Int(s.Label)
	}
	return h.Hex()
}

// ClassCounts returns the number of samples per class index.
func ClassCounts(samples []Sample, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}
