package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/utils/fileutil"
)

// Encode writes a as a zstd-compressed msgpack document.
func Encode(w io.Writer, a *Artifact) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(a); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	return zw.Close()
}

// Decode reads an artifact written by Encode. It does not validate it.
func Decode(r io.Reader) (*Artifact, error) {
	zr, err := zstd.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, &errdefs.ArtifactFormatError{Reason: "not a zstd stream", Err: err}
	}
	defer zr.Close()

	a := &Artifact{}
	if err := msgpack.NewDecoder(zr).Decode(a); err != nil {
		return nil, &errdefs.ArtifactFormatError{Reason: "failed to decode", Err: err}
	}
	return a, nil
}

// Save writes a to path atomically: a failed save leaves any previous file
// at path untouched.
func Save(path string, a *Artifact) error {
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := Encode(bw, a); err != nil {
			return err
		}
		return bw.Flush()
	})
}

// Load reads, decodes and validates the artifact at path.
func Load(path string) (*Artifact, error) {
	a, _, err := LoadNetwork(path)
	return a, err
}

// LoadNetwork is Load that also hands back the network rebuilt during
// validation, so callers serving the model do not build it twice.
func LoadNetwork(path string) (*Artifact, *nn.Sequential, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &errdefs.ArtifactNotFoundError{Path: path, Err: err}
		}
		return nil, nil, &errdefs.ArtifactFormatError{Path: path, Reason: "cannot open", Err: err}
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return nil, nil, withPath(err, path)
	}
	model, err := a.validatedNetwork()
	if err != nil {
		return nil, nil, withPath(err, path)
	}
	return a, model, nil
}

func withPath(err error, path string) error {
	var formatErr *errdefs.ArtifactFormatError
	if errors.As(err, &formatErr) && formatErr.Path == "" {
		formatErr.Path = path
	}
	return err
}
