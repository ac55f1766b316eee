// Package artifactstore publishes trained artifacts to shared storage and
// pulls them back. Two backends exist: a local directory and an S3 bucket.
package artifactstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/utils/fileutil"
)

type Store interface {
	// Put stores r under name and returns where it ended up.
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	// Get copies the object called name into w. A missing object is
	// reported as an ArtifactNotFoundError.
	Get(ctx context.Context, name string, w io.Writer) error
}

func NewStore(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", config.StorageLocal:
		return NewLocalStore(cfg.Dir)
	case config.StorageS3:
		return NewS3Store(ctx, cfg.S3)
	}

	return nil, fmt.Errorf("invalid storage type %s", cfg.Type)
}

// Push validates the artifact at path and uploads it under its base name.
func Push(ctx context.Context, store Store, path string) (string, error) {
	if _, err := artifact.Load(path); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return store.Put(ctx, filepath.Base(path), f)
}

// Pull downloads name, validates it and writes it atomically to dest. An
// invalid object leaves dest untouched.
func Pull(ctx context.Context, store Store, name, dest string) (*artifact.Artifact, error) {
	var buf bytes.Buffer
	if err := store.Get(ctx, name, &buf); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	a, err := artifact.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	err = fileutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
