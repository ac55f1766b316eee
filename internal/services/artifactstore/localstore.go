package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/utils/fileutil"
	"github.com/cozy-creator/xray-classifier/internal/utils/pathutil"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory is not set")
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	dest, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	err = fileutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, readerWithContext(ctx, r))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save content to file: %w", err)
	}

	return dest, nil
}

func (s *LocalStore) Get(ctx context.Context, name string, w io.Writer) error {
	src, err := s.resolve(name)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &errdefs.ArtifactNotFoundError{Path: src, Err: err}
		}
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, readerWithContext(ctx, f))
	return err
}

// resolve keeps every object inside the store directory.
func (s *LocalStore) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.Join(s.dir, name))
	rel, err := filepath.Rel(s.dir, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return clean, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
