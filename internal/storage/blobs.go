package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
)

// BlobStore holds file contents addressed by key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// FileBlobStore stores blobs as files under a root directory.
type FileBlobStore struct {
	root string
}

// NewFileBlobStore creates root if needed.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", root, err)
	}
	return &FileBlobStore{root: root}, nil
}

func (f *FileBlobStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", svcerrors.NewInvalidParameterError("blob_key", key)
	}
	return filepath.Join(f.root, key), nil
}

// Put writes through a temporary file and renames it into place.
func (f *FileBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.root, ".upload-*")
	if err != nil {
		return svcerrors.NewStorageFailedError("write blob", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return svcerrors.NewStorageFailedError("write blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return svcerrors.NewStorageFailedError("write blob", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return svcerrors.NewStorageFailedError("write blob", err)
	}
	return nil
}

func (f *FileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, svcerrors.NewNotFoundError("blob", key)
	}
	if err != nil {
		return nil, svcerrors.NewStorageFailedError("read blob", err)
	}
	return data, nil
}

// Delete is idempotent.
func (f *FileBlobStore) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return svcerrors.NewStorageFailedError("delete blob", err)
	}
	return nil
}
