package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// FileStorage stores write-once blobs addressed by key.
type FileStorage interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// WithBlob stores a blob under key and runs use with it.
// The blob is released again if use fails, so no unreferenced blob is left behind.
func WithBlob(ctx context.Context, fs FileStorage, key string, r io.Reader, contentType string, use func(key string) error) error {
	if err := fs.Put(ctx, key, r, contentType); err != nil {
		return errors.Wrap(err, "storing blob")
	}
	if err := use(key); err != nil {
		if dErr := fs.Delete(context.Background(), key); dErr != nil {
			return errors.Wrapf(err, "releasing blob %s failed (%v)", key, dErr)
		}
		return err
	}
	return nil
}

// ReplaceBlob is WithBlob for a reference that replaces oldKey.
// oldKey is released only once use succeeded; its release failure is returned but does not undo the replacement.
func ReplaceBlob(ctx context.Context, fs FileStorage, oldKey, key string, r io.Reader, contentType string, use func(key string) error) error {
	if err := WithBlob(ctx, fs, key, r, contentType, use); err != nil {
		return err
	}
	if oldKey == "" || oldKey == key {
		return nil
	}
	return errors.Wrapf(fs.Delete(ctx, oldKey), "releasing replaced blob %s", oldKey)
}
