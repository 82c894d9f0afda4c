package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"ticketless/internal/fileutil"
	"ticketless/internal/services"
)

// Local stores blobs under a directory. URLs are PublicBaseURL + key, or
// file URLs when no base is configured.
type Local struct {
	root    string
	baseURL string
}

// NewLocal returns a local store rooted at root, creating it if needed.
func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure storage directory: %w", err)
	}
	return &Local{root: root, baseURL: baseURL}, nil
}

func (l *Local) path(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", services.Wrap(services.ErrStorage, "storage", "key", "", err)
	}
	return cleaned, filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l *Local) Put(ctx context.Context, key, srcPath, _ string) (string, error) {
	cleaned, dst, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := fileutil.CopyFileAtomic(srcPath, dst); err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "put", cleaned, err)
	}
	return l.URL(ctx, cleaned)
}

func (l *Local) Fetch(ctx context.Context, key, dstPath string) error {
	cleaned, src, err := l.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutil.CopyFileAtomic(src, dstPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "storage", "fetch", cleaned, err)
		}
		return services.Wrap(services.ErrStorage, "storage", "fetch", cleaned, err)
	}
	return nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	cleaned, target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrStorage, "storage", "delete", cleaned, err)
	}
	return nil
}

func (l *Local) URL(_ context.Context, key string) (string, error) {
	cleaned, target, err := l.path(key)
	if err != nil {
		return "", err
	}
	if l.baseURL != "" {
		return joinURL(l.baseURL, cleaned), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String(), nil
}

func (l *Local) Describe() string {
	return "local:" + l.root
}
