// Package storage is the durable blob store for original uploads and
// processed outputs.
//
// Two backends exist: a local directory (development and single-host
// deployments) and S3 or any S3-compatible service. Both move whole files
// between the store and a local path so large videos never sit in memory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"ticketless/internal/config"
)

// ErrInvalidKey is returned for keys that are empty, absolute, or escape
// their namespace.
var ErrInvalidKey = errors.New("invalid storage key")

// Store moves blobs between durable storage and the local filesystem.
type Store interface {
	// Put uploads the file at srcPath under key and returns a URL for it.
	Put(ctx context.Context, key, srcPath, contentType string) (string, error)
	// Fetch downloads key into dstPath.
	Fetch(ctx context.Context, key, dstPath string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns a URL the client can fetch key from.
	URL(ctx context.Context, key string) (string, error)
	// Describe names the backend for status output.
	Describe() string
}

// New builds the backend selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		store, err := NewS3(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageLocal, "":
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// OriginalKey names an uploaded source video. ext keeps the container hint
// the validator checks against.
func OriginalKey(userID, contestID, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("originals", segment(userID), segment(contestID), uuid.NewString(), "source"+ext)
}

// ProcessedKey names an output artifact for one job attempt. jobRef is the
// queue job id or a request id on the synchronous path.
func ProcessedKey(userID, jobRef, name string) string {
	return path.Join("processed", segment(userID), segment(jobRef), segment(name))
}

func segment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(value)
	if value == "" || value == "." {
		return "_"
	}
	return value
}

// cleanKey validates key and returns its canonical form.
func cleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
