// Package fileutil holds the file copy and stream-to-disk helpers shared by
// storage backends and upload handlers.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by SaveStream when the input exceeds its limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// CopyFileAtomic copies src to dst with SHA256 and size verification. The
// data lands in a temporary sibling first and is renamed into place, so a
// reader never observes a partial dst.
func CopyFileAtomic(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcHasher := sha256.New()
	tmp, written, dstSum, err := writeTemp(dst, io.TeeReader(in, srcHasher), -1)
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return rename(tmp, dst)
}

// SaveStream writes r to dst atomically and returns the byte count. When
// limit is positive and r yields more than limit bytes, nothing is written and
// ErrTooLarge is returned.
func SaveStream(r io.Reader, dst string, limit int64) (int64, error) {
	tmp, written, _, err := writeTemp(dst, r, limit)
	if err != nil {
		return written, err
	}
	if err := rename(tmp, dst); err != nil {
		return written, err
	}
	return written, nil
}

func writeTemp(dst string, r io.Reader, limit int64) (string, int64, []byte, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, nil, err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", 0, nil, err
	}
	tmp := out.Name()
	fail := func(err error) (string, int64, []byte, error) {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", 0, nil, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), src)
	if err != nil {
		return fail(err)
	}
	if limit > 0 && written > limit {
		return fail(ErrTooLarge)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", 0, nil, err
	}
	return tmp, written, hasher.Sum(nil), nil
}

func rename(tmp, dst string) error {
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
