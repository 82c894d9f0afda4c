package video

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// ThumbnailBounds caps the thumbnail size; the aspect ratio is preserved.
type ThumbnailBounds struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultThumbnailBounds fits thumbnails inside 640x360.
var DefaultThumbnailBounds = ThumbnailBounds{MaxWidth: 640, MaxHeight: 360}

const thumbnailJPEGQuality = 85

// WriteThumbnail decodes the rendered frame at src, fits it inside bounds,
// and writes a JPEG to dst. A frame that cannot be decoded is an error so the
// caller can fall back to another offset.
func WriteThumbnail(src, dst string, bounds ThumbnailBounds) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("decode frame: empty image")
	}
	if b.Dx() > bounds.MaxWidth || b.Dy() > bounds.MaxHeight {
		img = imaging.Fit(img, bounds.MaxWidth, bounds.MaxHeight, imaging.Lanczos)
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}
