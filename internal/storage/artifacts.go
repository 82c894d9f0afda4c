package storage

import (
	"context"
	"errors"
	"path/filepath"
)

// Artifacts are the durable references for one processed video.
type Artifacts struct {
	VideoRef     string `json:"processed_video_ref"`
	VideoURL     string `json:"processed_video_url"`
	ThumbnailRef string `json:"thumbnail_ref"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// PutOutputs uploads a sliced clip and its thumbnail under
// processed/<user>/<jobRef>/. Either both land or neither stays referenced:
// when the thumbnail upload fails the clip is deleted again.
func PutOutputs(ctx context.Context, store Store, userID, jobRef, clipPath, thumbPath string) (Artifacts, error) {
	var out Artifacts
	out.VideoRef = ProcessedKey(userID, jobRef, "clip"+filepath.Ext(clipPath))
	out.ThumbnailRef = ProcessedKey(userID, jobRef, "thumbnail"+filepath.Ext(thumbPath))

	var err error
	out.VideoURL, err = store.Put(ctx, out.VideoRef, clipPath, "video/mp4")
	if err != nil {
		return Artifacts{}, err
	}
	out.ThumbnailURL, err = store.Put(ctx, out.ThumbnailRef, thumbPath, "image/jpeg")
	if err != nil {
		// Cleanup must run even when ctx is what failed the upload.
		if delErr := store.Delete(context.WithoutCancel(ctx), out.VideoRef); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return Artifacts{}, err
	}
	return out, nil
}
