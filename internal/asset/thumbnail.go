package asset

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding alongside JPEG

	"github.com/nfnt/resize"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// thumbnailDims maps the UI's coarse thumbnail_size setting to a target
// height in pixels; width is derived to preserve aspect ratio.
var thumbnailDims = map[string]uint{
	"small":  96,
	"medium": 192,
	"large":  384,
}

const defaultThumbnailHeight = 192

// renderThumbnail decodes raw image bytes and resizes them to the
// configured thumbnail height using a Lanczos3 filter, re-encoding the
// result as JPEG regardless of source format so the asset server always
// has one predictable content type to set for /thumbnail responses.
func renderThumbnail(data []byte, size string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileCorrupt, "source is not a decodable image", err)
	}

	height, ok := thumbnailDims[size]
	if !ok {
		height = defaultThumbnailHeight
	}
	resized := resize.Resize(0, height, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, errors.InternalError("failed to encode thumbnail", err)
	}
	return buf.Bytes(), nil
}

// renderPreview is a larger rendition than the thumbnail, used by /preview
// for a quick look without streaming the full original asset.
func renderPreview(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileCorrupt, "source is not a decodable image", err)
	}

	bounds := img.Bounds()
	const maxPreviewHeight = 900
	resized := img
	if bounds.Dy() > maxPreviewHeight {
		r := resize.Resize(0, uint(maxPreviewHeight), img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, r, &jpeg.Options{Quality: 90}); err != nil {
			return nil, errors.InternalError("failed to encode preview", err)
		}
		return buf.Bytes(), nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, errors.InternalError("failed to encode preview", err)
	}
	return buf.Bytes(), nil
}

// textPreviewLimit caps how much of a non-image file /preview returns
// inline, so previewing a multi-gigabyte log doesn't stream it whole.
const textPreviewLimit = 64 * 1024

func truncateText(data []byte) []byte {
	if len(data) <= textPreviewLimit {
		return data
	}
	return data[:textPreviewLimit]
}
