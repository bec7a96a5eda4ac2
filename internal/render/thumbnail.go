package render

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"gallery/internal/domain"
)

const (
	ThumbMaxEdge     = 200
	fullWebPQuality  = 90
	thumbWebPQuality = 80
)

// Encoded holds the stored representations of one generated image.
type Encoded struct {
	Full        []byte
	Thumb       []byte
	Width       int
	Height      int
	ThumbWidth  int
	ThumbHeight int
}

// EncodeImage decodes provider bytes, honoring EXIF orientation, and produces
// the full WebP plus a thumbnail that fits ThumbMaxEdge on both sides.
func EncodeImage(data []byte) (*Encoded, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &domain.EncodingError{Op: "decode", Err: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &domain.EncodingError{Op: "decode", Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}

	full, err := encodeWebP(img, fullWebPQuality)
	if err != nil {
		return nil, err
	}
	thumbImg := Thumbnail(img)
	thumb, err := encodeWebP(thumbImg, thumbWebPQuality)
	if err != nil {
		return nil, err
	}
	tb := thumbImg.Bounds()
	return &Encoded{
		Full:        full,
		Thumb:       thumb,
		Width:       b.Dx(),
		Height:      b.Dy(),
		ThumbWidth:  tb.Dx(),
		ThumbHeight: tb.Dy(),
	}, nil
}

// Thumbnail scales img down, keeping aspect ratio, so that neither edge
// exceeds ThumbMaxEdge. Smaller images are returned unchanged.
func Thumbnail(img image.Image) image.Image {
	return resize.Thumbnail(ThumbMaxEdge, ThumbMaxEdge, img, resize.Lanczos3)
}

func encodeWebP(img image.Image, quality float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, &domain.EncodingError{Op: "encode webp", Err: err}
	}
	return buf.Bytes(), nil
}

// AssetKeys returns the storage keys of the full image and thumbnail for id,
// partitioned by the year and month of at.
func AssetKeys(id string, at time.Time) (full, thumb string) {
	at = at.UTC()
	dir := fmt.Sprintf("images/%04d/%02d/", at.Year(), int(at.Month()))
	return dir + id + ".webp", dir + id + "-thumb.webp"
}
