package render

import (
	goimage "image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/domain"
)

func TestThumbnailBounds(t *testing.T) {
	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{4000, 2000, 200, 100},
		{500, 500, 200, 200},
		{2000, 4000, 100, 200},
		{120, 80, 120, 80},
		{1024, 1, 200, 1},
	}
	for _, tc := range cases {
		img := goimage.NewRGBA(goimage.Rect(0, 0, tc.w, tc.h))
		b := Thumbnail(img).Bounds()
		assert.Equal(t, tc.wantW, b.Dx(), "%dx%d width", tc.w, tc.h)
		assert.Equal(t, tc.wantH, b.Dy(), "%dx%d height", tc.w, tc.h)
		assert.LessOrEqual(t, max(b.Dx(), b.Dy()), ThumbMaxEdge)
	}
}

func TestEncodeImageProducesWebP(t *testing.T) {
	enc, err := EncodeImage(pngBytes(t, 500, 250))
	require.NoError(t, err)
	assert.Equal(t, 500, enc.Width)
	assert.Equal(t, 250, enc.Height)
	assert.Equal(t, 200, enc.ThumbWidth)
	assert.Equal(t, 100, enc.ThumbHeight)
	assert.Equal(t, "RIFF", string(enc.Full[:4]))
	assert.Equal(t, "WEBP", string(enc.Thumb[8:12]))
}

func TestEncodeImageRejectsGarbage(t *testing.T) {
	_, err := EncodeImage([]byte("<html>rate limited</html>"))
	var encErr *domain.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "decode", encErr.Op)
}

func TestAssetKeys(t *testing.T) {
	full, thumb := AssetKeys("abc", time.Date(2026, 3, 9, 23, 0, 0, 0, time.FixedZone("x", -5*3600)))
	assert.Equal(t, "images/2026/03/abc.webp", full)
	assert.Equal(t, "images/2026/03/abc-thumb.webp", thumb)
}
