package issuer

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleImage(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 300, 150)), nil))

	cases := []struct {
		name       string
		data       []byte
		width      int
		wantType   string
		wantFormat string
		wantW      int
		wantH      int
	}{
		{name: "jpeg stays jpeg", data: jpg.Bytes(), width: 100, wantType: "image/jpeg", wantFormat: "jpeg", wantW: 100, wantH: 50},
		{name: "png becomes png", data: pngBytes(t, 64, 32), width: 32, wantType: "image/png", wantFormat: "png", wantW: 32, wantH: 16},
		{name: "never upscales", data: pngBytes(t, 20, 10), width: 500, wantType: "image/png", wantFormat: "png", wantW: 20, wantH: 10},
		{name: "tiny widths are clamped", data: pngBytes(t, 64, 64), width: 1, wantType: "image/png", wantFormat: "png", wantW: 16, wantH: 16},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, contentType, err := scaleImage(c.data, c.width)
			require.NoError(t, err)
			assert.Equal(t, c.wantType, contentType)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, c.wantFormat, format)
			assert.Equal(t, c.wantW, cfg.Width)
			assert.Equal(t, c.wantH, cfg.Height)
		})
	}

	_, _, err := scaleImage([]byte("plain text"), 10)
	assert.ErrorIs(t, err, errNotAnImage)
}
