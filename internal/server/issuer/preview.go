package issuer

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultPreviewWidth = 256
	minPreviewWidth     = 16
	maxPreviewWidth     = 2048
)

var errNotAnImage = errors.New("not a decodable image")

// scaleImage renders data at most width pixels wide, keeping the aspect
// ratio. JPEG sources stay JPEG, everything else becomes PNG. Images already
// narrower than width are re-encoded at their own size.
func scaleImage(data []byte, width int) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errNotAnImage
	}

	b := src.Bounds()
	width = min(max(width, minPreviewWidth), maxPreviewWidth, b.Dx())
	height := max(1, b.Dy()*width/b.Dx())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 85}); err != nil {
			return nil, "", err
		}
		return out.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&out, dst); err != nil {
		return nil, "", err
	}
	return out.Bytes(), "image/png", nil
}
