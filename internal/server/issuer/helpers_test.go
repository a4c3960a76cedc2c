package issuer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/server/auth"
	sc "github.com/dmitrijs2005/remotestorage/internal/server/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Unix(1_700_000_000, 0)

func testConfig(t *testing.T) *sc.Config {
	t.Helper()
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.MediaRoot = t.TempDir()
	cfg.MaxUploadSize = 1 << 20
	return cfg
}

func newTestIssuer(t *testing.T, cfg *sc.Config) *Issuer {
	t.Helper()
	i := New(cfg, logging.Discard())
	i.now = func() time.Time { return fixedNow }
	return i
}

func newTestHost(t *testing.T, cfg *sc.Config, signer *Signer) (*MediaHost, *httptest.Server) {
	t.Helper()
	h, err := NewMediaHost(cfg, signer, logging.Discard())
	require.NoError(t, err)
	h.now = func() time.Time { return fixedNow }
	srv := httptest.NewServer(NewMediaHandler(h))
	t.Cleanup(srv.Close)
	return h, srv
}

func mustToken(t *testing.T, cfg *sc.Config, subject string) string {
	t.Helper()
	tok, err := auth.GenerateToken(subject, []byte(cfg.SecretKey), time.Hour)
	require.NoError(t, err)
	return tok
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// stubPresign replaces the S3 presign call for the duration of a test.
func stubPresign(t *testing.T, fn func(in *s3.PutObjectInput, opts s3.PresignPostOptions) (*s3.PresignedPostRequest, error)) {
	t.Helper()
	orig := presignPostObject
	t.Cleanup(func() { presignPostObject = orig })

	presignPostObject = func(_ *s3.PresignClient, _ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error) {
		var opts s3.PresignPostOptions
		for _, fn := range optFns {
			fn(&opts)
		}
		return fn(in, opts)
	}
}

func do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}
