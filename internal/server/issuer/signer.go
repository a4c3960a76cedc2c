package issuer

import (
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"golang.org/x/crypto/blake2b"
)

// Signer produces and checks media signatures: a keyed BLAKE2b-256 MAC over
// a resource string and its expiry, base64url encoded.
type Signer struct {
	key [blake2b.Size256]byte
}

// NewSigner derives a fixed-size MAC key from secret.
func NewSigner(secret string) *Signer {
	return &Signer{key: blake2b.Sum256([]byte(secret))}
}

// Sign returns the signature of resource valid until ts (unix seconds).
func (s *Signer) Sign(resource string, ts int64) string {
	mac, _ := blake2b.New256(s.key[:]) // errors only for keys over 64 bytes
	mac.Write([]byte(resource))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks sign for resource. A signature stays valid through the
// second named by ts.
func (s *Signer) Verify(resource, sign string, ts int64, now time.Time) error {
	if sign == "" || ts == 0 {
		return common.ErrInvalidSignature
	}
	want := s.Sign(resource, ts)
	if subtle.ConstantTimeCompare([]byte(want), []byte(sign)) != 1 {
		return common.ErrInvalidSignature
	}
	if now.Unix() > ts {
		return common.ErrSignatureExpired
	}
	return nil
}

// readResource names a signed GET of an object path such as "/id/name".
func readResource(path string) string {
	return "GET " + path
}

// uploadResource names a signed PUT of name carrying metadata.
func uploadResource(name, metadata string) string {
	return "PUT /" + name + "\n" + metadata
}
