package remotestorage

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// upEngine performs one upload attempt: credential negotiation, then the
// transfer. done is called exactly once with Key and Link filled in.
type upEngine interface {
	upload(ctx context.Context, endpoint string, center Center, item *Item, done func(UploadedMeta, error))
}

// negotiation is the per-call state tracked on the mux while credentials
// are being issued.
type negotiation struct {
	ctx  context.Context
	item *Item
	done func(UploadedMeta, error)
}

type negotiator struct {
	kind    string
	channel transport.Channel
	mux     *transport.Mux
}

func (n negotiator) negotiate(ctx context.Context, endpoint string, center Center, item *Item, done func(UploadedMeta, error)) error {
	id := n.mux.Track(&negotiation{ctx: ctx, item: item, done: done})

	headers := map[string]string{common.RequestIDHeaderName: uuid.NewString()}
	if h := center.Auth.header(); h != "" {
		headers[common.AuthorizationHeaderName] = h
	}

	err := n.channel.Send(ctx, transport.Request{
		Kind:          n.kind,
		CorrelationID: id,
		Endpoint:      endpoint,
		Path:          center.Path,
		Headers:       headers,
		Query:         credentialQuery(item.File),
	})
	if err != nil {
		n.mux.Forget(id)
		return err
	}
	return nil
}

func accessOf(f File) Access {
	if f.Access == "" {
		return AccessPublicRead
	}
	return f.Access
}

// credentialQuery declares the file to the issuer; explicit Params win.
func credentialQuery(f File) map[string]string {
	q := map[string]string{
		"name":   adaptiveName(f.Name),
		"size":   strconv.Itoa(len(f.Contents)),
		"mime":   f.Mime,
		"access": string(accessOf(f)),
	}
	if f.MediaType != "" {
		q["media_type"] = f.MediaType
	}
	if f.Downloadable {
		q["downloadable"] = "true"
	}
	if f.Duration > 0 {
		q["duration"] = strconv.Itoa(int(f.Duration.Seconds()))
	}
	if f.Width > 0 && f.Height > 0 {
		q["width"] = strconv.Itoa(f.Width)
		q["height"] = strconv.Itoa(f.Height)
	}
	for k, v := range f.Params {
		q[k] = v
	}
	return q
}

// adaptiveName makes a display name safe for object keys: diacritics are
// stripped, letters lower-cased and spaces replaced by underscores.
func adaptiveName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ReplaceAll(strings.ToLower(folded), " ", "_")
}
