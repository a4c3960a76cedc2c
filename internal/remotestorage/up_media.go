package remotestorage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/remotestorage/internal/common"
	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
)

const kindMediaCredentials = "media-credentials"

type mediaCredentials struct {
	URL       string   `json:"url"`
	Metadata  string   `json:"metadata"`
	Sign      string   `json:"sign"`
	TS        int64    `json:"ts"`
	ErrorList []string `json:"error_list,omitempty"`
}

// mediaUp uploads with a signed PUT to the media host.
type mediaUp struct {
	negotiator
	client *http.Client
	logger logging.Logger
}

func newMediaUp(channel transport.Channel, mux *transport.Mux, client *http.Client, logger logging.Logger) *mediaUp {
	u := &mediaUp{
		negotiator: negotiator{kind: kindMediaCredentials, channel: channel, mux: mux},
		client:     client,
		logger:     logger,
	}
	mux.Handle(kindMediaCredentials, u.handleCredentials)
	return u
}

func (u *mediaUp) upload(ctx context.Context, endpoint string, center Center, item *Item, done func(UploadedMeta, error)) {
	if err := u.negotiate(ctx, endpoint, center, item, done); err != nil {
		done(UploadedMeta{}, fmt.Errorf("%w: %v", ErrCannotPrepare, err))
	}
}

func (u *mediaUp) handleCredentials(resp transport.Response, state any) {
	call, ok := state.(*negotiation)
	if !ok {
		return
	}

	creds, err := decodeMediaCredentials(resp)
	if err != nil {
		u.logger.Warn(call.ctx, "media credentials rejected", "upload_id", call.item.ID, "status", resp.StatusCode, "error", err)
		call.done(UploadedMeta{}, err)
		return
	}

	call.done(u.transfer(call.ctx, call.item.File, creds))
}

func decodeMediaCredentials(resp transport.Response) (mediaCredentials, error) {
	if resp.Err != nil {
		return mediaCredentials{}, unknown(0, resp.Err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return mediaCredentials{}, ErrBadRequest
	case resp.StatusCode == http.StatusUnauthorized:
		return mediaCredentials{}, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return mediaCredentials{}, ErrNotFound
	case !resp.OK():
		return mediaCredentials{}, unknown(resp.StatusCode, nil)
	}

	var creds mediaCredentials
	if err := json.Unmarshal(resp.Body, &creds); err != nil {
		return mediaCredentials{}, ErrUnableToDecode
	}
	if slices.Contains(creds.ErrorList, common.FileTransferDisabled) {
		return mediaCredentials{}, ErrFileTransferDisabled
	}
	if creds.URL == "" || creds.Metadata == "" || creds.Sign == "" || creds.TS == 0 {
		return mediaCredentials{}, ErrUnableToDecode
	}
	return creds, nil
}

func (u *mediaUp) transfer(ctx context.Context, file File, creds mediaCredentials) (UploadedMeta, error) {
	base, err := url.Parse(creds.URL)
	if err != nil || !base.IsAbs() {
		return UploadedMeta{}, ErrCannotPrepare
	}

	target := *base
	target.Path = "/" + adaptiveName(file.Name)
	target.RawPath = ""
	target.RawQuery = strings.Join([]string{
		common.SignParam + "=" + url.QueryEscape(creds.Sign),
		common.TSParam + "=" + strconv.FormatInt(creds.TS, 10),
		common.PublicParam,
	}, "&")

	res, err := netx.PutObject(ctx, u.client, target.String(), file.Mime,
		map[string]string{common.MetadataHeaderName: creds.Metadata}, file.Contents)
	if err != nil {
		return UploadedMeta{}, unknown(0, err)
	}

	if res.StatusCode != http.StatusCreated {
		return UploadedMeta{}, uploadError(res.StatusCode)
	}

	location := res.Header.Get("Location")
	return UploadedMeta{
		Key:  location,
		Link: strings.TrimSuffix(creds.URL, "/") + "/" + strings.TrimPrefix(location, "/"),
	}, nil
}
