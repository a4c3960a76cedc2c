package remotestorage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/dmitrijs2005/remotestorage/internal/netx"
	"github.com/dmitrijs2005/remotestorage/internal/transport"
)

const kindFilesCredentials = "files-credentials"

// filesCredentials is a presigned POST policy.
type filesCredentials struct {
	URL           string `json:"url"`
	Key           string `json:"key"`
	Date          string `json:"date"`
	Policy        string `json:"policy"`
	Credential    string `json:"credential"`
	Algorithm     string `json:"algorithm"`
	Signature     string `json:"signature"`
	SecurityToken string `json:"security_token,omitempty"`
}

// filesUp uploads through a presigned POST form.
type filesUp struct {
	negotiator
	client *http.Client
	logger logging.Logger
}

func newFilesUp(channel transport.Channel, mux *transport.Mux, client *http.Client, logger logging.Logger) *filesUp {
	u := &filesUp{
		negotiator: negotiator{kind: kindFilesCredentials, channel: channel, mux: mux},
		client:     client,
		logger:     logger,
	}
	mux.Handle(kindFilesCredentials, u.handleCredentials)
	return u
}

func (u *filesUp) upload(ctx context.Context, endpoint string, center Center, item *Item, done func(UploadedMeta, error)) {
	if err := u.negotiate(ctx, endpoint, center, item, done); err != nil {
		done(UploadedMeta{}, fmt.Errorf("%w: %v", ErrCannotPrepare, err))
	}
}

func (u *filesUp) handleCredentials(resp transport.Response, state any) {
	call, ok := state.(*negotiation)
	if !ok {
		return
	}

	creds, err := decodeFilesCredentials(resp)
	if err != nil {
		u.logger.Warn(call.ctx, "files credentials rejected", "upload_id", call.item.ID, "status", resp.StatusCode, "error", err)
		call.done(UploadedMeta{}, err)
		return
	}

	call.done(u.transfer(call.ctx, call.item.File, creds))
}

func decodeFilesCredentials(resp transport.Response) (filesCredentials, error) {
	if !resp.OK() {
		return filesCredentials{}, ErrCannotPrepare
	}

	var doc struct {
		AccessCredential *filesCredentials `json:"access_credential"`
		filesCredentials
	}
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return filesCredentials{}, fmt.Errorf("%w: %v", ErrCannotPrepare, err)
	}

	creds := doc.filesCredentials
	if doc.AccessCredential != nil {
		creds = *doc.AccessCredential
	}

	if u, err := url.Parse(creds.URL); err != nil || !u.IsAbs() || creds.Key == "" {
		return filesCredentials{}, ErrCannotPrepare
	}
	return creds, nil
}

func (u *filesUp) transfer(ctx context.Context, file File, creds filesCredentials) (UploadedMeta, error) {
	name := adaptiveName(file.Name)
	access := accessOf(file)

	fields := []netx.Field{
		{Name: "acl", Value: string(access)},
		{Name: "key", Value: creds.Key},
	}
	if access != AccessPrivate {
		fields = append(fields, netx.Field{Name: "Content-Type", Value: file.Mime})
	}
	if file.Downloadable {
		fields = append(fields, netx.Field{Name: "Content-Disposition", Value: "attachment; filename*=UTF-8''" + url.PathEscape(name)})
	}
	fields = append(fields,
		netx.Field{Name: "X-Amz-Date", Value: creds.Date},
		netx.Field{Name: "Policy", Value: creds.Policy},
		netx.Field{Name: "X-Amz-Credential", Value: creds.Credential},
		netx.Field{Name: "X-Amz-Algorithm", Value: creds.Algorithm},
		netx.Field{Name: "X-Amz-Signature", Value: creds.Signature},
	)
	if creds.SecurityToken != "" {
		fields = append(fields, netx.Field{Name: "X-Amz-Security-Token", Value: creds.SecurityToken})
	}

	res, err := netx.PostForm(ctx, u.client, creds.URL, fields, netx.FilePart{
		Field:       "file",
		FileName:    name,
		ContentType: file.Mime,
		Data:        file.Contents,
	})
	if err != nil {
		return UploadedMeta{}, unknown(0, err)
	}

	switch res.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusCreated:
		return UploadedMeta{
			Key:  creds.Key,
			Link: strings.TrimSuffix(creds.URL, "/") + "/" + creds.Key,
		}, nil
	default:
		return UploadedMeta{}, uploadError(res.StatusCode)
	}
}
