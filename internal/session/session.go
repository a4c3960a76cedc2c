// Package session holds the identity of the signed-in user and builds the
// endpoints that depend on it.
package session

import (
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/remotestorage/internal/netx"
)

// DefaultSignPath is where the API signs media read URLs.
const DefaultSignPath = "/api/media/sign"

// Holder stores the current session token. The zero value has no session.
type Holder struct {
	mu    sync.RWMutex
	token string
}

func NewHolder(token string) *Holder {
	return &Holder{token: token}
}

// Set starts a new session, replacing any previous one.
func (h *Holder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Clear ends the current session.
func (h *Holder) Clear() {
	h.Set("")
}

func (h *Holder) CurrentSessionToken() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token, h.token != ""
}

// URLBuilder derives the media sign endpoint from an API endpoint. When the
// caller passes no endpoint, Base is used.
type URLBuilder struct {
	Base     string
	SignPath string
}

func (b URLBuilder) SignEndpoint(endpoint string) (*url.URL, bool) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = b.Base
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, false
	}

	p := b.SignPath
	if p == "" {
		p = DefaultSignPath
	}

	u, err := netx.JoinURL(endpoint, p, nil)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}
