// Package transport sends HTTP requests with the current session's bearer
// token and recovers from a 401 with one refresh-and-retry.
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session is the part of the session controller the transport needs.
type Session interface {
	AccessToken() (string, bool)
	HandleUnauthorized(ctx context.Context, failedAccessToken string) (sessions.Session, error)
}

// Transport is an http.RoundTripper that authorizes requests from a Session.
type Transport struct {
	session Session
	base    http.RoundTripper
	logger  zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying round tripper. The default is http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

func New(session Session, options ...Option) *Transport {
	t := &Transport{
		session: session,
		base:    http.DefaultTransport,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// NewClient returns an http.Client sending through a Transport.
func NewClient(session Session, options ...Option) *http.Client {
	return &http.Client{Transport: New(session, options...)}
}

// RoundTrip sends req with the current bearer token. On 401 it asks the
// session to refresh and, when that succeeds with a new token, resends the
// request once. Otherwise the 401 response is returned to the caller.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, _ := t.session.AccessToken()
	resp, err := t.base.RoundTrip(authorize(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}

	retry, ok := t.retryable(req)
	if !ok {
		return resp, nil
	}

	refreshed, err := t.session.HandleUnauthorized(req.Context(), token)
	if err != nil {
		t.logger.Debug().Err(err).Str("url", req.URL.Redacted()).Msg("refresh after 401 failed")
		return resp, nil
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == token {
		return resp, nil
	}

	drain(resp)
	return t.base.RoundTrip(authorize(retry, refreshed.AccessToken))
}

// retryable returns a fresh copy of req for resending, if its body can be replayed.
func (t *Transport) retryable(req *http.Request) (*http.Request, bool) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	retry.Body = body
	return retry, true
}

func authorize(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
