// Package oauth2idp is an identity provider backed by an OAuth2 token
// endpoint, using the resource-owner password grant for login and the
// refresh_token grant for refresh. Endpoints come from OIDC discovery.
package oauth2idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/idp"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/jrsteele09/go-auth-session/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Provider implements idp.Provider against an OAuth2 authorization server.
type Provider struct {
	oauthConfig      *oauth2.Config
	verifier         *oidc.IDTokenVerifier
	httpClient       *http.Client
	permissionsClaim string
	nowFunc          func() time.Time
	logger           zerolog.Logger
}

var _ idp.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithHTTPClient sets the client used for discovery and token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithVerifier verifies returned ID tokens and reads identity from them.
func WithVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(p *Provider) {
		p.verifier = verifier
	}
}

// WithPermissionsClaim names the access-token claim holding permissions.
func WithPermissionsClaim(claim string) Option {
	return func(p *Provider) {
		p.permissionsClaim = claim
	}
}

// WithNowFunc sets the clock used to resolve relative expiries (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

// NewWithConfig creates a provider for a known token endpoint.
func NewWithConfig(oauthConfig *oauth2.Config, options ...Option) *Provider {
	p := &Provider{
		oauthConfig:      oauthConfig,
		permissionsClaim: "permissions",
		nowFunc:          time.Now,
		logger:           log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Discover resolves the issuer's endpoints via OIDC discovery and verifies
// ID tokens against its key set.
func Discover(ctx context.Context, cfg config.ProviderConfig, options ...Option) (*Provider, error) {
	if cfg.GetIssuerURL() == "" || cfg.GetClientID() == "" {
		return nil, errors.New("[oauth2idp.Discover] issuer and client id are required")
	}

	p := NewWithConfig(nil, append([]Option{WithPermissionsClaim(cfg.GetPermissionsClaim())}, options...)...)
	oidcProvider, err := oidc.NewProvider(p.clientContext(ctx), cfg.GetIssuerURL())
	if err != nil {
		return nil, fmt.Errorf("[oauth2idp.Discover] failed to init oidc provider: %w: %w", autherrors.ErrNetworkUnavailable, err)
	}

	p.oauthConfig = &oauth2.Config{
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       cfg.GetScopes(),
	}
	if p.verifier == nil {
		p.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: cfg.GetClientID()})
	}
	return p, nil
}

func (p *Provider) Login(ctx context.Context, username, password string) (sessions.Credentials, error) {
	ctx = p.clientContext(ctx)
	token, err := p.oauthConfig.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		p.logger.Warn().Err(err).Msg("password grant failed")
		return sessions.Credentials{}, classify("[Provider.Login]", err, autherrors.ErrCredentialsRejected)
	}
	return p.credentials(ctx, token)
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (sessions.Credentials, error) {
	if refreshToken == "" {
		return sessions.Credentials{}, fmt.Errorf("[Provider.Refresh] empty refresh token: %w", autherrors.ErrRefreshFailed)
	}
	ctx = p.clientContext(ctx)
	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		p.logger.Warn().Err(err).Msg("refresh grant failed")
		return sessions.Credentials{}, classify("[Provider.Refresh]", err, autherrors.ErrRefreshFailed)
	}
	return p.credentials(ctx, token)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) credentials(ctx context.Context, token *oauth2.Token) (sessions.Credentials, error) {
	creds := sessions.Credentials{
		AccessToken:      token.AccessToken,
		AccessExpiresAt:  token.Expiry,
		RefreshToken:     token.RefreshToken,
		RefreshExpiresAt: refreshExpiry(token, p.nowFunc()),
	}

	if claims, err := jwt.ParseUnverified(token.AccessToken, p.permissionsClaim); err == nil {
		creds.Identity = claims.Identity()
		creds.Permissions = claims.Permissions
		if creds.AccessExpiresAt.IsZero() {
			creds.AccessExpiresAt = claims.ExpiresAt
		}
	} else if scope, ok := token.Extra("scope").(string); ok {
		creds.Permissions = sessions.NewPermissions(strings.Fields(scope)...)
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" && p.verifier != nil {
		identity, err := p.verifyIDToken(ctx, rawIDToken)
		if err != nil {
			return sessions.Credentials{}, fmt.Errorf("[Provider.credentials] id_token verification failed: %w: %w", autherrors.ErrCredentialsRejected, err)
		}
		creds.Identity = mergeIdentity(identity, creds.Identity)
	}
	return creds, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, rawIDToken string) (sessions.Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return sessions.Identity{}, err
	}

	var claims struct {
		Subject  string `json:"sub"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		TenantID string `json:"tenant"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return sessions.Identity{}, fmt.Errorf("id_token claims parse failed: %w", err)
	}
	return sessions.Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		TenantID: claims.TenantID,
	}, nil
}

// mergeIdentity prefers verified ID-token attributes, filling blanks from the access token.
func mergeIdentity(verified, fallback sessions.Identity) sessions.Identity {
	if verified.UserID == "" {
		verified.UserID = fallback.UserID
	}
	if verified.Email == "" {
		verified.Email = fallback.Email
	}
	if verified.Name == "" {
		verified.Name = fallback.Name
	}
	if verified.TenantID == "" {
		verified.TenantID = fallback.TenantID
	}
	return verified
}

// refreshExpiry reads the non-standard refresh_expires_in extension (Keycloak).
func refreshExpiry(token *oauth2.Token, now time.Time) time.Time {
	var seconds int64
	switch v := token.Extra("refresh_expires_in").(type) {
	case float64:
		seconds = int64(v)
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(v, 10, 64)
	}
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}

// classify maps a token-endpoint failure onto the error taxonomy: a response
// from the server below 500 is a rejection, anything else is the network.
func classify(op string, err error, rejected error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s %w: %w", op, autherrors.ErrNetworkUnavailable, err)
		}
		return fmt.Errorf("%s %w: %w", op, rejected, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %w: %w", op, autherrors.ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%s %w: %w", op, rejected, err)
}
