package idpfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/autherrors"
	"github.com/jrsteele09/go-auth-session/idp"
	"github.com/jrsteele09/go-auth-session/sessions"
)

// FakeProvider is an in-memory identity provider. Users map usernames to
// passwords; each successful call mints numbered tokens.
type FakeProvider struct {
	mu           sync.Mutex
	users        map[string]string
	permissions  sessions.Permissions
	now          func() time.Time
	accessTTL    time.Duration
	refreshTTL   time.Duration
	loginCalls   int
	refreshCalls int
	issued       int
	refreshable  map[string]string // refresh token -> username

	loginFunc   func(ctx context.Context, username, password string) (sessions.Credentials, error)
	refreshFunc func(ctx context.Context, refreshToken string) (sessions.Credentials, error)
	refreshGate <-chan struct{}
}

var _ idp.Provider = (*FakeProvider)(nil)

// NewFakeProvider creates a provider issuing tokens relative to now.
func NewFakeProvider(now func() time.Time) *FakeProvider {
	return &FakeProvider{
		users:       make(map[string]string),
		now:         now,
		accessTTL:   30 * time.Minute,
		refreshTTL:  24 * time.Hour,
		refreshable: make(map[string]string),
	}
}

// AddUser registers a username and password.
func (p *FakeProvider) AddUser(username, password string) *FakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[username] = password
	return p
}

// SetPermissions sets the permission set granted on every login.
func (p *FakeProvider) SetPermissions(perms ...string) *FakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissions = sessions.NewPermissions(perms...)
	return p
}

// SetTTL sets the lifetimes of minted access and refresh tokens.
func (p *FakeProvider) SetTTL(access, refresh time.Duration) *FakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTTL, p.refreshTTL = access, refresh
	return p
}

// OnLogin replaces the default Login behaviour. A nil fn restores it.
func (p *FakeProvider) OnLogin(fn func(ctx context.Context, username, password string) (sessions.Credentials, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginFunc = fn
}

// OnRefresh replaces the default Refresh behaviour. A nil fn restores it.
func (p *FakeProvider) OnRefresh(fn func(ctx context.Context, refreshToken string) (sessions.Credentials, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshFunc = fn
}

// GateRefresh makes Refresh block, after counting the call, until gate is
// closed or receives.
func (p *FakeProvider) GateRefresh(gate <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshGate = gate
}

// RevokeRefreshTokens makes every refresh token issued so far unusable.
func (p *FakeProvider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshable = make(map[string]string)
}

func (p *FakeProvider) Login(ctx context.Context, username, password string) (sessions.Credentials, error) {
	p.mu.Lock()
	p.loginCalls++
	fn := p.loginFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, username, password)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if want, ok := p.users[username]; !ok || want != password {
		return sessions.Credentials{}, fmt.Errorf("[FakeProvider.Login] %s: %w", username, autherrors.ErrCredentialsRejected)
	}
	return p.mintLocked(username), nil
}

func (p *FakeProvider) Refresh(ctx context.Context, refreshToken string) (sessions.Credentials, error) {
	p.mu.Lock()
	p.refreshCalls++
	fn, gate := p.refreshFunc, p.refreshGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return sessions.Credentials{}, fmt.Errorf("[FakeProvider.Refresh] %v: %w", ctx.Err(), autherrors.ErrNetworkUnavailable)
		}
	}
	if fn != nil {
		return fn(ctx, refreshToken)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	username, ok := p.refreshable[refreshToken]
	if !ok {
		return sessions.Credentials{}, fmt.Errorf("[FakeProvider.Refresh] unknown refresh token: %w", autherrors.ErrRefreshFailed)
	}
	delete(p.refreshable, refreshToken)
	return p.mintLocked(username), nil
}

// LoginCalls returns the number of Login invocations.
func (p *FakeProvider) LoginCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCalls
}

// RefreshCalls returns the number of Refresh invocations.
func (p *FakeProvider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

func (p *FakeProvider) mintLocked(username string) sessions.Credentials {
	p.issued++
	now := p.now()
	refresh := fmt.Sprintf("refresh-%d", p.issued)
	p.refreshable[refresh] = username
	return sessions.Credentials{
		AccessToken:      fmt.Sprintf("access-%d", p.issued),
		AccessExpiresAt:  now.Add(p.accessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(p.refreshTTL),
		Identity:         sessions.Identity{UserID: "user-" + username, Email: username + "@example.com", Name: username},
		Permissions:      p.permissions,
	}
}
