// Package jwt reads claims from access tokens the client holds. Tokens are
// parsed without signature verification; the authority verifies them when
// they are presented, and the client only needs the expiry and the identity
// attributes for display and permission checks.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/jrsteele09/go-auth-session/sessions"
)

// Claims are the session-relevant claims of an access or ID token.
type Claims struct {
	Subject     string    // "sub"
	Email       string    // "email"
	Name        string    // "name"
	TenantID    string    // "tenant"
	ExpiresAt   time.Time // "exp", zero when absent
	Permissions sessions.Permissions
}

// Identity returns the identity carried by the claims.
func (c *Claims) Identity() sessions.Identity {
	return sessions.Identity{
		UserID:   c.Subject,
		Email:    c.Email,
		Name:     c.Name,
		TenantID: c.TenantID,
	}
}

// ParseUnverified extracts Claims from a raw JWT. permissionsClaim names the
// claim holding the permission list; when it is absent the space-separated
// "scope" claim is used. Permissions are undefined when neither is present.
func ParseUnverified(rawToken, permissionsClaim string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("[jwt.ParseUnverified] empty token")
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("[jwt.ParseUnverified] failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[jwt.ParseUnverified] error extracting claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	tenant, _ := claims["tenant"].(string)

	c := &Claims{
		Subject:  sub,
		Email:    email,
		Name:     name,
		TenantID: tenant,
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	c.Permissions = permissions(claims, permissionsClaim)
	return c, nil
}

func permissions(claims jwtlib.MapClaims, claimName string) sessions.Permissions {
	if claimName != "" {
		if values, ok := utils.ClaimStrings(claims[claimName]); ok {
			return sessions.NewPermissions(values...)
		}
	}
	if scope, ok := claims["scope"].(string); ok {
		return sessions.NewPermissions(strings.Fields(scope)...)
	}
	return sessions.Permissions{}
}
