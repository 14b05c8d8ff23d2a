package config

import "strings"

type ProviderConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetPermissionsClaim() string
}

type providerFile struct {
	Issuer           string   `toml:"issuer"`
	ClientID         string   `toml:"client_id"`
	ClientSecret     string   `toml:"client_secret"`
	Scopes           []string `toml:"scopes"`
	PermissionsClaim string   `toml:"permissions_claim"`
}

type Provider struct {
	file *providerFile
}

var _ ProviderConfig = Provider{file: &providerFile{}}

// GetIssuerURL returns the OIDC issuer (e.g., "https://auth.example.com")
func (p Provider) GetIssuerURL() string {
	return GetEnv("OIDC_ISSUER", p.file.Issuer, "http://localhost:8080")
}

func (p Provider) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", p.file.ClientID)
}

func (p Provider) GetClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", p.file.ClientSecret)
}

// GetScopes reads a space or comma separated OIDC_SCOPES, then the file list.
func (p Provider) GetScopes() []string {
	if raw := GetEnv("OIDC_SCOPES"); raw != "" {
		return strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	}
	if len(p.file.Scopes) > 0 {
		return p.file.Scopes
	}
	return []string{"openid", "profile", "email", "offline_access"}
}

func (p Provider) GetPermissionsClaim() string {
	return GetEnv("PERMISSIONS_CLAIM", p.file.PermissionsClaim, "permissions")
}
