// ABOUTME: OAuth2 wiring for the CRM marketplace app
// ABOUTME: Covers the authorize URL and the initial code exchange
package crm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/restriden/simpli-immo-sub001/config"
)

// DefaultScopes are the CRM permissions the sync needs.
var DefaultScopes = []string{
	"contacts.readonly",
	"contacts.write",
	"conversations.readonly",
	"conversations/message.readonly",
	"conversations/message.write",
	"calendars.readonly",
	"calendars/events.readonly",
	"opportunities.readonly",
}

// OAuthConfig builds the oauth2 configuration for the CRM. The CRM wants
// client credentials in the request body, not basic auth.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.CRMAuthURL,
			TokenURL:  cfg.CRMTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL is the marketplace page where an agent picks the location to
// connect. state carries the internal user id through the redirect.
func AuthorizeURL(cfg *config.Config, state string) string {
	return OAuthConfig(cfg).AuthCodeURL(state)
}

// TokenGrant is the outcome of an authorization-code exchange. The CRM
// returns the granted location alongside the standard token fields.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	LocationID   string
	CompanyID    string
	UserType     string
}

// ExchangeCode swaps an authorization code for tokens.
func ExchangeCode(ctx context.Context, cfg *config.Config, code string) (*TokenGrant, error) {
	token, err := OAuthConfig(cfg).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	grant := &TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if v, ok := token.Extra("locationId").(string); ok {
		grant.LocationID = v
	}
	if v, ok := token.Extra("companyId").(string); ok {
		grant.CompanyID = v
	}
	if v, ok := token.Extra("userType").(string); ok {
		grant.UserType = v
	}
	if grant.ExpiresAt.IsZero() {
		grant.ExpiresAt = time.Now().Add(time.Hour)
	}

	return grant, nil
}
