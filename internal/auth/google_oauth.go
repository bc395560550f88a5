// File: internal/auth/google_oauth.go
package auth

import (
	"context"
	"fmt"
	"net/http"

	"live_learning_backend/internal/common"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/platform/crypto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleOAuth runs the server-side authorization code flow and yields Google ID tokens.
type GoogleOAuth struct {
	oauthConfig *oauth2.Config
	cfg         *config.Config
	logger      *zap.Logger
}

// NewGoogleOAuth returns nil when Google sign-in is not configured.
func NewGoogleOAuth(cfg *config.Config, logger *zap.Logger) *GoogleOAuth {
	if !cfg.GoogleSignInEnabled() {
		return nil
	}
	return &GoogleOAuth{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		cfg:    cfg,
		logger: logger.Named("auth.google"),
	}
}

// setOAuthCookie sets a short-lived cookie for the state value.
func (g *GoogleOAuth) setOAuthCookie(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.cfg.OAuthStateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   g.cfg.OAuthCookieMaxAge,
		Secure:   g.cfg.OAuthCookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popOAuthCookie reads the state cookie and expires it.
func (g *GoogleOAuth) popOAuthCookie(c *gin.Context) (string, error) {
	cookie, err := c.Request.Cookie(g.cfg.OAuthStateCookieName)
	if err != nil {
		return "", fmt.Errorf("%s cookie not found: %w", g.cfg.OAuthStateCookieName, err)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.cfg.OAuthStateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   g.cfg.OAuthCookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return cookie.Value, nil
}

// LoginURL stores a fresh state in a cookie and returns Google's consent URL.
func (g *GoogleOAuth) LoginURL(c *gin.Context) (string, error) {
	state, err := crypto.NewOAuthState()
	if err != nil {
		g.logger.Error("Failed to generate OAuth state", zap.Error(err))
		return "", common.ErrInternalServer.WithDetails("Could not start Google sign-in.")
	}
	g.setOAuthCookie(c, state)
	return g.oauthConfig.AuthCodeURL(state), nil
}

// ExchangeIDToken checks the state cookie, redeems code and returns the ID token.
func (g *GoogleOAuth) ExchangeIDToken(c *gin.Context, code, state string) (string, error) {
	storedState, err := g.popOAuthCookie(c)
	if err != nil {
		g.logger.Warn("Google callback without state cookie", zap.Error(err))
		return "", common.ErrBadRequest.WithDetails("Invalid session or state mismatch.")
	}
	if state != storedState {
		g.logger.Warn("Google OAuth state mismatch")
		return "", common.ErrBadRequest.WithDetails("OAuth state mismatch. Possible CSRF attack.")
	}

	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, http.DefaultClient)
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		g.logger.Error("Failed to exchange Google auth code for token", zap.Error(err))
		return "", common.ErrServiceUnavailable.WithDetails("Could not exchange Google auth code.")
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		g.logger.Error("Google token response carried no id_token")
		return "", common.ErrServiceUnavailable.WithDetails("Google did not return an ID token.")
	}
	return rawIDToken, nil
}
