// Package kite assembles authenticated broker sessions from environment
// credentials: either a Kite Connect app (api_key + daily access token) or a
// browser session (user_id + enctoken).
package kite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"github.com/deepuanant/tickrelay/internal/config"
	"github.com/deepuanant/tickrelay/internal/upstream"
)

// NewDialer builds the upstream dialer for the configured auth method.
// For the API method the daily access-token file must already exist
// (see cmd/login).
func NewDialer(creds *config.Credentials, connectTimeout time.Duration) (upstream.Dialer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	switch creds.AuthMethod {
	case config.AuthMethodAPI:
		token, err := LoadAccessToken(creds.AccessTokenDir)
		if err != nil {
			return nil, fmt.Errorf("load access token (run the login command first): %w", err)
		}
		return &upstream.KiteDialer{
			APIKey:         creds.APIKey,
			AccessToken:    token,
			ConnectTimeout: connectTimeout,
		}, nil

	case config.AuthMethodEnctoken:
		return &upstream.EnctokenDialer{
			UserID:         creds.UserID,
			Enctoken:       creds.Enctoken,
			ConnectTimeout: connectTimeout,
		}, nil
	}

	return nil, fmt.Errorf("invalid auth method %q", creds.AuthMethod)
}

// LoginURL returns the Kite Connect login page for the app.
func LoginURL(apiKey string) string {
	return kiteconnect.New(apiKey).GetLoginURL()
}

// GenerateSession exchanges a request token for an access token.
func GenerateSession(apiKey, apiSecret, requestToken string) (string, error) {
	kc := kiteconnect.New(apiKey)
	session, err := kc.GenerateSession(requestToken, apiSecret)
	if err != nil {
		return "", fmt.Errorf("generate session: %w", err)
	}
	return session.AccessToken, nil
}

// AccessTokenPath returns the dated token file for today. Access tokens
// expire daily, so yesterday's file is simply never read again.
func AccessTokenPath(dir string) string {
	return filepath.Join(dir, time.Now().Format("2006-01-02")+".json")
}

// LoadAccessToken reads today's access token.
func LoadAccessToken(dir string) (string, error) {
	data, err := os.ReadFile(AccessTokenPath(dir))
	if err != nil {
		return "", err
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", fmt.Errorf("parse access token file: %w", err)
	}
	return token, nil
}

// SaveAccessToken writes today's access token.
func SaveAccessToken(dir, token string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(AccessTokenPath(dir), data, 0o600)
}
