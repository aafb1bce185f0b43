// ABOUTME: OAuth configuration and token management for Google APIs
// ABOUTME: Handles token storage at XDG paths and authenticated HTTP clients for Gmail and Calendar
package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// RedirectURL is where the local OAuth callback server listens.
const RedirectURL = "http://localhost:8080/oauth/callback"

// NewOAuthConfig creates OAuth2 config for sending mail and writing calendar events.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  RedirectURL,
		Scopes: []string{
			gmail.GmailSendScope,
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}

// TokenPath returns XDG-compliant path for storing OAuth tokens.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "relance", "google-credentials.json")
}

// SaveToken saves OAuth token to path.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	// Write token file with restricted permissions
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// LoadToken loads OAuth token from path.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	return &token, nil
}

// HTTPClient returns an auto-refreshing authenticated client.
func HTTPClient(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*http.Client, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured. Set RELANCE_GOOGLE_CLIENT_ID and RELANCE_GOOGLE_CLIENT_SECRET")
	}
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}
	return config.Client(ctx, token), nil
}
