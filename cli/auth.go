// ABOUTME: Google OAuth setup command
// ABOUTME: Runs the browser consent flow and stores the token used by the Gmail and Calendar transports
package cli

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/harperreed/relance/config"
	"github.com/harperreed/relance/transport"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

// AuthCommand authorizes relance to send mail and write calendar events.
func AuthCommand(cfg *config.Config, configPath string, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	clientID := fs.String("client-id", cfg.GoogleClientID, "Google OAuth client ID")
	_ = fs.Parse(args)

	if *clientID == "" {
		return fmt.Errorf("--client-id is required (or set RELANCE_GOOGLE_CLIENT_ID)")
	}

	secret := cfg.GoogleClientSecret
	if secret == "" {
		if !isTerminal(os.Stdin) {
			return fmt.Errorf("google client secret not configured. Set RELANCE_GOOGLE_CLIENT_SECRET")
		}
		fmt.Print("Google client secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}

	ctx := context.Background()
	oauthConfig := transport.NewOAuthConfig(*clientID, secret)

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}

		token, err := oauthConfig.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		if err := transport.SaveToken(transport.TokenPath(), token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Token saved to %s\n", transport.TokenPath())

		if cfg.GoogleClientID != *clientID || cfg.GoogleClientSecret != secret {
			cfg.GoogleClientID = *clientID
			cfg.GoogleClientSecret = secret
			if err := cfg.Save(configPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Printf("✓ Credentials saved to config\n")
		}
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
