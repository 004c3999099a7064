package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

// authorizeTimeout bounds how long we wait for the operator to complete
// the browser consent flow.
const authorizeTimeout = 5 * time.Minute

const callbackAddr = ":8080"

// oauthConfigFor builds the OAuth2 client configuration shared by the
// interactive flow and the export token source.
func oauthConfigFor(config Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost" + callbackAddr + "/callback",
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

// Authorize runs the interactive consent flow for the ledger exporter: it
// starts a localhost callback listener, prints the consent URL, exchanges
// the returned code, and persists the token to config.TokenFile so later
// headless exports can refresh it.
func Authorize(ctx context.Context, config Config) (*oauth2.Token, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("OAuth2 client ID and secret are required to authorize")
	}
	if config.TokenFile == "" {
		return nil, fmt.Errorf("token file path is required to authorize")
	}

	oauthConfig := oauthConfigFor(config)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- errors.New("no authorization code in callback")
			_, _ = fmt.Fprint(w, "<html><body><h1>Authorization failed</h1><p>No code received; return to the terminal and retry.</p></body></html>")
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, "<html><body><h1>Authorized</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})
	server := &http.Server{Addr: callbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("callback listener: %w", err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	// Offline access so the saved token carries a refresh token.
	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	slog.Info("🔐 Google Sheets authorization required")
	slog.Info("Visit this URL to grant access", "url", authURL)

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-time.After(authorizeTimeout):
		return nil, fmt.Errorf("authorization timed out after %s", authorizeTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := saveToken(config.TokenFile, token); err != nil {
		return nil, err
	}
	slog.Info("Authorization complete, token saved", "file", config.TokenFile)

	return token, nil
}

// loadToken reads a previously saved token.
func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-configured token path
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
