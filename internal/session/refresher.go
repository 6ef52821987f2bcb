package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/riverajo/fitness-app/internal/apperrors"
)

const defaultCookieName = "refreshtoken"

// HTTPRefresher rotates the refresh credential against the server's
// /auth/refresh endpoint.
//
// Outcome mapping is the heart of it: a transport-level failure becomes
// ErrOffline (the session may still be fine, we just could not ask), an
// explicit 401 becomes ErrUnauthenticated (the session is dead, the stored
// credential is cleared).
type HTTPRefresher struct {
	BaseURL string
	Client  *http.Client

	// Channel holding the refresh credential. With a cookie-jar client the
	// jar does the carrying and CookieChannel (a no-op) is the right choice.
	Channel CredentialChannel

	// CookieName the server expects; "refreshtoken" if empty
	CookieName string
}

func (r *HTTPRefresher) Rotate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/auth/refresh", nil)
	if err != nil {
		return "", err
	}

	cookieName := r.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	if r.Channel != nil {
		raw, err := r.Channel.Load(ctx)
		if err == nil && raw != "" {
			req.AddCookie(&http.Cookie{Name: cookieName, Value: raw})
		}
	}

	resp, err := r.client().Do(req)
	if err != nil {
		// Timeout, refused connection, DNS... the server never answered,
		// so this is not a verdict on the session
		return "", fmt.Errorf("%w: %w", apperrors.ErrOffline, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		// fine

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if r.Channel != nil {
			_ = r.Channel.Clear(ctx)
		}
		return "", apperrors.ErrUnauthenticated

	default:
		return "", fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}

	access, found := strings.CutPrefix(resp.Header.Get("Authorization"), "Bearer ")
	if !found || access == "" {
		return "", fmt.Errorf("refresh response carries no access token")
	}

	if r.Channel != nil {
		for _, cookie := range resp.Cookies() {
			if cookie.Name == cookieName && cookie.Value != "" {
				_ = r.Channel.Store(ctx, cookie.Value)
			}
		}
	}

	return access, nil
}

func (r *HTTPRefresher) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}
