package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/riverajo/fitness-app/internal/apperrors"
)

// Client is the transport adapter: it attaches the coordinator's access
// token to outbound API calls, flags 401 responses as authentication
// failures, and lets the coordinator handle the refresh-and-retry dance.
type Client struct {
	baseURL    string
	http       *http.Client
	channel    CredentialChannel
	cookieName string
	coord      *Coordinator
}

type ClientConfig struct {
	BaseURL string

	// HTTPClient defaults to a fresh client with a cookie jar, so the
	// HttpOnly refresh cookie round-trips without the code touching it
	HTTPClient *http.Client

	// Channel defaults to CookieChannel (jar-carried credential)
	Channel CredentialChannel

	// CookieName the server uses for the refresh token
	CookieName string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url must not be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}

	channel := cfg.Channel
	if channel == nil {
		channel = CookieChannel{}
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	refresher := &HTTPRefresher{
		BaseURL:    cfg.BaseURL,
		Client:     httpClient,
		Channel:    channel,
		CookieName: cookieName,
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		http:       httpClient,
		channel:    channel,
		cookieName: cookieName,
		coord:      NewCoordinator(refresher),
	}, nil
}

// Coordinator exposes the session state machine for callers that need to
// inspect status or force logout
func (c *Client) Coordinator() *Coordinator {
	return c.coord
}

// JSON performs one API call under the coordinator's supervision: current
// token attached, one transparent refresh-and-retry on 401.
func (c *Client) JSON(ctx context.Context, method string, path string, body any, out any, opts ...OpOption) error {
	return c.coord.Do(ctx, func(ctx context.Context, accessToken string) error {
		var reqBody *bytes.Buffer
		if body != nil {
			reqBody = &bytes.Buffer{}
			if err := json.NewEncoder(reqBody).Encode(body); err != nil {
				return err
			}
		} else {
			reqBody = bytes.NewBuffer(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrOffline, err)
		}
		defer resp.Body.Close() // nolint:errcheck

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return apperrors.ErrUnauthenticated
		case resp.StatusCode >= 400:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, opts...)
}

type authPayload struct {
	Message string `json:"message"`
	User    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Login authenticates and installs the issued pair: access token into the
// coordinator, refresh credential into the channel (or the jar).
func (c *Client) Login(ctx context.Context, username string, password string) error {
	return c.authenticate(ctx, "/auth/login", username, password)
}

// Register creates the account and installs the issued pair
func (c *Client) Register(ctx context.Context, username string, password string) error {
	return c.authenticate(ctx, "/auth/register", username, password)
}

// Logout revokes the server-side chain and drops all client-held state.
// The coordinator ends up unauthenticated whatever the server said.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		_ = c.channel.Clear(ctx)
		c.coord.ClearToken()
	}()

	req, err := c.refreshCredentialRequest(ctx, "/auth/logout")
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOffline, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authenticate(ctx context.Context, path string, username string, password string) error {
	body, err := json.Marshal(map[string]string{"login": username, "password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOffline, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	access, found := strings.CutPrefix(resp.Header.Get("Authorization"), "Bearer ")
	if !found || access == "" {
		return fmt.Errorf("auth response carries no access token")
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.cookieName && cookie.Value != "" {
			_ = c.channel.Store(ctx, cookie.Value)
		}
	}

	var payload authPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	c.coord.SetToken(access)
	return nil
}

// refreshCredentialRequest builds a request that carries the stored refresh
// credential the same way the rotate call does
func (c *Client) refreshCredentialRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.channel.Load(ctx)
	if err == nil && raw != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: raw})
	}

	return req, nil
}
