package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverajo/fitness-app/internal/logger"
	"github.com/riverajo/fitness-app/internal/repository/memory"
	"github.com/riverajo/fitness-app/internal/service/auth"
	"github.com/riverajo/fitness-app/internal/service/auth/tokenmanager"
)

const refreshCookieName = "refreshtoken"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	storage := memory.NewStorage()
	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"}, storage.RefreshToken())
	require.NoError(t, err)

	service, err := auth.NewService(auth.Config{}, tokens, storage)
	require.NoError(t, err)

	server := httptest.NewServer(NewRouter(service, logger.NewNoOpLogger()))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) // nolint:errcheck
	return resp
}

func postWithCookie(t *testing.T, url string, cookie *http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) // nolint:errcheck
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == refreshCookieName {
			return cookie
		}
	}
	t.Fatal("response carries no refresh cookie")
	return nil
}

// registerUser registers a fresh user and hands back the issued credentials
func registerUser(t *testing.T, server *httptest.Server, username string) (access string, refresh *http.Cookie) {
	t.Helper()

	resp := postJSON(t, server.URL+"/auth/register", map[string]string{
		"login":    username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access, found := findBearer(resp)
	require.True(t, found, "register response must carry an access token")
	return access, refreshCookie(t, resp)
}

func findBearer(resp *http.Response) (string, bool) {
	header := resp.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}

func Test_HandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("issues tokens and echoes the user", func(t *testing.T) {
		server := newTestServer(t)

		resp := postJSON(t, server.URL+"/auth/register", map[string]string{
			"login":    "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, found := findBearer(resp)
		assert.True(t, found, "access token must ride the Authorization header")

		cookie := refreshCookie(t, resp)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly, "refresh cookie must be HttpOnly")
		assert.Equal(t, "/auth", cookie.Path, "refresh cookie must be scoped to the auth endpoints")
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.Positive(t, cookie.MaxAge)

		body := decodeBody(t, resp)
		assert.Equal(t, "User registered successfully", body["message"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "alice", user["username"])
		assert.NotEmpty(t, user["id"])
	})

	t.Run("duplicate username", func(t *testing.T) {
		server := newTestServer(t)
		registerUser(t, server, "alice")

		resp := postJSON(t, server.URL+"/auth/register", map[string]string{
			"login":    "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "User already exists", decodeBody(t, resp)["message"])
	})

	t.Run("validation failures", func(t *testing.T) {
		server := newTestServer(t)

		tests := []struct {
			name    string
			payload map[string]string
		}{
			{name: "short password", payload: map[string]string{"login": "alice", "password": "short"}},
			{name: "missing login", payload: map[string]string{"password": "password123"}},
			{name: "single char login", payload: map[string]string{"login": "a", "password": "password123"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp := postJSON(t, server.URL+"/auth/register", tt.payload)
				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
				assert.Equal(t, "validation_failed", decodeBody(t, resp)["error"])
			})
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		server := newTestServer(t)

		resp, err := http.Post(server.URL+"/auth/register", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "decoding_failed", decodeBody(t, resp)["error"])
	})
}

func Test_HandleLogin(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	registerUser(t, server, "alice")

	t.Run("valid credentials", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/login", map[string]string{
			"login":    "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, found := findBearer(resp)
		assert.True(t, found)
		assert.NotEmpty(t, refreshCookie(t, resp).Value)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/login", map[string]string{
			"login":    "alice",
			"password": "wrongpassword",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid username or password", decodeBody(t, resp)["message"])
	})

	t.Run("unknown user answers identically", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/login", map[string]string{
			"login":    "nobody",
			"password": "password123",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid username or password", decodeBody(t, resp)["message"])
	})
}

func Test_HandleTokenRefresh(t *testing.T) {
	t.Parallel()

	t.Run("rotates the pair", func(t *testing.T) {
		server := newTestServer(t)
		access, cookie := registerUser(t, server, "alice")

		resp := postWithCookie(t, server.URL+"/auth/refresh", cookie)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		newAccess, found := findBearer(resp)
		require.True(t, found)
		assert.NotEqual(t, access, newAccess)

		newCookie := refreshCookie(t, resp)
		assert.NotEqual(t, cookie.Value, newCookie.Value, "refresh token must rotate")
		assert.True(t, newCookie.HttpOnly)

		body := decodeBody(t, resp)
		assert.Equal(t, "Tokens refreshed successfully", body["message"])
	})

	t.Run("missing cookie", func(t *testing.T) {
		server := newTestServer(t)

		resp := postWithCookie(t, server.URL+"/auth/refresh", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Authentication required", decodeBody(t, resp)["message"])
	})

	t.Run("replay answers the same 401 and drops the cookie", func(t *testing.T) {
		server := newTestServer(t)
		_, cookie := registerUser(t, server, "alice")

		resp := postWithCookie(t, server.URL+"/auth/refresh", cookie)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		successor := refreshCookie(t, resp)

		// Same value again: replay
		replay := postWithCookie(t, server.URL+"/auth/refresh", cookie)
		require.Equal(t, http.StatusUnauthorized, replay.StatusCode)
		assert.Equal(t, "Authentication required", decodeBody(t, replay)["message"])

		dropped := refreshCookie(t, replay)
		assert.Empty(t, dropped.Value)
		assert.Negative(t, dropped.MaxAge, "failed refresh must expire the cookie")

		// The chain died with it, the legitimate successor is out too
		after := postWithCookie(t, server.URL+"/auth/refresh", successor)
		require.Equal(t, http.StatusUnauthorized, after.StatusCode)
		assert.Equal(t, "Authentication required", decodeBody(t, after)["message"])
	})

	t.Run("garbage cookie", func(t *testing.T) {
		server := newTestServer(t)

		resp := postWithCookie(t, server.URL+"/auth/refresh", &http.Cookie{Name: refreshCookieName, Value: "garbage"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Authentication required", decodeBody(t, resp)["message"])
	})
}

func Test_HandleLogout(t *testing.T) {
	t.Parallel()

	t.Run("revokes and clears", func(t *testing.T) {
		server := newTestServer(t)
		_, cookie := registerUser(t, server, "alice")

		resp := postWithCookie(t, server.URL+"/auth/logout", cookie)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Logged out", decodeBody(t, resp)["message"])

		dropped := refreshCookie(t, resp)
		assert.Empty(t, dropped.Value)
		assert.Negative(t, dropped.MaxAge)

		after := postWithCookie(t, server.URL+"/auth/refresh", cookie)
		require.Equal(t, http.StatusUnauthorized, after.StatusCode)
	})

	t.Run("without cookie still succeeds", func(t *testing.T) {
		server := newTestServer(t)

		resp := postWithCookie(t, server.URL+"/auth/logout", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Logged out", decodeBody(t, resp)["message"])
	})

	t.Run("twice with the same cookie", func(t *testing.T) {
		server := newTestServer(t)
		_, cookie := registerUser(t, server, "alice")

		for range 2 {
			resp := postWithCookie(t, server.URL+"/auth/logout", cookie)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})
}

func Test_ProtectedRoutes(t *testing.T) {
	t.Parallel()

	getMe := func(t *testing.T, server *httptest.Server, access string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+"/api/user/me", nil)
		require.NoError(t, err)
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() }) // nolint:errcheck
		return resp
	}

	t.Run("valid bearer token", func(t *testing.T) {
		server := newTestServer(t)
		access, _ := registerUser(t, server, "alice")

		resp := getMe(t, server, access)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "alice", decodeBody(t, resp)["username"])
	})

	t.Run("all failures share one answer", func(t *testing.T) {
		server := newTestServer(t)

		for _, access := range []string{"", "garbage", "a.b.c"} {
			resp := getMe(t, server, access)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "access %q", access)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, string(raw), "access %q", access)
		}
	})
}
