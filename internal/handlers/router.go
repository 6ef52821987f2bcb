package handlers

import (
	"net/http"

	"github.com/riverajo/fitness-app/internal/handlers/middleware"
	"github.com/riverajo/fitness-app/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter wires the session endpoints and the protected API surface.
// Everything under /api/user requires a valid bearer access token; the
// /auth endpoints never do.
func NewRouter(
	auth authService,
	l logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(auth, l)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	authmux := http.NewServeMux()
	authmux.Handle("POST /register", handleRegister(auth, l))
	authmux.Handle("POST /login", handleLogin(auth, l))
	authmux.Handle("POST /refresh", handleTokenRefresh(auth, l))
	authmux.Handle("POST /logout", handleLogout(auth, l))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe()))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", authmux))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))

	handler := chain(root,
		middleware.LoggerMiddleware(l),
	)

	return handler
}
