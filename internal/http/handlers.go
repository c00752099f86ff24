package http

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"budget/internal/auth"
	"budget/internal/core"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session"

type ctxKey int

const identityKey ctxKey = iota

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserResponse(u core.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) servePage(static fs.FS, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := fs.ReadFile(static, name)
		if err != nil {
			slog.ErrorContext(r.Context(), "Page not embedded", "page", name, "error", err)
			http.Error(w, "page not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, err := parseCredentials(NewRequestBodyParser(w, r))
	if err != nil {
		writeError(w, r, "register", err)
		return
	}

	user, err := s.auth.Register(r.Context(), creds.Name, creds.Email, creds.Password)
	if err != nil {
		writeError(w, r, "register", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, registerResponse{
		Message: "User registered",
		User:    toUserResponse(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := parseCredentials(NewRequestBodyParser(w, r))
	if err != nil {
		writeError(w, r, "login", err)
		return
	}

	user, sess, err := s.auth.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			slog.WarnContext(r.Context(), "Login failed", "client_ip", s.detector.ClientIP(r))
			writeMessage(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, r, "login", err)
		return
	}

	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID)
	writeJSON(w, r, http.StatusOK, loginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      toUserResponse(user),
	})
}

// handleLogout is idempotent: an unknown or missing token still clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		if err := s.auth.Logout(r.Context(), token); err != nil {
			writeError(w, r, "logout", err)
			return
		}
	}
	s.clearSessionCookie(w)
	writeMessage(w, r, http.StatusOK, "Logged out")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.User(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, "current user", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toUserResponse(user))
}

// requireOwner resolves the caller from the bearer token or the session
// cookie. Handlers behind it read the owner id from the request context and
// never from the payload.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		id, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, "authenticate", err)
			return
		}
		if id.Renewed {
			if _, err := r.Cookie(SessionCookie); err == nil {
				s.setSessionCookie(w, id.Token, id.ExpiresAt)
			}
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey).(auth.Identity)
	return id
}

func ownerFrom(r *http.Request) string {
	return identityFrom(r.Context()).UserID
}

// requestToken prefers the Authorization header over the cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
