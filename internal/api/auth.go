package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// ─── Token Plumbing ─────────────────────────────────────────────────────────
// Tokens are HS256 JWTs whose subject is the account id. The engine never
// sees passwords: this layer hashes at registration and compares at login,
// storing only the bcrypt hash on the account.

type ctxKey int

const accountKey ctxKey = iota

// accountID returns the authenticated account id, empty outside the
// authenticated route group.
func accountID(r *http.Request) string {
	id, _ := r.Context().Value(accountKey).(string)
	return id
}

func (s *Server) issueToken(accountID string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	})
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Server) parseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}
	return claims.Subject, nil
}

// authenticate resolves the bearer token to an account and stashes the id
// in the request context. Tokens for deleted accounts are refused.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.JWTSecret == "" {
			writeError(w, http.StatusUnauthorized, "authentication disabled: no signing secret configured")
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.parseToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if _, err := s.eng.Account(id); err != nil {
			writeError(w, http.StatusUnauthorized, "unknown account")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin guards host-side endpoints with a shared key.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" || r.Header.Get("X-Admin-Key") != s.cfg.AdminKey {
			writeError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Registration and Login ─────────────────────────────────────────────────

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Account domain.Account `json:"account"`
}

// handleRegister creates an account and issues a first token.
// POST /v1/accounts
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash password")
		return
	}

	acct, err := s.eng.RegisterAccount(r.Context(), req.Name, req.Email, string(hash))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := s.issueToken(acct.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Account: acct})
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// handleLogin verifies credentials and issues a token. Unknown names and
// wrong passwords answer identically.
// POST /v1/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := s.eng.AccountByName(req.Name)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PassHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.issueToken(acct.ID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	s.log.WithField("account", acct.ID).Info("account logged in")
	writeJSON(w, http.StatusOK, authResponse{Token: token, Account: acct})
}
