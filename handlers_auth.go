package main

import (
	"encoding/json"
	"net/http"
	"time"
)

type identitySummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	CreatedAt string `json:"created_at"`
}

func summarize(u *Identity) identitySummary {
	return identitySummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegistrationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	identity, fields, err := a.registerIdentity(in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account")
		return
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}
	// auto-login after registration
	tokens, err := a.issueTokenPair(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":   summarize(identity),
		"tokens": tokens,
	})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Username == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Username and password are required")
		return
	}
	identity, err := a.store.GetIdentityByUsername(c.Username)
	if err != nil || !comparePassword(identity.PasswordHash, c.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}
	tokens, err := a.issueTokenPair(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   summarize(identity),
		"tokens": tokens,
	})
}

// HandleRefresh exchanges a valid, non-revoked refresh token for a new
// access token. The refresh token itself is reused, not rotated: the
// revocation ledger stays logout-only that way.
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Refresh == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	claims, err := a.verifyToken(in.Refresh, tokenTypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Refresh token is invalid, expired or revoked")
		return
	}
	identity, err := a.resolveIdentity(claims)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Refresh token is invalid, expired or revoked")
		return
	}
	access, err := a.signToken(identity.ID, tokenTypeAccess, a.cfg.AccessTokenTTL, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// HandleVerify reports whether a submitted token of either type is
// currently valid. Revoked refresh tokens verify as invalid.
func (a *App) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	if _, err := a.verifyToken(in.Token, tokenTypeAccess); err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
		return
	}
	if _, err := a.verifyToken(in.Token, tokenTypeRefresh); err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
		return
	}
	writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired")
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Access token required")
		return
	}
	writeJSON(w, http.StatusOK, summarize(identity))
}

// HandleLogout revokes the presented refresh token's jti. A missing
// refresh token is a 400; a malformed, expired or already-revoked one
// is a 401 since the verifier rejects it before the ledger is touched.
// Ledger insertion itself is idempotent.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Refresh == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	claims, err := a.verifyToken(in.Refresh, tokenTypeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Refresh token is invalid, expired or revoked")
		return
	}
	if err := a.store.RevokeJTI(claims.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Logged out"})
}
