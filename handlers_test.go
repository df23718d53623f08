package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

type authResponse struct {
	User   identitySummary `json:"user"`
	Tokens TokenPair       `json:"tokens"`
}

func registerUser(t *testing.T, h http.Handler, username, email string) authResponse {
	t.Helper()
	rr := doJSON(t, h, "POST", "/api/auth/register", "", map[string]string{
		"username":         username,
		"email":            email,
		"password":         "passw0rd",
		"password_confirm": "passw0rd",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out authResponse
	decodeBody(t, rr, &out)
	return out
}

func createBookmark(t *testing.T, h http.Handler, token string, body map[string]interface{}) bookmarkResponse {
	t.Helper()
	rr := doJSON(t, h, "POST", "/api/bookmarks", token, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out bookmarkResponse
	decodeBody(t, rr, &out)
	return out
}

func TestRegisterThenMe(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()

	out := registerUser(t, h, "alice", "alice@x.com")
	require.Equal(t, int64(1), out.User.ID)
	require.Equal(t, "alice", out.User.Username)
	require.NotEmpty(t, out.Tokens.Access)
	require.NotEmpty(t, out.Tokens.Refresh)

	rr := doJSON(t, h, "GET", "/api/auth/me", out.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me identitySummary
	decodeBody(t, rr, &me)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, "alice@x.com", me.Email)
}

func TestRegisterFieldErrors(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()

	rr := doJSON(t, h, "POST", "/api/auth/register", "", map[string]string{
		"username":         "a",
		"email":            "nope",
		"password":         "short",
		"password_confirm": "different",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var apiErr APIError
	decodeBody(t, rr, &apiErr)
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	require.Contains(t, apiErr.Fields, "username")
	require.Contains(t, apiErr.Fields, "email")
	require.Contains(t, apiErr.Fields, "password")
	require.Contains(t, apiErr.Fields, "password_confirm")
}

func TestLogin(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	registerUser(t, h, "alice", "alice@x.com")

	rr := doJSON(t, h, "POST", "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "passw0rd",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var out authResponse
	decodeBody(t, rr, &out)
	require.NotEmpty(t, out.Tokens.Access)

	rr = doJSON(t, h, "POST", "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong0pass",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, "POST", "/api/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "passw0rd",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefreshIssuesUsableAccessToken(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")

	rr := doJSON(t, h, "POST", "/api/auth/token/refresh", "", map[string]string{"refresh": out.Tokens.Refresh})
	require.Equal(t, http.StatusOK, rr.Code)
	var refreshed struct {
		Access string `json:"access"`
	}
	decodeBody(t, rr, &refreshed)
	require.NotEmpty(t, refreshed.Access)

	rr = doJSON(t, h, "GET", "/api/auth/me", refreshed.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// an access token is not accepted as a refresh token
	rr = doJSON(t, h, "POST", "/api/auth/token/refresh", "", map[string]string{"refresh": out.Tokens.Access})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesRefreshButNotAccess(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")

	rr := doJSON(t, h, "POST", "/api/auth/logout", out.Tokens.Access, map[string]string{"refresh": out.Tokens.Refresh})
	require.Equal(t, http.StatusOK, rr.Code)

	// the revoked refresh token can no longer mint access tokens
	rr = doJSON(t, h, "POST", "/api/auth/token/refresh", "", map[string]string{"refresh": out.Tokens.Refresh})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// the outstanding access token stays valid until its own expiry
	rr = doJSON(t, h, "GET", "/api/auth/me", out.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// second logout with the already-revoked token reports 401
	rr = doJSON(t, h, "POST", "/api/auth/logout", out.Tokens.Access, map[string]string{"refresh": out.Tokens.Refresh})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutMissingRefreshIsBadRequest(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")

	rr := doJSON(t, h, "POST", "/api/auth/logout", out.Tokens.Access, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTokenVerifyEndpoint(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")

	rr := doJSON(t, h, "POST", "/api/auth/token/verify", "", map[string]string{"token": out.Tokens.Access})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, "POST", "/api/auth/token/verify", "", map[string]string{"token": out.Tokens.Refresh})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, "POST", "/api/auth/token/verify", "", map[string]string{"token": "garbage"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, "POST", "/api/auth/token/verify", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()

	rr := doJSON(t, h, "GET", "/api/bookmarks", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, "GET", "/api/bookmarks", "bogus-token", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, h, "GET", "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBookmarkCRUD(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")
	token := out.Tokens.Access

	b := createBookmark(t, h, token, map[string]interface{}{
		"title":       "Go docs",
		"url":         "https://go.dev/doc/",
		"description": "language documentation",
	})
	require.Equal(t, "alice", b.Owner)
	require.True(t, b.IsPublic)

	rr := doJSON(t, h, "GET", "/api/bookmarks/1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, "PUT", "/api/bookmarks/1", token, map[string]interface{}{
		"title":       "Go documentation",
		"url":         "https://go.dev/doc/",
		"description": "updated",
		"is_public":   false,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated bookmarkResponse
	decodeBody(t, rr, &updated)
	require.Equal(t, "Go documentation", updated.Title)
	require.False(t, updated.IsPublic)

	rr = doJSON(t, h, "PATCH", "/api/bookmarks/1", token, map[string]interface{}{
		"title": "Go docs again",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeBody(t, rr, &updated)
	require.Equal(t, "Go docs again", updated.Title)
	require.Equal(t, "https://go.dev/doc/", updated.URL)

	rr = doJSON(t, h, "DELETE", "/api/bookmarks/1", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, h, "GET", "/api/bookmarks/1", token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBookmarkOwnerIsBoundToCaller(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	alice := registerUser(t, h, "alice", "alice@x.com")

	// a caller-supplied owner value is ignored
	b := createBookmark(t, h, alice.Tokens.Access, map[string]interface{}{
		"title":       "mine",
		"url":         "https://example.com/mine",
		"description": "owned by alice",
		"owner_id":    999,
	})
	require.Equal(t, alice.User.ID, b.OwnerID)
	require.Equal(t, "alice", b.Owner)
}

func TestBookmarkOwnershipEnforcement(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	alice := registerUser(t, h, "alice", "alice@x.com")
	bob := registerUser(t, h, "bob", "bob@x.com")

	b := createBookmark(t, h, alice.Tokens.Access, map[string]interface{}{
		"title":       "alice's bookmark",
		"url":         "https://example.com/a",
		"description": "shared reading",
	})

	// bob can read it
	rr := doJSON(t, h, "GET", "/api/bookmarks/1", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// but every unsafe action is forbidden, distinct from not found
	rr = doJSON(t, h, "PUT", "/api/bookmarks/1", bob.Tokens.Access, map[string]interface{}{
		"title": "hijacked", "url": "https://example.com/a", "description": "x",
	})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, h, "DELETE", "/api/bookmarks/1", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, h, "POST", "/api/bookmarks/1/toggle-public", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// the owner can toggle, and the flag flips
	require.True(t, b.IsPublic)
	rr = doJSON(t, h, "POST", "/api/bookmarks/1/toggle-public", alice.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var toggled bookmarkResponse
	decodeBody(t, rr, &toggled)
	require.False(t, toggled.IsPublic)

	// a missing bookmark is 404, not 403
	rr = doJSON(t, h, "POST", "/api/bookmarks/99/toggle-public", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBookmarkListVisibility(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	alice := registerUser(t, h, "alice", "alice@x.com")
	bob := registerUser(t, h, "bob", "bob@x.com")

	createBookmark(t, h, alice.Tokens.Access, map[string]interface{}{
		"title": "alice public", "url": "https://example.com/1", "description": "d",
	})
	createBookmark(t, h, alice.Tokens.Access, map[string]interface{}{
		"title": "alice private", "url": "https://example.com/2", "is_public": false,
	})
	createBookmark(t, h, bob.Tokens.Access, map[string]interface{}{
		"title": "bob private", "url": "https://example.com/3", "is_public": false,
	})

	// list policy: public plus the caller's own, newest first
	rr := doJSON(t, h, "GET", "/api/bookmarks", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []bookmarkResponse
	decodeBody(t, rr, &list)
	require.Len(t, list, 2)
	require.Equal(t, "bob private", list[0].Title)
	require.Equal(t, "alice public", list[1].Title)

	rr = doJSON(t, h, "GET", "/api/bookmarks/mine", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &list)
	require.Len(t, list, 1)
	require.Equal(t, "bob private", list[0].Title)

	rr = doJSON(t, h, "GET", "/api/bookmarks/public", bob.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &list)
	require.Len(t, list, 1)
	require.Equal(t, "alice public", list[0].Title)

	rr = doJSON(t, h, "GET", "/api/bookmarks/recent", alice.Tokens.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &list)
	require.Len(t, list, 2)
}

func TestBookmarkValidation(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()
	out := registerUser(t, h, "alice", "alice@x.com")
	token := out.Tokens.Access

	// title too short once tags are stripped
	rr := doJSON(t, h, "POST", "/api/bookmarks", token, map[string]interface{}{
		"title": "<b>ab</b>", "url": "https://example.com/x", "description": "d",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var apiErr APIError
	decodeBody(t, rr, &apiErr)
	require.Contains(t, apiErr.Fields, "title")

	// blocked domain
	rr = doJSON(t, h, "POST", "/api/bookmarks", token, map[string]interface{}{
		"title": "spam link", "url": "https://spam.com/offer", "description": "d",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	decodeBody(t, rr, &apiErr)
	require.Contains(t, apiErr.Fields, "url")

	// a public bookmark requires a description
	rr = doJSON(t, h, "POST", "/api/bookmarks", token, map[string]interface{}{
		"title": "no description", "url": "https://example.com/y", "is_public": true,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	decodeBody(t, rr, &apiErr)
	require.Contains(t, apiErr.Fields, "description")

	// duplicate url
	createBookmark(t, h, token, map[string]interface{}{
		"title": "first", "url": "https://example.com/dup", "description": "d",
	})
	rr = doJSON(t, h, "POST", "/api/bookmarks", token, map[string]interface{}{
		"title": "second", "url": "https://example.com/dup", "description": "d",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	decodeBody(t, rr, &apiErr)
	require.Contains(t, apiErr.Fields, "url")
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()

	rr := doJSON(t, h, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, "GET", "/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
