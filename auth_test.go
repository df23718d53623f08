package main

import (
	"sync"
	"testing"
	"time"

	cfg "github.com/example/bookmarkd/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	c := &cfg.Config{
		JwtSecret:          "test-secret",
		AccessTokenTTL:     5 * time.Minute,
		RefreshTokenTTL:    time.Hour,
		RateLimitPerMinute: 10000,
	}
	return NewApp(c, NewMemStore())
}

func mustCreateIdentity(t *testing.T, a *App, username, email string) *Identity {
	t.Helper()
	hash, err := hashPassword("sekret99")
	require.NoError(t, err)
	u, err := a.store.CreateIdentity(username, email, hash, "", "")
	require.NoError(t, err)
	return u
}

func TestIssueAndVerifyTokenPair(t *testing.T) {
	a := newTestApp(t)
	u := mustCreateIdentity(t, a, "alice", "alice@x.com")

	pair, err := a.issueTokenPair(u)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	claims, err := a.verifyToken(pair.Access, tokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, "1", claims.Subject)
	require.Empty(t, claims.ID, "access tokens carry no jti")

	rclaims, err := a.verifyToken(pair.Refresh, tokenTypeRefresh)
	require.NoError(t, err)
	require.Equal(t, "1", rclaims.Subject)
	require.NotEmpty(t, rclaims.ID)

	resolved, err := a.resolveIdentity(claims)
	require.NoError(t, err)
	require.Equal(t, u.ID, resolved.ID)
	require.Equal(t, "alice", resolved.Username)
}

func TestVerifyTokenTypeMismatch(t *testing.T) {
	a := newTestApp(t)
	u := mustCreateIdentity(t, a, "alice", "alice@x.com")
	pair, err := a.issueTokenPair(u)
	require.NoError(t, err)

	_, err = a.verifyToken(pair.Access, tokenTypeRefresh)
	require.ErrorIs(t, err, ErrWrongTokenType)

	_, err = a.verifyToken(pair.Refresh, tokenTypeAccess)
	require.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerifyExpiredToken(t *testing.T) {
	a := newTestApp(t)
	tok, err := a.signToken(1, tokenTypeAccess, -time.Minute, "")
	require.NoError(t, err)

	_, err = a.verifyToken(tok, tokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyBadSignature(t *testing.T) {
	a := newTestApp(t)
	other := newTestApp(t)
	other.jwtSecret = []byte("a-different-secret")

	tok, err := other.signToken(1, tokenTypeAccess, time.Minute, "")
	require.NoError(t, err)

	_, err = a.verifyToken(tok, tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.verifyToken("not.a.jwt", tokenTypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRevokedRefreshToken(t *testing.T) {
	a := newTestApp(t)
	u := mustCreateIdentity(t, a, "alice", "alice@x.com")
	pair, err := a.issueTokenPair(u)
	require.NoError(t, err)

	claims, err := a.verifyToken(pair.Refresh, tokenTypeRefresh)
	require.NoError(t, err)

	require.NoError(t, a.store.RevokeJTI(claims.ID, time.Now()))

	_, err = a.verifyToken(pair.Refresh, tokenTypeRefresh)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// the access token from the same pair stays valid until its own expiry
	_, err = a.verifyToken(pair.Access, tokenTypeAccess)
	require.NoError(t, err)
}

func TestResolveUnknownSubject(t *testing.T) {
	a := newTestApp(t)
	tok, err := a.signToken(42, tokenTypeAccess, time.Minute, "")
	require.NoError(t, err)

	claims, err := a.verifyToken(tok, tokenTypeAccess)
	require.NoError(t, err)

	_, err = a.resolveIdentity(claims)
	require.ErrorIs(t, err, ErrUnknownSubject)
}

func TestRevokeJTIIdempotentUnderConcurrency(t *testing.T) {
	a := newTestApp(t)
	const jti = "concurrent-jti"

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.store.RevokeJTI(jti, time.Now())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	revoked, err := a.store.IsJTIRevoked(jti)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("passw0rd")
	require.NoError(t, err)
	require.NotEqual(t, "passw0rd", hash)
	require.True(t, comparePassword(hash, "passw0rd"))
	require.False(t, comparePassword(hash, "wrong0pass"))
}
