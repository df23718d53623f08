package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// issueTokenPair mints an access/refresh pair for an identity. Only the
// refresh token carries a jti; access tokens are never individually
// revocable, their short TTL bounds the damage window.
func (a *App) issueTokenPair(identity *Identity) (*TokenPair, error) {
	access, err := a.signToken(identity.ID, tokenTypeAccess, a.cfg.AccessTokenTTL, "")
	if err != nil {
		return nil, err
	}
	refresh, err := a.signToken(identity.ID, tokenTypeRefresh, a.cfg.RefreshTokenTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (a *App) signToken(subject int64, tokenType string, ttl time.Duration, jti string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		TokenType: tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// verifyToken checks signature, expiry and token type. Refresh tokens
// are additionally checked against the revocation ledger by jti; access
// token verification needs no store lookup at all.
func (a *App) verifyToken(raw, wantType string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	if wantType == tokenTypeRefresh {
		if claims.ID == "" {
			return nil, ErrInvalidToken
		}
		revoked, err := a.store.IsJTIRevoked(claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// resolveIdentity loads the token subject from the store. A subject
// deleted after issuance is an authentication failure, not a 500.
func (a *App) resolveIdentity(claims *tokenClaims) (*Identity, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	identity, err := a.store.GetIdentityByID(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, err
	}
	return identity, nil
}
