// Package jwtx inspects access tokens locally without verifying signatures.
//
// The backend is the only party that can verify a token; everything here
// exists so the client can make cheap scheduling decisions ("should I even
// bother sending this token, or refresh first?"). A 401 from the backend
// always overrides whatever this package says.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// parser is shared and stateless. ParseUnverified never touches the
// signature segment, so no key material is needed.
var parser = jwt.NewParser()

// ExpiresAt decodes the exp claim of a compact JWS token. It returns
// ok=false when the token is malformed or carries no exp claim.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether the token's exp claim has passed.
//
// A token that cannot be decoded is reported as expired: an undecodable
// credential must never be trusted for scheduling. A decodable token
// without an exp claim is reported as unexpired and left for the backend
// to judge.
func IsExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(claims.ExpiresAt.Time)
}
