// Package jwtauth implements an HS256 JWT-verifying middleware: it reads a
// token a login flow stashed on the session, verifies the signature, and
// optionally enforces a role claim.
//
// HS256 verification is a handful of lines over crypto/hmac, so this
// package builds directly on the standard library rather than an external
// JWT dependency.
package jwtauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/efecan0/binaryrpc/internal/middleware"
	"github.com/efecan0/binaryrpc/internal/session"
)

// sessionTokenKey is where a successful login is expected to have stashed
// the raw JWT, mirroring the original's s.get<std::string>("jwt").
const sessionTokenKey = "jwt"

// sessionRoleKey is where a verified token's role claim is written back,
// mirroring the original's s.set<std::string>("role", role).
const sessionRoleKey = "role"

type claims struct {
	Role string `json:"role"`
}

// Auth verifies an HS256 JWT the session's "jwt" field holds, optionally
// enforcing a required role claim, matching jwt_auth.hpp's two-argument
// (secret, requiredRole) shape.
func Auth(secret string, requiredRole string) middleware.Middleware {
	key := []byte(secret)
	return func(s *session.Session, method string, payload *[]byte, next middleware.Next) {
		if s == nil {
			return
		}
		token, ok := session.GetAs[string](s, sessionTokenKey)
		if !ok || token == "" {
			return
		}

		role, ok := verify(token, key)
		if !ok {
			return
		}
		if requiredRole != "" && role != requiredRole {
			return
		}

		s.Set(sessionRoleKey, role)
		next()
	}
}

// verify checks token's HS256 signature against key and returns its role
// claim. Any malformed segment, algorithm mismatch, or bad signature is
// reported as ok=false, matching the original's catch-all reject-on-error.
func verify(token string, key []byte) (role string, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return "", false
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return "", false
	}
	if header.Alg != "HS256" {
		return "", false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(headerB64 + "." + payloadB64))
	expected := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return "", false
	}
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return "", false
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", false
	}
	var c claims
	if err := json.Unmarshal(payloadJSON, &c); err != nil {
		return "", false
	}
	return c.Role, true
}
