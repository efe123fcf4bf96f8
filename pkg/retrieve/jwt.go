package retrieve

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verdict-engine/go-core/pkg/attribute"
)

// JWTConfig configures the JWT claims retriever.
type JWTConfig struct {
	// ContextKey names the request context entry holding the raw token.
	// Defaults to "token".
	ContextKey string
	// Secret enables HS256 verification.
	Secret string
	// PublicKeyPEM enables RS256 verification.
	PublicKeyPEM string
	// AllowUnverified skips signature verification. Only safe when a
	// trusted gateway already verified the token upstream.
	AllowUnverified bool
}

// JWT returns a retriever exposing the claims of a JWT as attributes. The
// raw token is read from cfg.ContextKey in the request context and the
// attribute key selects a claim. A missing token resolves to nil; a token
// that fails verification is a retrieval error.
func JWT(cfg JWTConfig) (attribute.Func, error) {
	if cfg.ContextKey == "" {
		cfg.ContextKey = "token"
	}

	var (
		secret    []byte
		publicKey *rsa.PublicKey
	)
	if cfg.Secret != "" {
		secret = []byte(cfg.Secret)
	}
	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		publicKey = key
	}
	if !cfg.AllowUnverified && secret == nil && publicKey == nil {
		return nil, fmt.Errorf("JWT retriever needs a secret or a public key")
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		switch alg := token.Method.Alg(); alg {
		case "HS256":
			if secret == nil {
				return nil, fmt.Errorf("HS256 not configured")
			}
			return secret, nil
		case "RS256":
			if publicKey == nil {
				return nil, fmt.Errorf("RS256 not configured")
			}
			return publicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", alg)
		}
	}

	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		raw, ok := contextString(reqCtx, cfg.ContextKey)
		if !ok {
			return nil, nil
		}

		claims := jwt.MapClaims{}
		if cfg.AllowUnverified {
			if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
				return nil, fmt.Errorf("parse token: %w", err)
			}
			return claims[key], nil
		}

		token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
			jwt.WithValidMethods([]string{"HS256", "RS256"}))
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !token.Valid {
			return nil, jwt.ErrSignatureInvalid
		}

		return claims[key], nil
	}, nil
}
