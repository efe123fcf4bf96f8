package retrieve

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func testClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "alice",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWTRetrieverHS256(t *testing.T) {
	fn, err := JWT(JWTConfig{Secret: "sekrit"})
	require.NoError(t, err)

	reqCtx := map[string]interface{}{
		"token": signHS256(t, "sekrit", testClaims()),
	}

	value, err := fn(context.Background(), "role", reqCtx)
	require.NoError(t, err)
	assert.Equal(t, "admin", value)

	value, err = fn(context.Background(), "sub", reqCtx)
	require.NoError(t, err)
	assert.Equal(t, "alice", value)

	// Unknown claims resolve to nil.
	value, err = fn(context.Background(), "dept", reqCtx)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestJWTRetrieverRS256(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: keyBytes,
	})

	fn, err := JWT(JWTConfig{PublicKeyPEM: string(publicPEM)})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims())
	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	value, err := fn(context.Background(), "role", map[string]interface{}{"token": signed})
	require.NoError(t, err)
	assert.Equal(t, "admin", value)
}

func TestJWTRetrieverBadSignature(t *testing.T) {
	fn, err := JWT(JWTConfig{Secret: "sekrit"})
	require.NoError(t, err)

	reqCtx := map[string]interface{}{
		"token": signHS256(t, "wrong-secret", testClaims()),
	}

	_, err = fn(context.Background(), "role", reqCtx)
	require.Error(t, err)
}

func TestJWTRetrieverExpiredToken(t *testing.T) {
	fn, err := JWT(JWTConfig{Secret: "sekrit"})
	require.NoError(t, err)

	claims := testClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err = fn(context.Background(), "role", map[string]interface{}{
		"token": signHS256(t, "sekrit", claims),
	})
	require.Error(t, err)
}

func TestJWTRetrieverMissingToken(t *testing.T) {
	fn, err := JWT(JWTConfig{Secret: "sekrit"})
	require.NoError(t, err)

	value, err := fn(context.Background(), "role", map[string]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestJWTRetrieverUnverified(t *testing.T) {
	fn, err := JWT(JWTConfig{AllowUnverified: true})
	require.NoError(t, err)

	// Signature is never checked, so any secret works.
	value, err := fn(context.Background(), "role", map[string]interface{}{
		"token": signHS256(t, "whatever", testClaims()),
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", value)
}

func TestJWTRetrieverConfig(t *testing.T) {
	// No key material and no unverified opt-in.
	_, err := JWT(JWTConfig{})
	require.Error(t, err)

	// Garbage PEM.
	_, err = JWT(JWTConfig{PublicKeyPEM: "not a pem"})
	require.Error(t, err)
}
