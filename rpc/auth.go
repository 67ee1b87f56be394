package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// JWTConfig enables bearer authentication for mutating methods. Tokens are
// HMAC signed with the secret read from HSSecretEnv.
type JWTConfig struct {
	Enable      bool
	HSSecretEnv string
	Issuer      string
	Audience    string
	ClockSkew   time.Duration
}

type authenticator struct {
	cfg    JWTConfig
	secret []byte
}

func newAuthenticator(cfg JWTConfig) (*authenticator, error) {
	a := &authenticator{cfg: cfg}
	if !cfg.Enable {
		return a, nil
	}
	envName := strings.TrimSpace(cfg.HSSecretEnv)
	if envName == "" {
		return nil, fmt.Errorf("rpc: JWT enabled without a secret environment variable")
	}
	secret := strings.TrimSpace(os.Getenv(envName))
	if secret == "" {
		return nil, fmt.Errorf("rpc: environment variable %s is empty", envName)
	}
	a.secret = []byte(secret)
	if a.cfg.ClockSkew <= 0 {
		a.cfg.ClockSkew = time.Minute
	}
	return a, nil
}

func (a *authenticator) verify(r *http.Request) *RPCError {
	if a == nil || !a.cfg.Enable {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if err := a.parse(token); err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return nil
}

func (a *authenticator) parse(tokenString string) error {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

// IssueToken mints an HS256 bearer token accepted by a server configured with
// the same secret and issuer.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("rpc: token secret required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
