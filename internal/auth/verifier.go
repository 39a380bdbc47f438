// Package auth はIdPが発行するセッショントークン（RS256 JWT）を検証し、
// 呼び出し元の識別情報を取り出す。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/subtodo/internal/model"
)

// ErrInvalidToken はセッショントークンが無効な場合に返される。
var ErrInvalidToken = errors.New("invalid session token")

// clockSkew はexp/nbf検証時に許容する時刻のずれ。
const clockSkew = 5 * time.Second

// SessionMetadata はセッショントークンに埋め込まれた公開メタデータ。
type SessionMetadata struct {
	Role string `json:"role,omitempty"`
}

// Claims はセッショントークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	SessionID       string          `json:"sid,omitempty"`
	AuthorizedParty string          `json:"azp,omitempty"`
	Metadata        SessionMetadata `json:"metadata"`
}

// Caller はクレームから呼び出し元情報を組み立てる。
func (c *Claims) Caller() *model.Caller {
	return &model.Caller{
		UserID:    c.Subject,
		SessionID: c.SessionID,
		Role:      model.Role(c.Metadata.Role),
	}
}

// Config はセッショントークン検証の設定。
type Config struct {
	Issuer string
	// JWKSURLが空の場合は Issuer + "/.well-known/jwks.json" を使用する。
	JWKSURL string
	// AuthorizedPartiesが空の場合はazpを検証しない。
	AuthorizedParties []string
	Logger            *slog.Logger
}

// Verifier はセッショントークンを検証する。
type Verifier struct {
	issuer            string
	authorizedParties []string
	jwks              *JWKSCache
	logger            *slog.Logger
}

// NewVerifier はVerifierを生成する。
func NewVerifier(cfg Config) (*Verifier, error) {
	issuer := strings.TrimRight(cfg.Issuer, "/")
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Verifier{
		issuer:            issuer,
		authorizedParties: cfg.AuthorizedParties,
		jwks:              NewJWKSCache(jwksURL, logger),
		logger:            logger,
	}, nil
}

// Verify はトークンの署名と標準クレームを検証し、クレームを返す。
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		return v.jwks.GetKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if len(v.authorizedParties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(v.authorizedParties, claims.AuthorizedParty) {
		return nil, fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, claims.AuthorizedParty)
	}

	return claims, nil
}

// Authenticate はトークンを検証して呼び出し元情報を返す。
func (v *Verifier) Authenticate(ctx context.Context, tokenString string) (*model.Caller, error) {
	claims, err := v.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return claims.Caller(), nil
}
