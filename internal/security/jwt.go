package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("invalid token subject")
)

const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// AccessClaims are the claims plan-chat reads from an access token issued
// by the auth service.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// VerifierConfig selects the algorithm and key material. Exactly one of
// Secret (HS256) or PublicKey (RS256) is used.
type VerifierConfig struct {
	Alg       string
	Secret    []byte
	PublicKey *rsa.PublicKey
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

type JWTVerifier struct {
	key    any
	parser *jwt.Parser
}

func NewJWTVerifier(cfg VerifierConfig) (*JWTVerifier, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var key any
	switch cfg.Alg {
	case AlgHS256, "":
		if len(cfg.Secret) == 0 {
			return nil, errors.New("jwt: HS256 requires a secret")
		}
		key = cfg.Secret
		opts = append(opts, jwt.WithValidMethods([]string{AlgHS256}))
	case AlgRS256:
		if cfg.PublicKey == nil {
			return nil, errors.New("jwt: RS256 requires a public key")
		}
		key = cfg.PublicKey
		opts = append(opts, jwt.WithValidMethods([]string{AlgRS256}))
	default:
		return nil, fmt.Errorf("jwt: unsupported alg %q", cfg.Alg)
	}

	return &JWTVerifier{key: key, parser: jwt.NewParser(opts...)}, nil
}

// ParseAndValidate checks signature, exp/nbf (with leeway), issuer and
// audience. Any failure wraps ErrInvalidToken.
func (v *JWTVerifier) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSubject
	}

	return claims, nil
}

// JWTSigner issues access tokens. plan-chat only verifies tokens in
// production; the signer backs dev tooling and tests.
type JWTSigner struct {
	method   jwt.SigningMethod
	key      any
	issuer   string
	audience string
	ttl      time.Duration
}

func NewHS256Signer(secret []byte, issuer, audience string, ttl time.Duration) *JWTSigner {
	return &JWTSigner{method: jwt.SigningMethodHS256, key: secret, issuer: issuer, audience: audience, ttl: ttl}
}

func NewRS256Signer(private *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *JWTSigner {
	return &JWTSigner{method: jwt.SigningMethodRS256, key: private, issuer: issuer, audience: audience, ttl: ttl}
}

func (s *JWTSigner) SignAccessToken(userID, username string, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: username,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	return jwt.NewWithClaims(s.method, claims).SignedString(s.key)
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}

	return pub, nil
}
