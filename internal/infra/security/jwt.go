package security

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/core/port"
)

var (
	// ErrKeyIDMissing indicates the token header carries no kid.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")
	// ErrSubjectMissing indicates a structurally valid token without a subject claim.
	ErrSubjectMissing = errors.New("jwt: missing subject claim")
	// ErrVerifierUnbound is returned for every token when the verifier has no issuer or audience.
	ErrVerifierUnbound = errors.New("jwt: verifier requires issuer and audience")
)

const defaultLeeway = 30 * time.Second

// IDTokenClaims are the claims the identity provider places in ID tokens.
type IDTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// VerifierOptions configures ID token verification.
type VerifierOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	Now      func() time.Time
}

// JWTVerifier verifies RS256 ID tokens against identity provider keys.
type JWTVerifier struct {
	keys    KeyProvider
	parser  *jwt.Parser
	unbound bool
}

// NewJWTVerifier builds a verifier that only accepts RS256 tokens carrying exp and
// sub, issued by opts.Issuer for opts.Audience. Without both it rejects everything.
func NewJWTVerifier(keys KeyProvider, opts VerifierOptions) *JWTVerifier {
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
	}
	iss := strings.TrimSpace(opts.Issuer)
	aud := strings.TrimSpace(opts.Audience)
	parserOpts = append(parserOpts, jwt.WithIssuer(iss), jwt.WithAudience(aud))
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}

	return &JWTVerifier{
		keys:    keys,
		parser:  jwt.NewParser(parserOpts...),
		unbound: iss == "" || aud == "",
	}
}

// VerifyIDToken checks signature, expiry, issuer and audience, and returns the subject.
func (v *JWTVerifier) VerifyIDToken(_ context.Context, raw string) (*domain.SubjectIdentity, error) {
	if v.unbound {
		return nil, ErrVerifierUnbound
	}

	claims := &IDTokenClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("jwt: verify id token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("jwt: token is not valid")
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, ErrSubjectMissing
	}

	identity := &domain.SubjectIdentity{
		SubjectID: subject,
		Email:     strings.TrimSpace(claims.Email),
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	return identity, nil
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}
	return v.keys.GetVerificationKey(kid)
}

var _ port.IdentityProvider = (*JWTVerifier)(nil)

// IDTokenOptions configures creation of ID token claims for local tooling and tests.
type IDTokenOptions struct {
	Subject  string
	Email    string
	Issuer   string
	Audience []string
	TTL      time.Duration
	IssuedAt time.Time
}

// NewIDTokenClaims constructs claims shaped like the identity provider's ID tokens.
func NewIDTokenClaims(opts IDTokenOptions) (*IDTokenClaims, error) {
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		return nil, fmt.Errorf("jwt: subject is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &IDTokenClaims{
		Email: strings.TrimSpace(opts.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    strings.TrimSpace(opts.Issuer),
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}, nil
}

// SignIDToken signs claims with RS256 under the supplied kid.
func SignIDToken(key *rsa.PrivateKey, kid string, claims *IDTokenClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: claims required")
	}
	if key == nil {
		return "", ErrSigningKeyUnavailable
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return "", ErrKeyIDMissing
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// JWKS renders the supplied public keys as a JSON Web Key Set.
func JWKS(keys map[string]*rsa.PublicKey) ([]byte, error) {
	set := jwkSet{Keys: make([]jwk, 0, len(keys))}
	for kid, key := range keys {
		if key == nil {
			continue
		}
		set.Keys = append(set.Keys, buildJWK(kid, key))
	}
	return json.Marshal(set)
}

func buildJWK(kid string, key *rsa.PublicKey) jwk {
	return jwk{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
