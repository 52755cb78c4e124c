package security

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrKeyNotFound           = errors.New("key not found")
	ErrSigningKeyUnavailable = errors.New("signing key not available")
)

const (
	defaultJWKSRefreshInterval = time.Hour
	jwksMinRefetchInterval     = 30 * time.Second
	jwksFetchTimeout           = 5 * time.Second
	jwksMaxBodyBytes           = 1 << 20
)

// KeyProvider resolves identity provider verification keys by key id.
type KeyProvider interface {
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider serves keys read from PEM files in a directory.
// The key id is the file name without extension.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
	signingKID string
}

// NewFileKeyProvider loads every PEM key in keyDir. Private keys contribute their public half,
// and the first private key found becomes the signing key used by local tooling.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		if private, ok := parsePrivateKey(block.Bytes); ok {
			if provider.signingKey == nil {
				provider.signingKey = private
				provider.signingKID = kid
			}
			provider.keys[kid] = &private.PublicKey
			continue
		}

		if public, ok := parsePublicKey(block.Bytes); ok {
			provider.keys[kid] = public
			continue
		}

		return nil, fmt.Errorf("failed to parse key from file %s", path)
	}

	if len(provider.keys) == 0 {
		return nil, fmt.Errorf("no keys found in %s", keyDir)
	}

	return provider, nil
}

// GetVerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// GetSigningKey returns the first private key found on disk and its key id.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, string, error) {
	if p.signingKey == nil {
		return nil, "", ErrSigningKeyUnavailable
	}
	return p.signingKey, p.signingKID, nil
}

// ListVerificationKeys returns a copy of all loaded public keys.
func (p *FileKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, bool) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, true
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, true
		}
	}
	return nil, false
}

func parsePublicKey(der []byte) (*rsa.PublicKey, bool) {
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, true
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, true
		}
	}
	return nil, false
}

// JWKSKeyProvider fetches verification keys from the identity provider's JWKS endpoint
// and caches them until the refresh interval elapses.
type JWKSKeyProvider struct {
	url             string
	client          *http.Client
	refreshInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time

	// refreshMu admits one fetch at a time. attemptedAt advances on every fetch, failed or not.
	refreshMu   sync.Mutex
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

// NewJWKSKeyProvider constructs a provider for the supplied JWKS URL.
func NewJWKSKeyProvider(url string, refreshInterval time.Duration, client *http.Client, logger *zap.Logger) *JWKSKeyProvider {
	if refreshInterval <= 0 {
		refreshInterval = defaultJWKSRefreshInterval
	}
	if client == nil {
		client = &http.Client{Timeout: jwksFetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWKSKeyProvider{
		url:             url,
		client:          client,
		refreshInterval: refreshInterval,
		logger:          logger,
		now:             time.Now,
		keys:            make(map[string]*rsa.PublicKey),
	}
}

// GetVerificationKey returns the cached key for kid, refetching the JWKS when the cache is stale
// or the kid is unknown. Fetches, successful or not, happen at most once per jwksMinRefetchInterval;
// a stale key keeps being served while the endpoint fails.
func (p *JWKSKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok, due := p.lookup(kid, p.now())
	if ok && !due {
		return key, nil
	}
	if !due {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	if err := p.refreshOnce(kid); err != nil {
		if ok {
			p.logger.Warn("jwks refresh failed, serving cached key", zap.String("kid", kid), zap.Error(err))
			return key, nil
		}
		return nil, err
	}

	if key, ok, _ = p.lookup(kid, p.now()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// lookup reports the cached key and whether a fetch is due at now.
func (p *JWKSKeyProvider) lookup(kid string, now time.Time) (*rsa.PublicKey, bool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	key, ok := p.keys[kid]
	if now.Sub(p.attemptedAt) < jwksMinRefetchInterval {
		return key, ok, false
	}
	stale := now.Sub(p.fetchedAt) >= p.refreshInterval
	return key, ok, stale || !ok
}

// refreshOnce fetches the JWKS unless a concurrent caller already did while this one waited.
func (p *JWKSKeyProvider) refreshOnce(kid string) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	now := p.now()
	if _, _, due := p.lookup(kid, now); !due {
		return nil
	}

	keys, err := p.fetch()

	p.mu.Lock()
	p.attemptedAt = now
	if err == nil {
		p.keys = keys
		p.fetchedAt = now
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return nil
}

func (p *JWKSKeyProvider) fetch() (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, jwksMaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	if len(body) > jwksMaxBodyBytes {
		return nil, fmt.Errorf("read jwks: body exceeds %d bytes", jwksMaxBodyBytes)
	}

	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			p.logger.Warn("skipping malformed jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = key
	}
	return keys, nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}

// NewKeyProvider selects the JWKS provider when a URL is configured and falls back to PEM files.
func NewKeyProvider(jwksURL, keyDir string, refreshInterval time.Duration, logger *zap.Logger) (KeyProvider, error) {
	if strings.TrimSpace(jwksURL) != "" {
		return NewJWKSKeyProvider(jwksURL, refreshInterval, nil, logger), nil
	}
	if strings.TrimSpace(keyDir) == "" {
		return nil, errors.New("either jwt.jwks_url or jwt.key_directory must be configured")
	}
	return NewFileKeyProvider(keyDir)
}
