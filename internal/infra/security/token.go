package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	licenseKeyPrefix  = "LIC"
	licenseKeyBytes   = 20
	licenseGroupSize  = 8
	licensePrefixSize = 12
)

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// GenerateLicenseKey returns a key of the form LIC-XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX
// carrying 160 bits from crypto/rand.
func GenerateLicenseKey() (string, error) {
	buf := make([]byte, licenseKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)

	groups := []string{licenseKeyPrefix}
	for i := 0; i < len(encoded); i += licenseGroupSize {
		end := i + licenseGroupSize
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}

	return strings.Join(groups, "-"), nil
}

// LicenseKeyPrefix returns the non-secret identifying prefix stored alongside the key hash.
func LicenseKeyPrefix(key string) string {
	if len(key) <= licensePrefixSize {
		return key
	}
	return key[:licensePrefixSize]
}
