package domain

import "time"

// LicensePlan enumerates the plan tiers a license can grant.
type LicensePlan string

const (
	LicensePlanBasic      LicensePlan = "Basic"
	LicensePlanPro        LicensePlan = "Pro"
	LicensePlanEnterprise LicensePlan = "Enterprise"
)

// LicensePlans lists every plan tier accepted when issuing a license.
var LicensePlans = []LicensePlan{
	LicensePlanBasic,
	LicensePlanPro,
	LicensePlanEnterprise,
}

// Valid reports whether the plan is one of the known tiers.
func (p LicensePlan) Valid() bool {
	for _, plan := range LicensePlans {
		if p == plan {
			return true
		}
	}
	return false
}

// License represents an issued license. The plaintext key is never persisted;
// only its SHA-256 hash and a short prefix for identification are stored.
type License struct {
	ID           string
	KeyHash      string
	KeyPrefix    string
	Plan         LicensePlan
	ValidityDays int
	IssuedAt     time.Time
	ExpiresAt    time.Time
	IssuedBy     string
	RedeemedBy   *string
	RedeemedAt   *time.Time
}
