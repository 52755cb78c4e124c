package domain

import "time"

// BanKind distinguishes user bans from network address bans.
type BanKind string

const (
	BanKindUser BanKind = "user"
	BanKindIP   BanKind = "ip"
)

// BanRecord marks a user or a network address as denied.
type BanRecord struct {
	ID        string
	Kind      BanKind
	Target    string
	Reason    string
	BannedBy  string
	CreatedAt time.Time
	// ExpiresAt is nil for permanent bans.
	ExpiresAt *time.Time
}

// ExpiredAt reports whether the ban is no longer in force at the supplied instant.
func (b BanRecord) ExpiredAt(now time.Time) bool {
	if b.ExpiresAt == nil {
		return false
	}
	return now.After(*b.ExpiresAt)
}

// AddressUsage links a network address to a subject that signed up or logged in from it.
type AddressUsage struct {
	ID         string
	UserID     string
	Address    string
	Email      *string
	RecordedAt time.Time
	LastUsed   time.Time
}
