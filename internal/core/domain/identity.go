package domain

import "time"

// Subject mirrors the persisted representation in the users table.
type Subject struct {
	ID        string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// SubjectIdentity is the subject established by a verified identity token.
type SubjectIdentity struct {
	SubjectID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AdminIdentity is a subject that passed the privilege gate for the current request.
// It is only constructed by the privilege gate.
type AdminIdentity struct {
	SubjectID  string
	VerifiedAt time.Time
}
