package domain

import "time"

// AuditAction represents an auditable administrative action.
type AuditAction string

const (
	AuditBanUser       AuditAction = "ban_user"
	AuditBanIP         AuditAction = "ban_ip"
	AuditUnbanIP       AuditAction = "unban_ip"
	AuditDeleteUser    AuditAction = "delete_user"
	AuditCreateLicense AuditAction = "create_license"
	AuditGrantAdmin    AuditAction = "grant_admin"
	AuditRevokeAdmin   AuditAction = "revoke_admin"
)

var auditVerbs = map[AuditAction]string{
	AuditBanUser:       "banned user",
	AuditBanIP:         "banned IP",
	AuditUnbanIP:       "unbanned IP",
	AuditDeleteUser:    "deleted user",
	AuditCreateLicense: "created license",
	AuditGrantAdmin:    "granted admin to",
	AuditRevokeAdmin:   "revoked admin from",
}

// Verb returns the past-tense phrase used in audit log lines.
func (a AuditAction) Verb() string {
	if verb, ok := auditVerbs[a]; ok {
		return verb
	}
	return string(a)
}

// AuditEntry records a completed privileged mutation. Entries are append-only.
type AuditEntry struct {
	ID        string
	AdminID   string
	Action    AuditAction
	Target    string
	Detail    string
	CreatedAt time.Time
}
