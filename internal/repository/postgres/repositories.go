package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Subjects     *SubjectRepository
	Bans         *BanRepository
	AddressUsage *AddressUsageRepository
	Licenses     *LicenseRepository
	Audit        *AuditRepository
}

// NewRepositories wires all repositories backed by the provided executor, normally a *pgxpool.Pool.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Subjects:     NewSubjectRepository(exec),
		Bans:         NewBanRepository(exec),
		AddressUsage: NewAddressUsageRepository(exec),
		Licenses:     NewLicenseRepository(exec),
		Audit:        NewAuditRepository(exec),
	}
}
