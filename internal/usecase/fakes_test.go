package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/repository"
)

const (
	adminToken   = "admin-token-0001"
	memberToken  = "member-token-001"
	adminID      = "admin-subject-01"
	memberID     = "member-subject-1"
	targetUserID = "target-user-0001"
)

var errStoreDown = errors.New("connection refused")

type stubIdentityProvider struct {
	subjects map[string]string
	calls    int
}

func (s *stubIdentityProvider) VerifyIDToken(_ context.Context, token string) (*domain.SubjectIdentity, error) {
	s.calls++
	subject, ok := s.subjects[token]
	if !ok {
		return nil, errors.New("signature invalid")
	}
	return &domain.SubjectIdentity{SubjectID: subject}, nil
}

type stubSubjectRepo struct {
	mu       sync.Mutex
	subjects map[string]domain.Subject
	getErr   error
	calls    int
}

func newStubSubjectRepo(subjects ...domain.Subject) *stubSubjectRepo {
	repo := &stubSubjectRepo{subjects: make(map[string]domain.Subject)}
	for _, s := range subjects {
		repo.subjects[s.ID] = s
	}
	return repo
}

func (r *stubSubjectRepo) GetByID(_ context.Context, id string) (*domain.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.getErr != nil {
		return nil, r.getErr
	}
	subject, ok := r.subjects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &subject, nil
}

func (r *stubSubjectRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	_, ok := r.subjects[id]
	return ok, nil
}

func (r *stubSubjectRepo) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	subject, ok := r.subjects[id]
	if !ok {
		return repository.ErrNotFound
	}
	subject.IsAdmin = isAdmin
	r.subjects[id] = subject
	return nil
}

func (r *stubSubjectRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if _, ok := r.subjects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.subjects, id)
	return nil
}

func (r *stubSubjectRepo) isAdmin(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subjects[id].IsAdmin
}

type banKey struct {
	kind   domain.BanKind
	target string
}

type stubBanRepo struct {
	bans      map[banKey]domain.BanRecord
	upsertErr error
	deleteErr error
	calls     int
}

func newStubBanRepo() *stubBanRepo {
	return &stubBanRepo{bans: make(map[banKey]domain.BanRecord)}
}

func (r *stubBanRepo) Upsert(_ context.Context, ban domain.BanRecord) (*domain.BanRecord, error) {
	r.calls++
	if r.upsertErr != nil {
		return nil, r.upsertErr
	}
	r.bans[banKey{ban.Kind, ban.Target}] = ban
	return &ban, nil
}

func (r *stubBanRepo) GetByTarget(_ context.Context, kind domain.BanKind, target string) (*domain.BanRecord, error) {
	r.calls++
	ban, ok := r.bans[banKey{kind, target}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ban, nil
}

func (r *stubBanRepo) DeleteByTarget(_ context.Context, kind domain.BanKind, target string) error {
	r.calls++
	key := banKey{kind, target}
	if _, ok := r.bans[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.bans, key)
	return nil
}

func (r *stubBanRepo) DeleteExpired(_ context.Context, id string, kind domain.BanKind, reference time.Time) (bool, error) {
	r.calls++
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	for key, ban := range r.bans {
		if ban.ID == id && key.kind == kind && ban.ExpiredAt(reference) {
			delete(r.bans, key)
			return true, nil
		}
	}
	return false, nil
}

func (r *stubBanRepo) put(ban domain.BanRecord) {
	r.bans[banKey{ban.Kind, ban.Target}] = ban
}

func (r *stubBanRepo) has(kind domain.BanKind, target string) bool {
	_, ok := r.bans[banKey{kind, target}]
	return ok
}

type stubAddressUsageRepo struct {
	records []domain.AddressUsage
	calls   int
}

func (r *stubAddressUsageRepo) CountByAddress(_ context.Context, address string) (int, error) {
	r.calls++
	count := 0
	for _, rec := range r.records {
		if rec.Address == address {
			count++
		}
	}
	return count, nil
}

func (r *stubAddressUsageRepo) Touch(_ context.Context, usage domain.AddressUsage) (bool, error) {
	r.calls++
	for i, rec := range r.records {
		if rec.UserID == usage.UserID && rec.Address == usage.Address {
			r.records[i].LastUsed = usage.LastUsed
			if usage.Email != nil {
				r.records[i].Email = usage.Email
			}
			return false, nil
		}
	}
	usage.ID = time.Now().String()
	r.records = append(r.records, usage)
	return true, nil
}

type stubLicenseRepo struct {
	licenses map[string]domain.License
	calls    int
}

func newStubLicenseRepo() *stubLicenseRepo {
	return &stubLicenseRepo{licenses: make(map[string]domain.License)}
}

func (r *stubLicenseRepo) Create(_ context.Context, license domain.License) error {
	r.calls++
	r.licenses[license.ID] = license
	return nil
}

func (r *stubLicenseRepo) GetByID(_ context.Context, id string) (*domain.License, error) {
	r.calls++
	license, ok := r.licenses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &license, nil
}

type stubAuditRepo struct {
	entries []domain.AuditEntry
	err     error
}

func (r *stubAuditRepo) Append(_ context.Context, entry domain.AuditEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

type stubPublisher struct {
	events []domain.ModerationEvent
	err    error
}

func (p *stubPublisher) PublishModerationAction(_ context.Context, event domain.ModerationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type stubAccountRemover struct {
	removed []string
	err     error
}

func (r *stubAccountRemover) RemoveAccount(_ context.Context, subjectID string) error {
	r.removed = append(r.removed, subjectID)
	return r.err
}

type stubModerationMetrics struct {
	counts map[string]int
}

func (m *stubModerationMetrics) RecordAction(action, outcome string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[action+"/"+outcome]++
}

type stubGuardMetrics struct {
	counts map[string]int
}

func (m *stubGuardMetrics) RecordCheck(check, result string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[check+"/"+result]++
}
