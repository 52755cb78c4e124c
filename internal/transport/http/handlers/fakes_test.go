package handlers_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arklim/chat-moderation/internal/core/domain"
	"github.com/arklim/chat-moderation/internal/repository"
)

const (
	adminToken    = "admin-token-0001"
	memberToken   = "member-token-001"
	adminID       = "admin-00000001"
	memberID      = "member-0000001"
	targetID      = "target-0000001"
	unknownUserID = "ghost-00000001"
)

var errStoreDown = errors.New("connection refused")

type memTokens map[string]string

func (m memTokens) VerifyIDToken(_ context.Context, token string) (*domain.SubjectIdentity, error) {
	subjectID, ok := m[token]
	if !ok {
		return nil, errors.New("signature invalid")
	}
	return &domain.SubjectIdentity{SubjectID: subjectID}, nil
}

type memStore struct {
	mu       sync.Mutex
	down     bool
	subjects map[string]*domain.Subject
	bans     map[string]domain.BanRecord
	usage    []domain.AddressUsage
	licenses map[string]domain.License
	audit    []domain.AuditEntry
	writes   int
}

func newMemStore() *memStore {
	return &memStore{
		subjects: map[string]*domain.Subject{
			adminID:  {ID: adminID, IsAdmin: true},
			memberID: {ID: memberID},
			targetID: {ID: targetID},
		},
		bans:     make(map[string]domain.BanRecord),
		licenses: make(map[string]domain.License),
	}
}

func banKey(kind domain.BanKind, target string) string {
	return string(kind) + "|" + target
}

type memSubjects struct{ *memStore }

func (s memSubjects) GetByID(_ context.Context, id string) (*domain.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	subject, ok := s.subjects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *subject
	return &copied, nil
}

func (s memSubjects) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return false, errStoreDown
	}
	_, ok := s.subjects[id]
	return ok, nil
}

func (s memSubjects) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.writes++
	subject.IsAdmin = isAdmin
	return nil
}

func (s memSubjects) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[id]; !ok {
		return repository.ErrNotFound
	}
	s.writes++
	delete(s.subjects, id)
	return nil
}

type memBans struct{ *memStore }

func (s memBans) Upsert(_ context.Context, ban domain.BanRecord) (*domain.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	s.writes++
	if ban.ID == "" {
		ban.ID = "ban-" + ban.Target
	}
	s.bans[banKey(ban.Kind, ban.Target)] = ban
	return &ban, nil
}

func (s memBans) GetByTarget(_ context.Context, kind domain.BanKind, target string) (*domain.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errStoreDown
	}
	ban, ok := s.bans[banKey(kind, target)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ban, nil
}

func (s memBans) DeleteByTarget(_ context.Context, kind domain.BanKind, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := banKey(kind, target)
	if _, ok := s.bans[key]; !ok {
		return repository.ErrNotFound
	}
	s.writes++
	delete(s.bans, key)
	return nil
}

func (s memBans) DeleteExpired(_ context.Context, id string, kind domain.BanKind, reference time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ban := range s.bans {
		if ban.ID == id && ban.Kind == kind && ban.ExpiredAt(reference) {
			delete(s.bans, key)
			return true, nil
		}
	}
	return false, nil
}

type memUsage struct{ *memStore }

func (s memUsage) CountByAddress(_ context.Context, address string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, errStoreDown
	}
	count := 0
	for _, u := range s.usage {
		if u.Address == address {
			count++
		}
	}
	return count, nil
}

func (s memUsage) Touch(_ context.Context, usage domain.AddressUsage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.usage {
		if u.UserID == usage.UserID && u.Address == usage.Address {
			s.usage[i].LastUsed = usage.LastUsed
			return false, nil
		}
	}
	s.usage = append(s.usage, usage)
	return true, nil
}

type memLicenses struct{ *memStore }

func (s memLicenses) Create(_ context.Context, license domain.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.licenses[license.ID] = license
	return nil
}

func (s memLicenses) GetByID(_ context.Context, id string) (*domain.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	license, ok := s.licenses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &license, nil
}

type memAudit struct{ *memStore }

func (s memAudit) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}
