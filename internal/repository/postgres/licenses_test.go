package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

func TestLicenseRepository_CreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLicenseRepository(mock)

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	license := domain.License{
		ID:           "license-1",
		KeyHash:      "4f2c",
		KeyPrefix:    "LIC-ABCDEFGH",
		Plan:         domain.LicensePlanPro,
		ValidityDays: 365,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.AddDate(0, 0, 365),
		IssuedBy:     "admin-subject-01",
	}

	mock.ExpectExec(`INSERT INTO chat\.licenses`).
		WithArgs(
			license.ID,
			license.KeyHash,
			license.KeyPrefix,
			"Pro",
			365,
			license.IssuedAt,
			license.ExpiresAt,
			license.IssuedBy,
			license.RedeemedBy,
			license.RedeemedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(`SELECT .* FROM chat\.licenses WHERE id = \$1`).
		WithArgs("license-1").
		WillReturnRows(pgxmock.NewRows(licenseColumns).AddRow(
			license.ID, license.KeyHash, license.KeyPrefix, "Pro", 365,
			license.IssuedAt, license.ExpiresAt, license.IssuedBy, nil, nil,
		))

	if err := repo.Create(context.Background(), license); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), "license-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if diff := cmp.Diff(license, *got); diff != "" {
		t.Fatalf("license mismatch (-want +got):\n%s", diff)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
