package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/chat-moderation/internal/core/domain"
)

func TestAddressUsageRepository_CountByAddress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAddressUsageRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chat\.ip_usage WHERE address = \$1`).
		WithArgs("10.0.0.1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByAddress(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("CountByAddress returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestAddressUsageRepository_TouchReportsInsertOrRefresh(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAddressUsageRepository(mock)
	now := time.Now().UTC()
	usage := domain.AddressUsage{UserID: "target-user-0001", Address: "10.0.0.1", RecordedAt: now, LastUsed: now}

	mock.ExpectQuery(`INSERT INTO chat\.ip_usage .* ON CONFLICT \(user_id, address\) DO UPDATE SET`).
		WithArgs(pgxmock.AnyArg(), usage.UserID, usage.Address, usage.Email, now, now).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO chat\.ip_usage`).
		WithArgs(pgxmock.AnyArg(), usage.UserID, usage.Address, usage.Email, now, now).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	created, err := repo.Touch(context.Background(), usage)
	if err != nil || !created {
		t.Fatalf("expected insert, got created=%v err=%v", created, err)
	}
	created, err = repo.Touch(context.Background(), usage)
	if err != nil || created {
		t.Fatalf("expected refresh, got created=%v err=%v", created, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
