package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/chat-moderation/internal/repository"
)

func TestSubjectRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubjectRepository(mock)
	createdAt := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "email", "is_admin", "created_at"}).
		AddRow("admin-subject-01", "admin@example.com", true, createdAt)
	mock.ExpectQuery(`SELECT id, email, is_admin, created_at FROM chat\.users WHERE id = \$1`).
		WithArgs("admin-subject-01").
		WillReturnRows(rows)

	subject, err := repo.GetByID(context.Background(), "admin-subject-01")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if !subject.IsAdmin || subject.Email != "admin@example.com" {
		t.Fatalf("unexpected subject: %+v", subject)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubjectRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubjectRepository(mock)

	mock.ExpectQuery(`FROM chat\.users`).
		WithArgs("missing-subject").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "is_admin", "created_at"}))

	if _, err := repo.GetByID(context.Background(), "missing-subject"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubjectRepository_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubjectRepository(mock)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("target-user-0001").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "target-user-0001")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected subject to exist")
	}
}

func TestSubjectRepository_SetAdmin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubjectRepository(mock)

	mock.ExpectExec(`UPDATE chat\.users SET is_admin = \$1 WHERE id = \$2`).
		WithArgs(true, "member-subject-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE chat\.users`).
		WithArgs(true, "missing-subject").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.SetAdmin(context.Background(), "member-subject-1", true); err != nil {
		t.Fatalf("SetAdmin returned error: %v", err)
	}
	if err := repo.SetAdmin(context.Background(), "missing-subject", true); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSubjectRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSubjectRepository(mock)

	mock.ExpectExec(`DELETE FROM chat\.users WHERE id = \$1`).
		WithArgs("target-user-0001").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.Delete(context.Background(), "target-user-0001"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
