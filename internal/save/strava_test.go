package save

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-theentity/internal/pursuit"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var credCols = []string{"strava_athlete_id", "strava_access_token", "strava_refresh_token", "strava_token_expires_at"}

func TestLinkStrava(t *testing.T) {
	mock := newMock(t)
	exp := t0.Add(6 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE saves SET strava_athlete_id`).
		WithArgs(testPlayer, "athlete-1", "access", "refresh", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO strava_mappings`).
		WithArgs("athlete-1", testPlayer, "app").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := NewStore(mock).LinkStrava(context.Background(), testPlayer, "app", Credential{
		AthleteID: "athlete-1", AccessToken: "access", RefreshToken: "refresh", ExpiresAt: exp,
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLinkStravaMissingSave(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE saves SET strava_athlete_id`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := NewStore(mock).LinkStrava(context.Background(), testPlayer, "app", Credential{AthleteID: "a"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveAthlete(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectQuery(`FROM strava_mappings`).WithArgs("athlete-1").
		WillReturnRows(pgxmock.NewRows([]string{"athlete_id", "player_id", "app_namespace"}).AddRow("athlete-1", testPlayer, "app"))
	m, err := store.ResolveAthlete(context.Background(), "athlete-1")
	if err != nil || m.PlayerID != testPlayer {
		t.Fatalf("unexpected mapping %+v err %v", m, err)
	}

	mock.ExpectQuery(`FROM strava_mappings`).WithArgs("nobody").WillReturnError(pgx.ErrNoRows)
	if _, err := store.ResolveAthlete(context.Background(), "nobody"); !errors.Is(err, ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
}

func TestUnlink(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM strava_mappings`).WithArgs("athlete-1").
		WillReturnRows(pgxmock.NewRows([]string{"player_id"}).AddRow(testPlayer))
	mock.ExpectExec(`UPDATE saves SET strava_athlete_id=''`).WithArgs(testPlayer, "athlete-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	player, err := NewStore(mock).Unlink(context.Background(), "athlete-1")
	if err != nil || player != testPlayer {
		t.Fatalf("unlink: %q %v", player, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshCredentialKeepsValidToken(t *testing.T) {
	mock := newMock(t)
	exp := t0.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM saves WHERE player_id=\$1 FOR UPDATE`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("athlete-1", "access", "refresh", &exp))
	mock.ExpectCommit()

	called := false
	cred, err := NewStore(mock).RefreshCredential(context.Background(), testPlayer, t0, false, func(context.Context, Credential) (Credential, error) {
		called = true
		return Credential{}, nil
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if called || cred.AccessToken != "access" {
		t.Fatalf("expected stored token to be reused")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshCredentialRefreshesExpired(t *testing.T) {
	mock := newMock(t)
	exp := t0.Add(30 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM saves WHERE player_id=\$1 FOR UPDATE`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("athlete-1", "old", "refresh", &exp))
	mock.ExpectExec(`UPDATE saves SET strava_access_token`).
		WithArgs(testPlayer, "new", "refresh-2", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	cred, err := NewStore(mock).RefreshCredential(context.Background(), testPlayer, t0, false, func(_ context.Context, c Credential) (Credential, error) {
		if c.RefreshToken != "refresh" {
			t.Fatalf("unexpected refresh token %q", c.RefreshToken)
		}
		return Credential{AccessToken: "new", RefreshToken: "refresh-2", ExpiresAt: t0.Add(6 * time.Hour)}, nil
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if cred.AccessToken != "new" || cred.AthleteID != "athlete-1" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshCredentialFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("athlete-1", "old", "refresh", nil))
	mock.ExpectRollback()

	boom := errors.New("strava down")
	_, err := NewStore(mock).RefreshCredential(context.Background(), testPlayer, t0, true, func(context.Context, Credential) (Credential, error) {
		return Credential{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected refresh error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialUnlinked(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM saves WHERE player_id=\$1`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("", "", "", nil))

	if _, err := NewStore(mock).Credential(context.Background(), testPlayer); !errors.Is(err, ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
}

func TestPurchaseLifecycle(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectQuery(`INSERT INTO purchases`).
		WithArgs(pgxmock.AnyArg(), testPlayer, "continue", "awaiting_payment").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(t0))
	p, err := store.CreatePurchase(context.Background(), testPlayer, pursuit.ConsumableContinue)
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if p.Status != PurchaseAwaitingPayment || p.ID == "" {
		t.Fatalf("unexpected purchase %+v", p)
	}

	purchaseCols := []string{"id", "player_id", "item", "status", "created_at", "applied_at"}
	mock.ExpectBegin()
	expectLoad(mock, saveRow(0, 0, 0, 0), pgxmock.NewRows(runCols), nil)
	mock.ExpectQuery(`FROM purchases WHERE id=\$1 AND player_id=\$2 FOR UPDATE`).WithArgs(p.ID, testPlayer).
		WillReturnRows(pgxmock.NewRows(purchaseCols).AddRow(p.ID, testPlayer, "continue", "awaiting_payment", t0, nil))
	mock.ExpectExec(`UPDATE purchases SET status`).
		WithArgs(p.ID, "applied", "awaiting_payment").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	_, err = store.Mutate(context.Background(), testPlayer, func(m *Mutation) error {
		locked, err := m.LockPurchase(p.ID)
		if err != nil {
			return err
		}
		if locked.Item != pursuit.ConsumableContinue {
			t.Fatalf("unexpected item %q", locked.Item)
		}
		return m.MarkApplied(locked.ID)
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	mock.ExpectQuery(`FROM purchases WHERE id=\$1`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := store.GetPurchase(context.Background(), "missing"); !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
