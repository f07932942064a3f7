package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-theentity/internal/pursuit"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

type PurchaseStatus string

const (
	PurchaseAwaitingPayment PurchaseStatus = "awaiting_payment"
	PurchaseApplied         PurchaseStatus = "applied"
)

// Purchase is a paid consumable request. It is created awaiting payment and
// applied exactly once when the payment provider confirms it.
type Purchase struct {
	ID        string             `json:"id"`
	PlayerID  string             `json:"player_id"`
	Item      pursuit.Consumable `json:"item"`
	Status    PurchaseStatus     `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	AppliedAt *time.Time         `json:"applied_at,omitempty"`
}

func (s *Store) CreatePurchase(ctx context.Context, playerID string, item pursuit.Consumable) (Purchase, error) {
	p := Purchase{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Item:     item,
		Status:   PurchaseAwaitingPayment,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO purchases (id, player_id, item, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, p.ID, p.PlayerID, string(p.Item), string(p.Status)).Scan(&p.CreatedAt)
	if err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	return p, nil
}

const selectPurchase = `
	SELECT id, player_id, item, status, created_at, applied_at
	FROM purchases WHERE id=$1`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var item, status string
	err := row.Scan(&p.ID, &p.PlayerID, &item, &status, &p.CreatedAt, &p.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrPurchaseNotFound
	}
	if err != nil {
		return Purchase{}, err
	}
	p.Item = pursuit.Consumable(item)
	p.Status = PurchaseStatus(status)
	return p, nil
}

func (s *Store) GetPurchase(ctx context.Context, id string) (Purchase, error) {
	return scanPurchase(s.db.QueryRow(ctx, selectPurchase, id))
}

// LockPurchase reads a purchase of the locked player for update.
func (m *Mutation) LockPurchase(id string) (Purchase, error) {
	return scanPurchase(m.tx.QueryRow(m.ctx, selectPurchase+" AND player_id=$2 FOR UPDATE", id, m.save.PlayerID))
}

func (m *Mutation) MarkApplied(id string) error {
	_, err := m.tx.Exec(m.ctx, `
		UPDATE purchases SET status=$2, applied_at=now()
		WHERE id=$1 AND status=$3
	`, id, string(PurchaseApplied), string(PurchaseAwaitingPayment))
	if err != nil {
		return fmt.Errorf("mark purchase applied: %w", err)
	}
	return nil
}
