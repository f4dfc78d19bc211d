package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"unionregistry/internal/dealer/models"
	"unionregistry/internal/storage/postgres"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
	txcontext "unionregistry/pkg/platform/tx"
)

// PostgresStore persists dealers in the dealers table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a dealer store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const dealerColumns = `id, legal_name, outlet_name, location, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, dealer *models.Dealer) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO dealers (`+dealerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(dealer.ID), dealer.LegalName, dealer.OutletName, dealer.Location,
		string(dealer.Status), dealer.CreatedAt, dealer.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert dealer: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, dealerID id.DealerID) (*models.Dealer, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+dealerColumns+` FROM dealers WHERE id = $1`, uuid.UUID(dealerID))
	dealer, err := scanDealer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find dealer: %w", err)
	}
	return dealer, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Dealer, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+dealerColumns+` FROM dealers ORDER BY lower(outlet_name), id`)
	if err != nil {
		return nil, fmt.Errorf("list dealers: %w", err)
	}
	defer rows.Close()

	var out []*models.Dealer
	for rows.Next() {
		dealer, err := scanDealer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dealer: %w", err)
		}
		out = append(out, dealer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dealers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, dealer *models.Dealer) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE dealers
		SET legal_name = $2, outlet_name = $3, location = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, uuid.UUID(dealer.ID), dealer.LegalName, dealer.OutletName, dealer.Location,
		string(dealer.Status), dealer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update dealer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dealer rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT count(*) FROM dealers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dealers: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDealer(row scanner) (*models.Dealer, error) {
	var (
		dealer   models.Dealer
		dealerID uuid.UUID
		status   string
	)
	if err := row.Scan(&dealerID, &dealer.LegalName, &dealer.OutletName, &dealer.Location,
		&status, &dealer.CreatedAt, &dealer.UpdatedAt); err != nil {
		return nil, err
	}
	dealer.ID = id.DealerID(dealerID)
	dealer.Status = models.Status(status)
	return &dealer, nil
}
