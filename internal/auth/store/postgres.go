package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"unionregistry/internal/auth/models"
	"unionregistry/internal/storage/postgres"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
	txcontext "unionregistry/pkg/platform/tx"
)

// PostgresStore persists accounts in the accounts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, username, role, dealer_id, password_hash, email, mobile,
	totp_secret, totp_enabled, temporary_password, last_login_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.Account) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(a.ID), a.Username, string(a.Role), dealerParam(a), a.PasswordHash, a.Email, a.Mobile,
		a.TOTPSecret, a.TOTPEnabled, a.TemporaryPassword, postgres.NullTime(a.LastLoginAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

func (s *PostgresStore) FindByDealerID(ctx context.Context, dealerID id.DealerID) (*models.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE dealer_id = $1`, uuid.UUID(dealerID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	account, err := scanAccount(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Account) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2, email = $3, mobile = $4, totp_secret = $5, totp_enabled = $6,
		    temporary_password = $7, last_login_at = $8, updated_at = $9
		WHERE id = $1
	`, uuid.UUID(a.ID), a.PasswordHash, a.Email, a.Mobile, a.TOTPSecret, a.TOTPEnabled,
		a.TemporaryPassword, postgres.NullTime(a.LastLoginAt), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDealerProfiles(ctx context.Context) ([]*models.Account, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 ORDER BY username`, string(models.RoleDealer))
	if err != nil {
		return nil, fmt.Errorf("list dealer profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func dealerParam(a *models.Account) uuid.NullUUID {
	if !a.IsDealer() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(a.DealerID), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		a         models.Account
		accountID uuid.UUID
		dealerID  uuid.NullUUID
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&accountID, &a.Username, &role, &dealerID, &a.PasswordHash, &a.Email, &a.Mobile,
		&a.TOTPSecret, &a.TOTPEnabled, &a.TemporaryPassword, &lastLogin, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.ProfileID(accountID)
	a.Role = models.Role(role)
	if dealerID.Valid {
		a.DealerID = id.DealerID(dealerID.UUID)
	}
	a.LastLoginAt = postgres.TimePtr(lastLogin)
	return &a, nil
}
