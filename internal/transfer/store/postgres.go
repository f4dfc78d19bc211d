package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"unionregistry/internal/storage/postgres"
	"unionregistry/internal/transfer/models"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
	txcontext "unionregistry/pkg/platform/tx"
)

const columns = `id, client_id, from_dealer_id, to_dealer_id, status, reason, requested_by, decided_by, created_at, decided_at`

// PostgresStore persists transfer requests in the transfer_requests table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Execer {
	return txcontext.Pick(ctx, s.db)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row scanner) (*models.TransferRequest, error) {
	var (
		t                        models.TransferRequest
		transferID, clientID     uuid.UUID
		fromDealerID, toDealerID uuid.UUID
		status                   string
		decidedAt                sql.NullTime
	)
	if err := row.Scan(&transferID, &clientID, &fromDealerID, &toDealerID, &status, &t.Reason,
		&t.RequestedBy, &t.DecidedBy, &t.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	t.ID = id.TransferID(transferID)
	t.ClientID = id.ClientID(clientID)
	t.FromDealerID = id.DealerID(fromDealerID)
	t.ToDealerID = id.DealerID(toDealerID)
	t.Status = models.Status(status)
	t.DecidedAt = postgres.TimePtr(decidedAt)
	return &t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *models.TransferRequest) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO transfer_requests (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(t.ID), uuid.UUID(t.ClientID), uuid.UUID(t.FromDealerID), uuid.UUID(t.ToDealerID),
		string(t.Status), t.Reason, t.RequestedBy, t.DecidedBy, t.CreatedAt, postgres.NullTime(t.DecidedAt))
	if err != nil {
		if postgres.IsUniqueViolation(err, "transfer_requests_pkey") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert transfer request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	return s.find(ctx, `SELECT `+columns+` FROM transfer_requests WHERE id = $1`, transferID)
}

// FindForUpdate row-locks the request until the enclosing transaction ends,
// so concurrent approve and reject calls observe each other's decision.
func (s *PostgresStore) FindForUpdate(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	return s.find(ctx, `SELECT `+columns+` FROM transfer_requests WHERE id = $1 FOR UPDATE`, transferID)
}

func (s *PostgresStore) find(ctx context.Context, query string, transferID id.TransferID) (*models.TransferRequest, error) {
	t, err := scanTransfer(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(transferID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transfer request: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.TransferRequest) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE transfer_requests
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1
	`, uuid.UUID(t.ID), string(t.Status), t.DecidedBy, postgres.NullTime(t.DecidedAt))
	if err != nil {
		return fmt.Errorf("update transfer request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer request rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns matching requests, newest first.
func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.TransferRequest, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if !filter.DealerID.IsNil() {
		add("(from_dealer_id = ? OR to_dealer_id = ?)", uuid.UUID(filter.DealerID))
	}
	if !filter.ClientID.IsNil() {
		add("client_id = ?", uuid.UUID(filter.ClientID))
	}

	query := `SELECT ` + columns + ` FROM transfer_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfer requests: %w", err)
	}
	defer rows.Close()

	var out []*models.TransferRequest
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer request: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
