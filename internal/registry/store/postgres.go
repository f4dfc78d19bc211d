package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"unionregistry/internal/registry/models"
	"unionregistry/internal/storage/postgres"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
	txcontext "unionregistry/pkg/platform/tx"
)

// Unique indexes whose violation means an exclusivity rule was hit.
const (
	constraintActiveEmployment = "employments_one_active_per_person"
	constraintActiveLink       = "client_dealer_links_one_active_per_client"
)

// PostgresStore implements the registry store on the schema in
// internal/storage/postgres. Every method joins the transaction in ctx.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Execer {
	return txcontext.Pick(ctx, s.db)
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// -----------------------------------------------------------------------------
// Persons
// -----------------------------------------------------------------------------

const personColumns = `id, national_id, name, mobile, email, address, date_of_birth, created_at`

func scanPerson(row scanner) (*models.Person, error) {
	var (
		p        models.Person
		personID uuid.UUID
		dob      sql.NullTime
	)
	if err := row.Scan(&personID, &p.NationalID, &p.Name, &p.Mobile, &p.Email, &p.Address, &dob, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PersonID(personID)
	p.DateOfBirth = postgres.TimePtr(dob)
	return &p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO persons (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(p.ID), p.NationalID, p.Name, p.Mobile, p.Email, p.Address, postgres.NullTime(p.DateOfBirth), p.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPersonByID(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	p, err := scanPerson(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, uuid.UUID(personID)))
	if err != nil {
		return nil, notFound(err, "find person")
	}
	return p, nil
}

func (s *PostgresStore) FindPersonByNationalID(ctx context.Context, nationalID string) (*models.Person, error) {
	p, err := scanPerson(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE national_id = $1`, nationalID))
	if err != nil {
		return nil, notFound(err, "find person by national id")
	}
	return p, nil
}

func (s *PostgresStore) SearchPersons(ctx context.Context, c models.PersonCriteria, limit int) ([]*models.Person, error) {
	w := &where{}
	if c.NationalID != "" {
		w.add("national_id = ?", c.NationalID)
	}
	if c.Name != "" {
		w.add("name ILIKE ?", "%"+escapeLike(c.Name)+"%")
	}
	if c.Mobile != "" {
		w.add("mobile LIKE ?", "%"+escapeLike(c.Mobile)+"%")
	}
	query := `SELECT ` + personColumns + ` FROM persons` + w.sql() + ` ORDER BY lower(name), id` + w.limit(limit)

	rows, err := s.q(ctx).QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search persons: %w", err)
	}
	defer rows.Close()

	var out []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Employments
// -----------------------------------------------------------------------------

const employmentColumns = `id, person_id, dealer_id, joined_on, ended_on, status, created_at, updated_at`

func scanEmployment(row scanner) (*models.Employment, error) {
	var (
		e                      models.Employment
		empID, personID, deaID uuid.UUID
		ended                  sql.NullTime
		status                 string
	)
	if err := row.Scan(&empID, &personID, &deaID, &e.JoinedOn, &ended, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ID = id.EmploymentID(empID)
	e.PersonID = id.PersonID(personID)
	e.DealerID = id.DealerID(deaID)
	e.EndedOn = postgres.TimePtr(ended)
	e.Status = models.Status(status)
	return &e, nil
}

func (s *PostgresStore) queryEmployments(ctx context.Context, query string, args ...any) ([]*models.Employment, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employments: %w", err)
	}
	defer rows.Close()

	var out []*models.Employment
	for rows.Next() {
		e, err := scanEmployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEmployment(ctx context.Context, e *models.Employment) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO employments (`+employmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(e.ID), uuid.UUID(e.PersonID), uuid.UUID(e.DealerID), e.JoinedOn,
		postgres.NullTime(e.EndedOn), string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, constraintActiveEmployment) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert employment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindEmploymentByID(ctx context.Context, employmentID id.EmploymentID) (*models.Employment, error) {
	e, err := scanEmployment(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+employmentColumns+` FROM employments WHERE id = $1`, uuid.UUID(employmentID)))
	if err != nil {
		return nil, notFound(err, "find employment")
	}
	return e, nil
}

func (s *PostgresStore) FindActiveEmploymentByPerson(ctx context.Context, personID id.PersonID) (*models.Employment, error) {
	e, err := scanEmployment(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+employmentColumns+` FROM employments WHERE person_id = $1 AND status = 'ACTIVE'`, uuid.UUID(personID)))
	if err != nil {
		return nil, notFound(err, "find active employment")
	}
	return e, nil
}

func (s *PostgresStore) UpdateEmployment(ctx context.Context, e *models.Employment) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE employments SET ended_on = $2, status = $3, updated_at = $4 WHERE id = $1
	`, uuid.UUID(e.ID), postgres.NullTime(e.EndedOn), string(e.Status), e.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, constraintActiveEmployment) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update employment: %w", err)
	}
	return requireAffected(res, "update employment")
}

func (s *PostgresStore) ListEmploymentsByPerson(ctx context.Context, personID id.PersonID) ([]*models.Employment, error) {
	return s.queryEmployments(ctx, `SELECT `+employmentColumns+` FROM employments
		WHERE person_id = $1 ORDER BY joined_on DESC, created_at DESC`, uuid.UUID(personID))
}

func (s *PostgresStore) ListActiveEmployments(ctx context.Context, dealerID id.DealerID) ([]*models.Employment, error) {
	if dealerID.IsNil() {
		return s.queryEmployments(ctx, `SELECT `+employmentColumns+` FROM employments
			WHERE status = 'ACTIVE' ORDER BY joined_on DESC, id`)
	}
	return s.queryEmployments(ctx, `SELECT `+employmentColumns+` FROM employments
		WHERE status = 'ACTIVE' AND dealer_id = $1 ORDER BY joined_on DESC, id`, uuid.UUID(dealerID))
}

func (s *PostgresStore) CountActiveEmployments(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM employments WHERE status = 'ACTIVE'`)
}

func (s *PostgresStore) CreateSeparation(ctx context.Context, ev *models.SeparationEvent) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO separation_events (id, employment_id, separated_on, separation_type, remarks, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(ev.ID), uuid.UUID(ev.EmploymentID), ev.SeparatedOn, string(ev.Type), ev.Remarks, ev.RecordedBy, ev.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert separation event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSeparation(ctx context.Context, employmentID id.EmploymentID) (*models.SeparationEvent, error) {
	var (
		ev           models.SeparationEvent
		evID, empID  uuid.UUID
		separationTy string
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, employment_id, separated_on, separation_type, remarks, recorded_by, created_at
		FROM separation_events WHERE employment_id = $1
	`, uuid.UUID(employmentID)).Scan(&evID, &empID, &ev.SeparatedOn, &separationTy, &ev.Remarks, &ev.RecordedBy, &ev.CreatedAt)
	if err != nil {
		return nil, notFound(err, "find separation event")
	}
	ev.ID = id.SeparationID(evID)
	ev.EmploymentID = id.EmploymentID(empID)
	ev.Type = models.SeparationType(separationTy)
	return &ev, nil
}

// -----------------------------------------------------------------------------
// Clients and vehicles
// -----------------------------------------------------------------------------

const clientColumns = `id, client_type, tax_id, gov_client_key, name, org_name, office_code, reference,
	contact_person, mobile, email, address, gstin, created_at`

func scanClient(row scanner) (*models.Client, error) {
	var (
		c             models.Client
		clientID      uuid.UUID
		clientType    string
		taxID, govKey sql.NullString
	)
	if err := row.Scan(&clientID, &clientType, &taxID, &govKey, &c.Name, &c.OrgName, &c.OfficeCode, &c.Reference,
		&c.ContactPerson, &c.Mobile, &c.Email, &c.Address, &c.GSTIN, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ClientID(clientID)
	c.Type = models.ClientType(clientType)
	c.TaxID = taxID.String
	c.GovClientKey = govKey.String
	return &c, nil
}

func (s *PostgresStore) CreateClient(ctx context.Context, c *models.Client) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, uuid.UUID(c.ID), string(c.Type), nullString(c.TaxID), nullString(c.GovClientKey), c.Name, c.OrgName,
		c.OfficeCode, c.Reference, c.ContactPerson, c.Mobile, c.Email, c.Address, c.GSTIN, c.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindClientByID(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	c, err := scanClient(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1`, uuid.UUID(clientID)))
	if err != nil {
		return nil, notFound(err, "find client")
	}
	return c, nil
}

func (s *PostgresStore) FindClientByIdentity(ctx context.Context, t models.ClientType, key string) (*models.Client, error) {
	column := "tax_id"
	if t == models.ClientGovernment {
		column = "gov_client_key"
	}
	c, err := scanClient(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE `+column+` = $1`, key))
	if err != nil {
		return nil, notFound(err, "find client by identity")
	}
	return c, nil
}

func (s *PostgresStore) SearchClients(ctx context.Context, c models.ClientCriteria, limit int) ([]*models.Client, error) {
	w := &where{}
	if c.TaxID != "" {
		w.add("c.tax_id = ?", c.TaxID)
	}
	if c.GovClientKey != "" {
		w.add("c.gov_client_key = ?", c.GovClientKey)
	}
	if c.VehicleRegistration != "" {
		w.add("EXISTS (SELECT 1 FROM vehicles v WHERE v.client_id = c.id AND v.registration = ?)", c.VehicleRegistration)
	}
	if c.Name != "" {
		pattern := "%" + escapeLike(c.Name) + "%"
		w.add("(c.name ILIKE ? OR c.org_name ILIKE ?)", pattern, pattern)
	}
	columns := "c." + strings.ReplaceAll(clientColumns, ", ", ", c.")
	query := `SELECT ` + columns + ` FROM clients c` + w.sql() + ` ORDER BY lower(c.name), c.id` + w.limit(limit)

	rows, err := s.q(ctx).QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		cl, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO vehicles (id, client_id, registration, fuel_type, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(v.ID), uuid.UUID(v.ClientID), v.Registration, v.FuelType, v.Notes, v.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func scanVehicle(row scanner) (*models.Vehicle, error) {
	var (
		v                   models.Vehicle
		vehicleID, clientID uuid.UUID
	)
	if err := row.Scan(&vehicleID, &clientID, &v.Registration, &v.FuelType, &v.Notes, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.ID = id.VehicleID(vehicleID)
	v.ClientID = id.ClientID(clientID)
	return &v, nil
}

func (s *PostgresStore) FindVehicleByRegistration(ctx context.Context, registration string) (*models.Vehicle, error) {
	v, err := scanVehicle(s.q(ctx).QueryRowContext(ctx, `
		SELECT id, client_id, registration, fuel_type, notes, created_at
		FROM vehicles WHERE registration = $1
	`, registration))
	if err != nil {
		return nil, notFound(err, "find vehicle")
	}
	return v, nil
}

func (s *PostgresStore) ListVehiclesByClient(ctx context.Context, clientID id.ClientID) ([]*models.Vehicle, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, client_id, registration, fuel_type, notes, created_at
		FROM vehicles WHERE client_id = $1 ORDER BY registration
	`, uuid.UUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountVehicles(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM vehicles`)
}

// -----------------------------------------------------------------------------
// Client-dealer links
// -----------------------------------------------------------------------------

const linkColumns = `id, client_id, dealer_id, status, onboarded_on, offboarded_on, offboarding_reason, created_at, updated_at`

func scanLink(row scanner) (*models.Link, error) {
	var (
		l                        models.Link
		linkID, clientID, dealer uuid.UUID
		status                   string
		offboarded               sql.NullTime
	)
	if err := row.Scan(&linkID, &clientID, &dealer, &status, &l.OnboardedOn, &offboarded,
		&l.OffboardingReason, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.ID = id.LinkID(linkID)
	l.ClientID = id.ClientID(clientID)
	l.DealerID = id.DealerID(dealer)
	l.Status = models.Status(status)
	l.OffboardedOn = postgres.TimePtr(offboarded)
	return &l, nil
}

func (s *PostgresStore) queryLinks(ctx context.Context, query string, args ...any) ([]*models.Link, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []*models.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateLink(ctx context.Context, l *models.Link) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO client_dealer_links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(l.ID), uuid.UUID(l.ClientID), uuid.UUID(l.DealerID), string(l.Status), l.OnboardedOn,
		postgres.NullTime(l.OffboardedOn), l.OffboardingReason, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, constraintActiveLink) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert client link: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveLinkByClient(ctx context.Context, clientID id.ClientID) (*models.Link, error) {
	l, err := scanLink(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM client_dealer_links WHERE client_id = $1 AND status = 'ACTIVE'`, uuid.UUID(clientID)))
	if err != nil {
		return nil, notFound(err, "find active client link")
	}
	return l, nil
}

func (s *PostgresStore) UpdateLink(ctx context.Context, l *models.Link) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE client_dealer_links
		SET status = $2, offboarded_on = $3, offboarding_reason = $4, updated_at = $5
		WHERE id = $1
	`, uuid.UUID(l.ID), string(l.Status), postgres.NullTime(l.OffboardedOn), l.OffboardingReason, l.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, constraintActiveLink) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update client link: %w", err)
	}
	return requireAffected(res, "update client link")
}

func (s *PostgresStore) ListLinksByClient(ctx context.Context, clientID id.ClientID) ([]*models.Link, error) {
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM client_dealer_links
		WHERE client_id = $1 ORDER BY onboarded_on DESC, created_at DESC`, uuid.UUID(clientID))
}

func (s *PostgresStore) ListActiveLinks(ctx context.Context, dealerID id.DealerID) ([]*models.Link, error) {
	if dealerID.IsNil() {
		return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM client_dealer_links
			WHERE status = 'ACTIVE' ORDER BY onboarded_on DESC, id`)
	}
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM client_dealer_links
		WHERE status = 'ACTIVE' AND dealer_id = $1 ORDER BY onboarded_on DESC, id`, uuid.UUID(dealerID))
}

func (s *PostgresStore) CountActiveLinks(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM client_dealer_links WHERE status = 'ACTIVE'`)
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func (s *PostgresStore) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.q(ctx).QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// where builds an AND-ed WHERE clause, numbering ? placeholders as $n.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) limit(n int) string {
	if n <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(n)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
