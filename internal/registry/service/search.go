package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"unionregistry/internal/registry/identity"
	"unionregistry/internal/registry/models"
	dErrors "unionregistry/pkg/domain-errors"
)

// SearchKind selects which registers GlobalSearch looks in.
type SearchKind string

const (
	SearchAll     SearchKind = "all"
	SearchPersons SearchKind = "employee"
	SearchClients SearchKind = "client"
)

func (k SearchKind) IsValid() bool {
	switch k {
	case SearchAll, SearchPersons, SearchClients:
		return true
	}
	return false
}

// enrichConcurrency bounds detail lookups per search.
const enrichConcurrency = 8

// SearchPersons finds persons matching every set criterion and returns each
// with its employment history. At least one criterion is required.
func (s *Service) SearchPersons(ctx context.Context, criteria models.PersonCriteria, limit int) ([]*models.PersonRecord, error) {
	defer s.observeSearch("person", time.Now())

	criteria, err := normalizePersonCriteria(criteria)
	if err != nil {
		return nil, err
	}
	persons, err := s.store.SearchPersons(ctx, criteria, clampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search persons")
	}

	out := make([]*models.PersonRecord, len(persons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, p := range persons {
		g.Go(func() error {
			record, err := s.personRecord(gctx, p)
			if err != nil {
				return err
			}
			out[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizePersonCriteria(c models.PersonCriteria) (models.PersonCriteria, error) {
	c.NationalID = strings.TrimSpace(c.NationalID)
	c.Name = strings.TrimSpace(c.Name)
	c.Mobile = strings.TrimSpace(c.Mobile)
	if c.IsEmpty() {
		return c, dErrors.New(dErrors.CodeValidation, "at least one search criterion is required")
	}
	if c.NationalID != "" {
		n, err := identity.NormalizeNationalID(c.NationalID)
		if err != nil {
			return c, err
		}
		c.NationalID = n
	}
	return c, nil
}

// SearchClients finds clients matching every set criterion and returns each
// with its vehicles and current dealer. At least one criterion is required.
func (s *Service) SearchClients(ctx context.Context, criteria models.ClientCriteria, limit int) ([]*models.ClientRecord, error) {
	defer s.observeSearch("client", time.Now())

	criteria, err := normalizeClientCriteria(criteria)
	if err != nil {
		return nil, err
	}
	clients, err := s.store.SearchClients(ctx, criteria, clampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search clients")
	}

	out := make([]*models.ClientRecord, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, c := range clients {
		g.Go(func() error {
			record, err := s.clientRecord(gctx, c)
			if err != nil {
				return err
			}
			out[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeClientCriteria(c models.ClientCriteria) (models.ClientCriteria, error) {
	c.TaxID = strings.ToUpper(strings.TrimSpace(c.TaxID))
	c.GovClientKey = strings.ToUpper(strings.TrimSpace(c.GovClientKey))
	c.VehicleRegistration = strings.TrimSpace(c.VehicleRegistration)
	c.Name = strings.TrimSpace(c.Name)
	if c.IsEmpty() {
		return c, dErrors.New(dErrors.CodeValidation, "at least one search criterion is required")
	}
	if c.VehicleRegistration != "" {
		reg, err := identity.NormalizeRegistration(c.VehicleRegistration)
		if err != nil {
			return c, err
		}
		c.VehicleRegistration = reg
	}
	return c, nil
}

// GlobalSearch interprets a free-text query against both registers: a
// 12-digit query is a national ID, a PAN-shaped query a tax ID, a GOV- key a
// government client, a run of digits a mobile fragment (persons), and
// anything else a name (persons and clients) or a vehicle registration
// (clients).
func (s *Service) GlobalSearch(ctx context.Context, query string, kind SearchKind, limit int) (*models.GlobalSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "query is required")
	}
	if kind == "" {
		kind = SearchAll
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be one of all, employee, client")
	}

	result := &models.GlobalSearchResult{
		Persons: []*models.PersonRecord{},
		Clients: []*models.ClientRecord{},
	}
	g, gctx := errgroup.WithContext(ctx)
	if kind != SearchClients {
		g.Go(func() error {
			persons, err := s.SearchPersons(gctx, personQuery(query), limit)
			if err != nil {
				return err
			}
			result.Persons = persons
			return nil
		})
	}
	if kind != SearchPersons {
		g.Go(func() error {
			clients, err := s.clientQuery(gctx, query, limit)
			if err != nil {
				return err
			}
			result.Clients = clients
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func personQuery(q string) models.PersonCriteria {
	if n, err := identity.NormalizeNationalID(q); err == nil {
		return models.PersonCriteria{NationalID: n}
	}
	if isPhoneFragment(q) {
		return models.PersonCriteria{Mobile: q}
	}
	return models.PersonCriteria{Name: q}
}

// isPhoneFragment reports whether q is made of digits with an optional
// leading "+".
func isPhoneFragment(q string) bool {
	q = strings.TrimPrefix(q, "+")
	if q == "" {
		return false
	}
	for _, r := range q {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) clientQuery(ctx context.Context, q string, limit int) ([]*models.ClientRecord, error) {
	if taxID, err := identity.NormalizeTaxID(q); err == nil {
		return s.SearchClients(ctx, models.ClientCriteria{TaxID: taxID}, limit)
	}
	if upper := strings.ToUpper(q); identity.IsGovClientKey(upper) {
		return s.SearchClients(ctx, models.ClientCriteria{GovClientKey: upper}, limit)
	}
	byName, err := s.SearchClients(ctx, models.ClientCriteria{Name: q}, limit)
	if err != nil || len(byName) > 0 {
		return byName, err
	}
	if _, err := identity.NormalizeRegistration(q); err != nil {
		return byName, nil
	}
	return s.SearchClients(ctx, models.ClientCriteria{VehicleRegistration: q}, limit)
}

// HomeMetrics returns the landing page counts.
func (s *Service) HomeMetrics(ctx context.Context) (*models.HomeMetrics, error) {
	var m models.HomeMetrics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m.Dealers, err = s.dealers.CountDealers(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.ActiveEmployees, err = s.store.CountActiveEmployments(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.ActiveClients, err = s.store.CountActiveLinks(gctx)
		return err
	})
	g.Go(func() (err error) {
		m.Vehicles, err = s.store.CountVehicles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load metrics")
	}
	return &m, nil
}

func (s *Service) observeSearch(kind string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSearch(kind, start)
	}
}
