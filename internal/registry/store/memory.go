// Package store persists persons, employments, clients, vehicles and
// client-dealer links.
//
// Both backends enforce the single-ACTIVE rule themselves: creating a second
// ACTIVE employment for a person, or a second ACTIVE link for a client,
// returns sentinel.ErrAlreadyUsed. Services still check first so the normal
// outcome is a Conflict result; the store rule catches anything that races past.
package store

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"unionregistry/internal/registry/models"
	"unionregistry/internal/storage/memory"
	id "unionregistry/pkg/domain"
	"unionregistry/pkg/platform/sentinel"
)

// InMemory implements the registry store on memory.DB tables. Secondary
// indexes are tables too, so they roll back with the rows they point at.
type InMemory struct {
	db *memory.DB

	persons          *memory.Map[id.PersonID, models.Person]
	personByNational *memory.Map[string, id.PersonID]

	employments      *memory.Map[id.EmploymentID, models.Employment]
	activeEmployment *memory.Map[id.PersonID, id.EmploymentID]
	separations      *memory.Map[id.EmploymentID, models.SeparationEvent]

	clients        *memory.Map[id.ClientID, models.Client]
	clientByTaxID  *memory.Map[string, id.ClientID]
	clientByGovKey *memory.Map[string, id.ClientID]

	vehicles      *memory.Map[id.VehicleID, models.Vehicle]
	vehicleByReg  *memory.Map[string, id.VehicleID]
	links         *memory.Map[id.LinkID, models.Link]
	activeLinkFor *memory.Map[id.ClientID, id.LinkID]
}

// NewInMemory registers the registry tables with db.
func NewInMemory(db *memory.DB) *InMemory {
	return &InMemory{
		db:               db,
		persons:          memory.NewMap[id.PersonID, models.Person](db),
		personByNational: memory.NewMap[string, id.PersonID](db),
		employments:      memory.NewMap[id.EmploymentID, models.Employment](db),
		activeEmployment: memory.NewMap[id.PersonID, id.EmploymentID](db),
		separations:      memory.NewMap[id.EmploymentID, models.SeparationEvent](db),
		clients:          memory.NewMap[id.ClientID, models.Client](db),
		clientByTaxID:    memory.NewMap[string, id.ClientID](db),
		clientByGovKey:   memory.NewMap[string, id.ClientID](db),
		vehicles:         memory.NewMap[id.VehicleID, models.Vehicle](db),
		vehicleByReg:     memory.NewMap[string, id.VehicleID](db),
		links:            memory.NewMap[id.LinkID, models.Link](db),
		activeLinkFor:    memory.NewMap[id.ClientID, id.LinkID](db),
	}
}

// -----------------------------------------------------------------------------
// Persons
// -----------------------------------------------------------------------------

func (s *InMemory) CreatePerson(ctx context.Context, person *models.Person) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.personByNational.Get(person.NationalID); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.persons.Put(person.ID, *person)
		s.personByNational.Put(person.NationalID, person.ID)
	})
	return err
}

func (s *InMemory) FindPersonByID(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	var (
		p  models.Person
		ok bool
	)
	s.db.View(ctx, func() {
		p, ok = s.persons.Get(personID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) FindPersonByNationalID(ctx context.Context, nationalID string) (*models.Person, error) {
	var (
		p  models.Person
		ok bool
	)
	s.db.View(ctx, func() {
		var personID id.PersonID
		if personID, ok = s.personByNational.Get(nationalID); ok {
			p, ok = s.persons.Get(personID)
		}
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) SearchPersons(ctx context.Context, c models.PersonCriteria, limit int) ([]*models.Person, error) {
	name := strings.ToLower(c.Name)
	var out []*models.Person
	s.db.View(ctx, func() {
		s.persons.Each(func(_ id.PersonID, p models.Person) bool {
			if c.NationalID != "" && p.NationalID != c.NationalID {
				return true
			}
			if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
				return true
			}
			if c.Mobile != "" && !strings.Contains(p.Mobile, c.Mobile) {
				return true
			}
			out = append(out, &p)
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Person) int {
		return cmp.Or(strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return truncate(out, limit), nil
}

// -----------------------------------------------------------------------------
// Employments
// -----------------------------------------------------------------------------

func (s *InMemory) CreateEmployment(ctx context.Context, e *models.Employment) error {
	var err error
	s.db.Update(ctx, func() {
		if e.IsActive() {
			if _, ok := s.activeEmployment.Get(e.PersonID); ok {
				err = sentinel.ErrAlreadyUsed
				return
			}
			s.activeEmployment.Put(e.PersonID, e.ID)
		}
		s.employments.Put(e.ID, *e)
	})
	return err
}

func (s *InMemory) FindEmploymentByID(ctx context.Context, employmentID id.EmploymentID) (*models.Employment, error) {
	var (
		e  models.Employment
		ok bool
	)
	s.db.View(ctx, func() {
		e, ok = s.employments.Get(employmentID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) FindActiveEmploymentByPerson(ctx context.Context, personID id.PersonID) (*models.Employment, error) {
	var (
		e  models.Employment
		ok bool
	)
	s.db.View(ctx, func() {
		var employmentID id.EmploymentID
		if employmentID, ok = s.activeEmployment.Get(personID); ok {
			e, ok = s.employments.Get(employmentID)
		}
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

// UpdateEmployment persists status changes. Reactivating an employment is
// refused when the person already has another ACTIVE one.
func (s *InMemory) UpdateEmployment(ctx context.Context, e *models.Employment) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.employments.Get(e.ID); !ok {
			err = sentinel.ErrNotFound
			return
		}
		activeID, hasActive := s.activeEmployment.Get(e.PersonID)
		switch {
		case e.IsActive() && hasActive && activeID != e.ID:
			err = sentinel.ErrAlreadyUsed
			return
		case e.IsActive():
			s.activeEmployment.Put(e.PersonID, e.ID)
		case hasActive && activeID == e.ID:
			s.activeEmployment.Delete(e.PersonID)
		}
		s.employments.Put(e.ID, *e)
	})
	return err
}

// ListEmploymentsByPerson returns the person's history, most recent join first.
func (s *InMemory) ListEmploymentsByPerson(ctx context.Context, personID id.PersonID) ([]*models.Employment, error) {
	var out []*models.Employment
	s.db.View(ctx, func() {
		s.employments.Each(func(_ id.EmploymentID, e models.Employment) bool {
			if e.PersonID == personID {
				out = append(out, &e)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Employment) int {
		return cmp.Or(b.JoinedOn.Compare(a.JoinedOn), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

// ListActiveEmployments returns ACTIVE employments, of one dealer unless dealerID is nil.
func (s *InMemory) ListActiveEmployments(ctx context.Context, dealerID id.DealerID) ([]*models.Employment, error) {
	var out []*models.Employment
	s.db.View(ctx, func() {
		s.activeEmployment.Each(func(_ id.PersonID, employmentID id.EmploymentID) bool {
			e, ok := s.employments.Get(employmentID)
			if ok && (dealerID.IsNil() || e.DealerID == dealerID) {
				out = append(out, &e)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Employment) int {
		return cmp.Or(b.JoinedOn.Compare(a.JoinedOn), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (s *InMemory) CountActiveEmployments(ctx context.Context) (int, error) {
	var n int
	s.db.View(ctx, func() {
		n = s.activeEmployment.Len()
	})
	return n, nil
}

func (s *InMemory) CreateSeparation(ctx context.Context, ev *models.SeparationEvent) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.separations.Get(ev.EmploymentID); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.separations.Put(ev.EmploymentID, *ev)
	})
	return err
}

func (s *InMemory) FindSeparation(ctx context.Context, employmentID id.EmploymentID) (*models.SeparationEvent, error) {
	var (
		ev models.SeparationEvent
		ok bool
	)
	s.db.View(ctx, func() {
		ev, ok = s.separations.Get(employmentID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ev, nil
}

// -----------------------------------------------------------------------------
// Clients and vehicles
// -----------------------------------------------------------------------------

func (s *InMemory) identityIndex(t models.ClientType) *memory.Map[string, id.ClientID] {
	if t == models.ClientGovernment {
		return s.clientByGovKey
	}
	return s.clientByTaxID
}

func (s *InMemory) CreateClient(ctx context.Context, c *models.Client) error {
	var err error
	s.db.Update(ctx, func() {
		index := s.identityIndex(c.Type)
		if _, ok := index.Get(c.IdentityKey()); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.clients.Put(c.ID, *c)
		index.Put(c.IdentityKey(), c.ID)
	})
	return err
}

func (s *InMemory) FindClientByID(ctx context.Context, clientID id.ClientID) (*models.Client, error) {
	var (
		c  models.Client
		ok bool
	)
	s.db.View(ctx, func() {
		c, ok = s.clients.Get(clientID)
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) FindClientByIdentity(ctx context.Context, t models.ClientType, key string) (*models.Client, error) {
	var (
		c  models.Client
		ok bool
	)
	s.db.View(ctx, func() {
		var clientID id.ClientID
		if clientID, ok = s.identityIndex(t).Get(key); ok {
			c, ok = s.clients.Get(clientID)
		}
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) SearchClients(ctx context.Context, c models.ClientCriteria, limit int) ([]*models.Client, error) {
	name := strings.ToLower(c.Name)
	var out []*models.Client
	s.db.View(ctx, func() {
		var viaVehicle id.ClientID
		if c.VehicleRegistration != "" {
			vehicleID, ok := s.vehicleByReg.Get(c.VehicleRegistration)
			if !ok {
				return
			}
			v, _ := s.vehicles.Get(vehicleID)
			viaVehicle = v.ClientID
		}
		s.clients.Each(func(_ id.ClientID, cl models.Client) bool {
			if c.TaxID != "" && cl.TaxID != c.TaxID {
				return true
			}
			if c.GovClientKey != "" && cl.GovClientKey != c.GovClientKey {
				return true
			}
			if c.VehicleRegistration != "" && cl.ID != viaVehicle {
				return true
			}
			if name != "" &&
				!strings.Contains(strings.ToLower(cl.Name), name) &&
				!strings.Contains(strings.ToLower(cl.OrgName), name) {
				return true
			}
			out = append(out, &cl)
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Client) int {
		return cmp.Or(strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return truncate(out, limit), nil
}

func (s *InMemory) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.vehicleByReg.Get(v.Registration); ok {
			err = sentinel.ErrAlreadyUsed
			return
		}
		s.vehicles.Put(v.ID, *v)
		s.vehicleByReg.Put(v.Registration, v.ID)
	})
	return err
}

func (s *InMemory) FindVehicleByRegistration(ctx context.Context, registration string) (*models.Vehicle, error) {
	var (
		v  models.Vehicle
		ok bool
	)
	s.db.View(ctx, func() {
		var vehicleID id.VehicleID
		if vehicleID, ok = s.vehicleByReg.Get(registration); ok {
			v, ok = s.vehicles.Get(vehicleID)
		}
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

func (s *InMemory) ListVehiclesByClient(ctx context.Context, clientID id.ClientID) ([]*models.Vehicle, error) {
	var out []*models.Vehicle
	s.db.View(ctx, func() {
		s.vehicles.Each(func(_ id.VehicleID, v models.Vehicle) bool {
			if v.ClientID == clientID {
				out = append(out, &v)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Vehicle) int {
		return strings.Compare(a.Registration, b.Registration)
	})
	return out, nil
}

func (s *InMemory) CountVehicles(ctx context.Context) (int, error) {
	var n int
	s.db.View(ctx, func() {
		n = s.vehicles.Len()
	})
	return n, nil
}

// -----------------------------------------------------------------------------
// Client-dealer links
// -----------------------------------------------------------------------------

func (s *InMemory) CreateLink(ctx context.Context, l *models.Link) error {
	var err error
	s.db.Update(ctx, func() {
		if l.IsActive() {
			if _, ok := s.activeLinkFor.Get(l.ClientID); ok {
				err = sentinel.ErrAlreadyUsed
				return
			}
			s.activeLinkFor.Put(l.ClientID, l.ID)
		}
		s.links.Put(l.ID, *l)
	})
	return err
}

func (s *InMemory) FindActiveLinkByClient(ctx context.Context, clientID id.ClientID) (*models.Link, error) {
	var (
		l  models.Link
		ok bool
	)
	s.db.View(ctx, func() {
		var linkID id.LinkID
		if linkID, ok = s.activeLinkFor.Get(clientID); ok {
			l, ok = s.links.Get(linkID)
		}
	})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &l, nil
}

func (s *InMemory) UpdateLink(ctx context.Context, l *models.Link) error {
	var err error
	s.db.Update(ctx, func() {
		if _, ok := s.links.Get(l.ID); !ok {
			err = sentinel.ErrNotFound
			return
		}
		activeID, hasActive := s.activeLinkFor.Get(l.ClientID)
		switch {
		case l.IsActive() && hasActive && activeID != l.ID:
			err = sentinel.ErrAlreadyUsed
			return
		case l.IsActive():
			s.activeLinkFor.Put(l.ClientID, l.ID)
		case hasActive && activeID == l.ID:
			s.activeLinkFor.Delete(l.ClientID)
		}
		s.links.Put(l.ID, *l)
	})
	return err
}

// ListLinksByClient returns the client's dealer history, most recent first.
func (s *InMemory) ListLinksByClient(ctx context.Context, clientID id.ClientID) ([]*models.Link, error) {
	var out []*models.Link
	s.db.View(ctx, func() {
		s.links.Each(func(_ id.LinkID, l models.Link) bool {
			if l.ClientID == clientID {
				out = append(out, &l)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Link) int {
		return cmp.Or(b.OnboardedOn.Compare(a.OnboardedOn), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

// ListActiveLinks returns ACTIVE links, of one dealer unless dealerID is nil.
func (s *InMemory) ListActiveLinks(ctx context.Context, dealerID id.DealerID) ([]*models.Link, error) {
	var out []*models.Link
	s.db.View(ctx, func() {
		s.activeLinkFor.Each(func(_ id.ClientID, linkID id.LinkID) bool {
			l, ok := s.links.Get(linkID)
			if ok && (dealerID.IsNil() || l.DealerID == dealerID) {
				out = append(out, &l)
			}
			return true
		})
	})
	slices.SortFunc(out, func(a, b *models.Link) int {
		return cmp.Or(b.OnboardedOn.Compare(a.OnboardedOn), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (s *InMemory) CountActiveLinks(ctx context.Context) (int, error) {
	var n int
	s.db.View(ctx, func() {
		n = s.activeLinkFor.Len()
	})
	return n, nil
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
