package service

import (
	"unionregistry/internal/registry/models"
	dErrors "unionregistry/pkg/domain-errors"
)

func (s *RegistrySuite) seedSearch() {
	s.employee(s.ctx, "200000000001", s.dealerA)
	_, err := s.service.RegisterEmployee(s.ctx, "operator", models.RegisterEmployee{
		NationalID: "200000000002",
		DealerID:   s.dealerB.ID,
		Person:     models.PersonDetails{Name: "Sunita Rao", Mobile: "9123456789"},
	})
	s.Require().NoError(err)

	s.registerClient(s.ctx, privateClient("JJJJJ1234J", s.dealerA.ID, "KL07CB7777"))
	s.registerClient(s.ctx, govClient("Municipal Corporation", "MC-1", "mc@city.gov", s.dealerB.ID))
}

func (s *RegistrySuite) TestSearchPersons() {
	s.seedSearch()

	s.Run("no criteria is a validation error", func() {
		_, err := s.service.SearchPersons(s.ctx, models.PersonCriteria{Name: "  "}, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("exact national id", func() {
		rows, err := s.service.SearchPersons(s.ctx, models.PersonCriteria{NationalID: "2000 0000 0002"}, 0)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal("Sunita Rao", rows[0].Name)
		s.Require().Len(rows[0].Employments, 1)
		s.Equal("D2", rows[0].Employments[0].DealerName)
	})

	s.Run("name and mobile are contains matches combined with AND", func() {
		rows, err := s.service.SearchPersons(s.ctx, models.PersonCriteria{Name: "rao", Mobile: "3456"}, 0)
		s.Require().NoError(err)
		s.Len(rows, 1)

		rows, err = s.service.SearchPersons(s.ctx, models.PersonCriteria{Name: "rao", Mobile: "0000"}, 0)
		s.Require().NoError(err)
		s.Empty(rows)
	})
}

func (s *RegistrySuite) TestSearchClients() {
	s.seedSearch()

	s.Run("no criteria is a validation error", func() {
		_, err := s.service.SearchClients(s.ctx, models.ClientCriteria{}, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("by vehicle", func() {
		rows, err := s.service.SearchClients(s.ctx, models.ClientCriteria{VehicleRegistration: "kl-07-cb-7777"}, 0)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal("JJJJJ1234J", rows[0].TaxID)
		s.Require().NotNil(rows[0].ActiveLink)
		s.Equal("D1", rows[0].ActiveLink.DealerName)
		s.Len(rows[0].Vehicles, 1)
	})

	s.Run("by organisation name", func() {
		rows, err := s.service.SearchClients(s.ctx, models.ClientCriteria{Name: "municipal"}, 0)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(models.ClientGovernment, rows[0].Type)
	})

	s.Run("unknown vehicle matches nothing", func() {
		rows, err := s.service.SearchClients(s.ctx, models.ClientCriteria{VehicleRegistration: "ZZ99ZZ9999"}, 0)
		s.Require().NoError(err)
		s.Empty(rows)
	})
}

func (s *RegistrySuite) TestGlobalSearch() {
	s.seedSearch()

	s.Run("national id finds the person only", func() {
		res, err := s.service.GlobalSearch(s.ctx, "200000000001", SearchAll, 0)
		s.Require().NoError(err)
		s.Len(res.Persons, 1)
		s.Empty(res.Clients)
	})

	s.Run("digits match a mobile fragment", func() {
		res, err := s.service.GlobalSearch(s.ctx, "23456", SearchPersons, 0)
		s.Require().NoError(err)
		s.Require().Len(res.Persons, 1)
		s.Equal("Sunita Rao", res.Persons[0].Person.Name)
	})

	s.Run("tax id", func() {
		res, err := s.service.GlobalSearch(s.ctx, "jjjjj1234j", SearchClients, 0)
		s.Require().NoError(err)
		s.Empty(res.Persons)
		s.Len(res.Clients, 1)
	})

	s.Run("vehicle registration falls back after name", func() {
		res, err := s.service.GlobalSearch(s.ctx, "KL07CB7777", SearchClients, 0)
		s.Require().NoError(err)
		s.Len(res.Clients, 1)
	})

	s.Run("empty query", func() {
		_, err := s.service.GlobalSearch(s.ctx, " ", SearchAll, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown type", func() {
		_, err := s.service.GlobalSearch(s.ctx, "x", "vendor", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistrySuite) TestHomeMetrics() {
	s.seedSearch()

	m, err := s.service.HomeMetrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, m.Dealers)
	s.Equal(2, m.ActiveEmployees)
	s.Equal(2, m.ActiveClients)
	s.Equal(1, m.Vehicles)
}
