package service

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	dealermodels "unionregistry/internal/dealer/models"
	"unionregistry/internal/registry/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/mocks"
	"unionregistry/pkg/platform/audit/recorder"
)

func (s *RegistrySuite) TestRegisterEmployee() {
	s.Run("creates the person and an active employment", func() {
		res := s.employee(s.ctx, "1111-2222-3333", s.dealerA)
		s.Nil(res.Conflict)
		s.False(res.AlreadyActive)
		s.Equal("111122223333", res.Person.NationalID)
		s.Equal(models.StatusActive, res.Employment.Status)
		s.Equal(s.day("2024-01-10"), res.Employment.JoinedOn)

		entries := s.auditEntries(audit.EntityEmployment, res.Employment.ID.String())
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
		s.Equal("operator", entries[0].Actor)
	})

	s.Run("another dealer gets a conflict and nothing is written", func() {
		res := s.employee(s.on("2024-02-01"), "111122223333", s.dealerB)
		s.Require().NotNil(res.Conflict)
		s.Equal(models.ConflictEmployeeActiveElsewhere, res.Conflict.Code)
		s.Equal("D1", res.Conflict.DealerName)
		s.Equal("2024-01-10", res.Conflict.SinceDate())
		s.Nil(res.Employment)
		s.Len(s.activeEmployments("111122223333"), 1)
	})

	s.Run("same dealer returns the existing employment", func() {
		first := s.activeEmployments("111122223333")[0]
		res := s.employee(s.ctx, "111122223333", s.dealerA)
		s.True(res.AlreadyActive)
		s.Equal(first.ID, res.Employment.ID)
		s.Len(s.auditEntries(audit.EntityEmployment, first.ID.String()), 1)
	})
}

func (s *RegistrySuite) TestRegisterEmployeeValidation() {
	cases := []struct {
		name string
		cmd  models.RegisterEmployee
		code dErrors.Code
	}{
		{"malformed national id", models.RegisterEmployee{NationalID: "12ab", DealerID: s.dealerA.ID, Person: models.PersonDetails{Name: "A"}}, dErrors.CodeValidation},
		{"missing dealer", models.RegisterEmployee{NationalID: "999988887777", Person: models.PersonDetails{Name: "A"}}, dErrors.CodeValidation},
		{"unknown dealer", models.RegisterEmployee{NationalID: "999988887777", DealerID: id.DealerID(uuid.New()), Person: models.PersonDetails{Name: "A"}}, dErrors.CodeNotFound},
		{"new person without a name", models.RegisterEmployee{NationalID: "999988887777", DealerID: s.dealerA.ID}, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.RegisterEmployee(s.ctx, "operator", tc.cmd)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Run("missing actor", func() {
		_, err := s.service.RegisterEmployee(s.ctx, " ", models.RegisterEmployee{NationalID: "999988887777", DealerID: s.dealerA.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
	})

	s.Run("inactive dealer", func() {
		_, err := s.dealers.SetStatus(s.ctx, "admin", s.dealerB.ID, dealermodels.StatusInactive)
		s.Require().NoError(err)
		_, err = s.service.RegisterEmployee(s.ctx, "operator", models.RegisterEmployee{
			NationalID: "999988887777", DealerID: s.dealerB.ID, Person: models.PersonDetails{Name: "A"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	_, err := s.store.FindPersonByNationalID(s.ctx, "999988887777")
	s.Error(err, "no failed registration may create a person")
}

func (s *RegistrySuite) TestEndEmployment() {
	reg := s.employee(s.ctx, "123412341234", s.dealerA)

	s.Run("separation before joining is rejected", func() {
		_, err := s.service.EndEmployment(s.ctx, "operator", models.EndEmployment{
			EmploymentID:   reg.Employment.ID,
			SeparationDate: s.day("2023-12-31"),
			SeparationType: models.SeparationResigned,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown separation type", func() {
		_, err := s.service.EndEmployment(s.ctx, "operator", models.EndEmployment{
			EmploymentID:   reg.Employment.ID,
			SeparationDate: s.day("2024-03-01"),
			SeparationType: "FIRED",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("ends the employment once", func() {
		ended, err := s.service.EndEmployment(s.ctx, "operator", models.EndEmployment{
			EmploymentID:   reg.Employment.ID,
			SeparationDate: s.day("2024-03-01"),
			SeparationType: models.SeparationResigned,
			Remarks:        "moved city",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusInactive, ended.Employment.Status)
		s.Equal(s.day("2024-03-01"), *ended.Employment.EndedOn)
		s.Equal("operator", ended.Separation.RecordedBy)

		entries := s.auditEntries(audit.EntityEmployment, reg.Employment.ID.String())
		s.Require().Len(entries, 2)
		s.Equal(audit.ActionEndEmployment, entries[0].Action)
	})

	s.Run("ending again is an invalid state and writes no second separation", func() {
		_, err := s.service.EndEmployment(s.ctx, "operator", models.EndEmployment{
			EmploymentID:   reg.Employment.ID,
			SeparationDate: s.day("2024-03-02"),
			SeparationType: models.SeparationOther,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		sep, err := s.store.FindSeparation(s.ctx, reg.Employment.ID)
		s.Require().NoError(err)
		s.Equal(s.day("2024-03-01"), sep.SeparatedOn)
		s.Len(s.auditEntries(audit.EntityEmployment, reg.Employment.ID.String()), 2)
	})

	s.Run("unknown employment", func() {
		_, err := s.service.EndEmployment(s.ctx, "operator", models.EndEmployment{
			EmploymentID:   id.EmploymentID(uuid.New()),
			SeparationDate: s.day("2024-03-01"),
			SeparationType: models.SeparationOther,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// Person registers at D1, is refused at D2, leaves D1 and then joins D2.
func (s *RegistrySuite) TestEmployeeMovesBetweenDealers() {
	first := s.employee(s.on("2024-01-10"), "111122223333", s.dealerA)
	s.Require().Nil(first.Conflict)

	refused := s.employee(s.on("2024-02-01"), "111122223333", s.dealerB)
	s.Require().NotNil(refused.Conflict)
	s.Equal("D1", refused.Conflict.DealerName)
	s.Equal("2024-01-10", refused.Conflict.SinceDate())

	_, err := s.service.EndEmployment(s.on("2024-03-01"), "operator", models.EndEmployment{
		EmploymentID:   first.Employment.ID,
		SeparationDate: s.day("2024-03-01"),
		SeparationType: models.SeparationResigned,
	})
	s.Require().NoError(err)

	moved := s.employee(s.on("2024-03-05"), "111122223333", s.dealerB)
	s.Require().Nil(moved.Conflict)
	s.Equal(first.Person.ID, moved.Person.ID)
	s.Equal(s.dealerB.ID, moved.Employment.DealerID)

	active := s.activeEmployments("111122223333")
	s.Require().Len(active, 1)
	s.Equal(s.dealerB.ID, active[0].DealerID)

	history, err := s.service.PersonHistory(s.ctx, first.Person.ID)
	s.Require().NoError(err)
	s.Require().Len(history.Employments, 2)
	s.Equal("D2", history.Employments[0].DealerName)
	s.Require().NotNil(history.Employments[1].Separation)
	s.Equal(models.SeparationResigned, history.Employments[1].Separation.Type)
}

func (s *RegistrySuite) TestRegisterEmployeeRollsBackWhenAuditFails() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockStore(ctrl)
	failing.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("audit db down"))

	svc := New(s.db, s.store, s.dealers, recorder.New(failing))
	_, err := svc.RegisterEmployee(s.ctx, "operator", models.RegisterEmployee{
		NationalID: "555566667777",
		DealerID:   s.dealerA.ID,
		Person:     models.PersonDetails{Name: "Asha"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.store.FindPersonByNationalID(s.ctx, "555566667777")
	s.Error(err)
	n, err := s.store.CountActiveEmployments(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RegistrySuite) TestListEmployees() {
	s.employee(s.ctx, "100000000001", s.dealerA)
	s.employee(s.ctx, "100000000002", s.dealerA)
	s.employee(s.ctx, "100000000003", s.dealerB)

	rows, err := s.service.ListEmployees(s.ctx, s.dealerA.ID)
	s.Require().NoError(err)
	s.Len(rows, 2)
	for _, row := range rows {
		s.Equal(s.dealerA.ID, row.Employment.DealerID)
		s.NotEmpty(row.Person.NationalID)
	}

	all, err := s.service.ListEmployees(s.ctx, id.DealerID{})
	s.Require().NoError(err)
	s.Len(all, 3)
}
