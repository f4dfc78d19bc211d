package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"unionregistry/internal/registry/models"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/mocks"
	"unionregistry/pkg/platform/audit/recorder"
	"unionregistry/pkg/requestcontext"
)

func privateClient(taxID string, dealerID id.DealerID, regs ...string) models.RegisterClient {
	cmd := models.RegisterClient{
		Type:     models.ClientPrivate,
		TaxID:    taxID,
		Name:     "Metro Logistics",
		DealerID: dealerID,
		Contact:  models.ClientContact{ContactPerson: "Meena", Mobile: "9000000001"},
	}
	for _, r := range regs {
		cmd.Vehicles = append(cmd.Vehicles, models.VehicleInput{Registration: r, FuelType: "diesel"})
	}
	return cmd
}

func govClient(org, office, ref string, dealerID id.DealerID) models.RegisterClient {
	return models.RegisterClient{
		Type:       models.ClientGovernment,
		OrgName:    org,
		OfficeCode: office,
		Reference:  ref,
		DealerID:   dealerID,
	}
}

func (s *RegistrySuite) registerClient(ctx context.Context, cmd models.RegisterClient) *models.ClientRegistration {
	res, err := s.service.RegisterClient(ctx, "operator", cmd)
	s.Require().NoError(err)
	return res
}

func (s *RegistrySuite) TestRegisterClient() {
	s.Run("creates client, link and vehicles", func() {
		res := s.registerClient(s.ctx, privateClient("abcde1234f", s.dealerA.ID, "ka-01 ab 1234", "KA01AB1234", "MH12CD0001"))
		s.Nil(res.Conflict)
		s.True(res.NewClient)
		s.False(res.LinkReused)
		s.Equal("ABCDE1234F", res.Client.TaxID)
		s.Equal(s.dealerA.ID, res.Link.DealerID)
		s.Equal(models.StatusActive, res.Link.Status)
		s.Require().Len(res.Vehicles, 2)
		s.Equal("KA01AB1234", res.Vehicles[0].Registration)
		s.Equal("DIESEL", res.Vehicles[0].FuelType)

		entries := s.auditEntries(audit.EntityClient, res.Client.ID.String())
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
	})

	s.Run("another dealer gets a conflict", func() {
		res := s.registerClient(s.on("2024-02-01"), privateClient("ABCDE1234F", s.dealerB.ID, "DL01ZZ9999"))
		s.Require().NotNil(res.Conflict)
		s.Equal(models.ConflictClientActiveElsewhere, res.Conflict.Code)
		s.Equal("D1", res.Conflict.DealerName)
		s.Equal("2024-01-10", res.Conflict.SinceDate())

		_, err := s.store.FindVehicleByRegistration(s.ctx, "DL01ZZ9999")
		s.Error(err, "a conflict attaches no vehicles")
	})

	s.Run("same dealer reuses the link and attaches new vehicles", func() {
		res := s.registerClient(s.ctx, privateClient("ABCDE1234F", s.dealerA.ID, "KA01AB1234", "TN09XY4321"))
		s.Nil(res.Conflict)
		s.False(res.NewClient)
		s.True(res.LinkReused)
		s.Len(res.Vehicles, 2)

		links, err := s.store.ListLinksByClient(s.ctx, res.Client.ID)
		s.Require().NoError(err)
		s.Len(links, 1)
		vehicles, err := s.store.ListVehiclesByClient(s.ctx, res.Client.ID)
		s.Require().NoError(err)
		s.Len(vehicles, 3)
	})
}

func (s *RegistrySuite) TestRegisterClientValidation() {
	cases := []struct {
		name string
		cmd  models.RegisterClient
	}{
		{"malformed tax id", privateClient("12345", s.dealerA.ID)},
		{"unknown client type", models.RegisterClient{Type: "NGO", Name: "x", DealerID: s.dealerA.ID}},
		{"government without office code", govClient("PWD", "", "letter-1", s.dealerA.ID)},
		{"bad registration", privateClient("ABCDE1234F", s.dealerA.ID, "K!")},
		{"missing dealer", privateClient("ABCDE1234F", id.DealerID{})},
		{"future onboarding date", func() models.RegisterClient {
			cmd := privateClient("ABCDE1234F", s.dealerA.ID)
			cmd.OnboardedOn = s.day("2024-01-11")
			return cmd
		}()},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.RegisterClient(s.ctx, "operator", tc.cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *RegistrySuite) TestBackdatedOnboardingCanBeClosedToday() {
	cmd := privateClient("ABCDE1234F", s.dealerA.ID)
	cmd.OnboardedOn = s.day("2023-12-01")
	res := s.registerClient(s.ctx, cmd)
	s.Equal(s.day("2023-12-01"), res.Link.OnboardedOn)

	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		_, err := s.service.DeactivateActiveLink(ctx, res.Client.ID, s.dealerA.ID, "transferred", requestcontext.Now(ctx))
		return err
	})
	s.Require().NoError(err)
}

func (s *RegistrySuite) TestGovernmentClientsCollapseToOneRecord() {
	first := s.registerClient(s.ctx, govClient("Public Works Department", "PWD-07", "letter/2024/17", s.dealerA.ID))
	s.Require().Nil(first.Conflict)
	s.True(first.NewClient)
	s.Equal("Public Works Department", first.Client.Name)
	s.Empty(first.Client.TaxID)

	again := s.registerClient(s.ctx, govClient("  public   works department ", "pwd-07", "LETTER/2024/17 ", s.dealerA.ID))
	s.Require().Nil(again.Conflict)
	s.False(again.NewClient)
	s.Equal(first.Client.ID, again.Client.ID)
	s.Equal(first.Client.GovClientKey, again.Client.GovClientKey)

	elsewhere := s.registerClient(s.ctx, govClient("PUBLIC WORKS DEPARTMENT", "PWD-07", "letter/2024/17", s.dealerB.ID))
	s.Require().NotNil(elsewhere.Conflict)
	s.Equal("D1", elsewhere.Conflict.DealerName)
}

func (s *RegistrySuite) TestDuplicateVehicleAbortsRegistration() {
	s.registerClient(s.ctx, privateClient("AAAAA1111A", s.dealerA.ID, "KA05MN0001"))

	_, err := s.service.RegisterClient(s.ctx, "operator", privateClient("BBBBB2222B", s.dealerB.ID, "KA05MN0002", "ka05mn0001"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVehicle), "got %v", err)

	_, err = s.store.FindClientByIdentity(s.ctx, models.ClientPrivate, "BBBBB2222B")
	s.Error(err, "client must not be created")
	_, err = s.store.FindVehicleByRegistration(s.ctx, "KA05MN0002")
	s.Error(err, "earlier vehicles in the request must roll back")
	n, err := s.store.CountActiveLinks(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *RegistrySuite) TestRegisterClientRollsBackWhenAuditFails() {
	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockStore(ctrl)
	failing.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("audit db down"))

	svc := New(s.db, s.store, s.dealers, recorder.New(failing))
	_, err := svc.RegisterClient(s.ctx, "operator", privateClient("CCCCC3333C", s.dealerA.ID, "GJ01AA0001"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.store.FindClientByIdentity(s.ctx, models.ClientPrivate, "CCCCC3333C")
	s.Error(err)
	n, err := s.store.CountVehicles(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RegistrySuite) TestAddVehicle() {
	reg := s.registerClient(s.ctx, privateClient("DDDDD4444D", s.dealerA.ID))
	other := s.registerClient(s.ctx, privateClient("EEEEE5555E", s.dealerB.ID, "UP32QQ1111"))

	s.Run("attaches and audits", func() {
		v, err := s.service.AddVehicle(s.ctx, "operator", reg.Client.ID, models.VehicleInput{Registration: "up 32 qq 2222"})
		s.Require().NoError(err)
		s.Equal("UP32QQ2222", v.Registration)
		entries := s.auditEntries(audit.EntityClient, reg.Client.ID.String())
		s.Require().Len(entries, 2)
		s.Equal(audit.ActionAddVehicle, entries[0].Action)
	})

	s.Run("registration owned by another client", func() {
		_, err := s.service.AddVehicle(s.ctx, "operator", reg.Client.ID, models.VehicleInput{Registration: "UP32QQ1111"})
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateVehicle))
	})

	s.Run("dealer session cannot add to another dealer's client", func() {
		ctx := requestcontext.WithDealerID(s.ctx, s.dealerA.ID)
		_, err := s.service.AddVehicle(ctx, "dealer:d1", other.Client.ID, models.VehicleInput{Registration: "UP32QQ3333"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown client", func() {
		_, err := s.service.AddVehicle(s.ctx, "operator", id.ClientID(uuid.New()), models.VehicleInput{Registration: "UP32QQ4444"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrySuite) TestOffboardThenOnboardElsewhere() {
	reg := s.registerClient(s.ctx, privateClient("FFFFF6666F", s.dealerA.ID, "RJ14AB1000"))

	link, err := s.service.OffboardClient(s.on("2024-04-01"), "operator", models.OffboardClient{
		ClientID: reg.Client.ID,
		Date:     s.day("2024-04-01"),
		Reason:   "contract ended",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusInactive, link.Status)
	s.Equal("contract ended", link.OffboardingReason)

	_, err = s.service.OffboardClient(s.ctx, "operator", models.OffboardClient{ClientID: reg.Client.ID, Reason: "again"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	moved := s.registerClient(s.on("2024-04-02"), privateClient("FFFFF6666F", s.dealerB.ID))
	s.Require().Nil(moved.Conflict)
	s.False(moved.NewClient)
	s.Equal(s.dealerB.ID, moved.Link.DealerID)

	details, err := s.service.ClientDetails(s.ctx, reg.Client.ID)
	s.Require().NoError(err)
	s.Require().NotNil(details.ActiveLink)
	s.Equal("D2", details.ActiveLink.DealerName)
	s.Len(details.Vehicles, 1)
}

func (s *RegistrySuite) TestLinkPrimitives() {
	reg := s.registerClient(s.ctx, privateClient("GGGGG7777G", s.dealerA.ID))

	s.Run("must run inside a transaction", func() {
		_, err := s.service.DeactivateActiveLink(s.ctx, reg.Client.ID, s.dealerA.ID, "x", s.day("2024-01-11"))
		s.Error(err)
	})

	s.Run("wrong source dealer changes nothing", func() {
		err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := s.service.DeactivateActiveLink(ctx, reg.Client.ID, s.dealerB.ID, OffboardReasonTransferred, s.day("2024-01-11"))
			return err
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("activating while active is refused", func() {
		err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := s.service.ActivateLink(ctx, reg.Client.ID, s.dealerB.ID, s.day("2024-01-11"))
			return err
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("moves the client", func() {
		err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
			if _, err := s.service.DeactivateActiveLink(ctx, reg.Client.ID, s.dealerA.ID, OffboardReasonTransferred, s.day("2024-01-11")); err != nil {
				return err
			}
			_, err := s.service.ActivateLink(ctx, reg.Client.ID, s.dealerB.ID, s.day("2024-01-11"))
			return err
		})
		s.Require().NoError(err)

		active, err := s.service.ActiveLink(s.ctx, reg.Client.ID)
		s.Require().NoError(err)
		s.Equal(s.dealerB.ID, active.DealerID)

		links, err := s.store.ListLinksByClient(s.ctx, reg.Client.ID)
		s.Require().NoError(err)
		s.Require().Len(links, 2)
		for _, l := range links {
			if l.DealerID == s.dealerA.ID {
				s.Equal(models.StatusInactive, l.Status)
				s.Equal(OffboardReasonTransferred, l.OffboardingReason)
			}
		}
	})
}

func (s *RegistrySuite) TestListClients() {
	s.registerClient(s.ctx, privateClient("HHHHH8888H", s.dealerA.ID, "PB10AA0001"))
	s.registerClient(s.ctx, privateClient("IIIII9999I", s.dealerB.ID))

	rows, err := s.service.ListClients(s.ctx, s.dealerA.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("HHHHH8888H", rows[0].Client.TaxID)
	s.Len(rows[0].Vehicles, 1)
}
