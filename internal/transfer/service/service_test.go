package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	dealermodels "unionregistry/internal/dealer/models"
	dealerservice "unionregistry/internal/dealer/service"
	dealerstore "unionregistry/internal/dealer/store"
	regmodels "unionregistry/internal/registry/models"
	registry "unionregistry/internal/registry/service"
	regstore "unionregistry/internal/registry/store"
	"unionregistry/internal/storage/memory"
	"unionregistry/internal/transfer/models"
	"unionregistry/internal/transfer/store"
	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/mocks"
	"unionregistry/pkg/platform/audit/recorder"
	auditmemory "unionregistry/pkg/platform/audit/store/memory"
	"unionregistry/pkg/requestcontext"
)

type TransferSuite struct {
	suite.Suite
	ctx       context.Context
	db        *memory.DB
	audit     *auditmemory.InMemoryStore
	dealers   *dealerservice.Service
	registry  *registry.Service
	transfers *store.InMemory
	service   *Service
	dealerA   *dealermodels.Dealer
	dealerB   *dealermodels.Dealer
	dealerC   *dealermodels.Dealer
	client    *regmodels.Client
}

func TestTransferSuite(t *testing.T) {
	suite.Run(t, new(TransferSuite))
}

func (s *TransferSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	s.db = memory.New()
	s.audit = auditmemory.NewInMemoryStore(s.db)
	rec := recorder.New(s.audit)
	s.dealers = dealerservice.New(s.db, dealerstore.NewInMemory(s.db), rec)
	s.registry = registry.New(s.db, regstore.NewInMemory(s.db), s.dealers, rec)
	s.transfers = store.NewInMemory(s.db)
	s.service = New(s.db, s.transfers, s.registry, s.dealers, rec)

	s.dealerA = s.newDealer("A")
	s.dealerB = s.newDealer("B")
	s.dealerC = s.newDealer("C")

	res, err := s.registry.RegisterClient(s.ctx, "operator", regmodels.RegisterClient{
		Type:     regmodels.ClientPrivate,
		TaxID:    "ABCDE1234F",
		Name:     "Metro Logistics",
		DealerID: s.dealerA.ID,
	})
	s.Require().NoError(err)
	s.Require().Nil(res.Conflict)
	s.client = res.Client
}

func (s *TransferSuite) newDealer(name string) *dealermodels.Dealer {
	d, err := s.dealers.CreateDealer(s.ctx, "admin", &dealermodels.CreateDealerRequest{LegalName: "Dealer " + name, OutletName: name})
	s.Require().NoError(err)
	return d
}

func (s *TransferSuite) request(from, to id.DealerID) *models.TransferRequest {
	t, err := s.service.RequestTransfer(s.ctx, "dealer:b", models.RequestTransfer{
		ClientID:     s.client.ID,
		FromDealerID: from,
		ToDealerID:   to,
		Reason:       "better rates",
	})
	s.Require().NoError(err)
	return t
}

func (s *TransferSuite) activeDealer() id.DealerID {
	link, err := s.registry.ActiveLink(s.ctx, s.client.ID)
	s.Require().NoError(err)
	return link.DealerID
}

func (s *TransferSuite) transferAudit(t *models.TransferRequest) []audit.Entry {
	entries, err := s.audit.List(s.ctx, audit.Filter{EntityType: audit.EntityTransfer, EntityID: t.ID.String()})
	s.Require().NoError(err)
	return entries
}

func (s *TransferSuite) TestRequestTransfer() {
	s.Run("creates a pending request and audits it", func() {
		t := s.request(s.dealerA.ID, s.dealerB.ID)
		s.Equal(models.StatusPending, t.Status)
		s.Equal("dealer:b", t.RequestedBy)
		s.Nil(t.DecidedAt)

		entries := s.transferAudit(t)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
		s.Equal(s.client.ID.String(), entries[0].Metadata["clientId"])
	})

	cases := []struct {
		name string
		cmd  func() models.RequestTransfer
		code dErrors.Code
	}{
		{"same dealer on both sides", func() models.RequestTransfer {
			return models.RequestTransfer{ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerA.ID}
		}, dErrors.CodeValidation},
		{"missing client", func() models.RequestTransfer {
			return models.RequestTransfer{FromDealerID: s.dealerA.ID, ToDealerID: s.dealerB.ID}
		}, dErrors.CodeValidation},
		{"unknown client", func() models.RequestTransfer {
			return models.RequestTransfer{ClientID: id.ClientID(uuid.New()), FromDealerID: s.dealerA.ID, ToDealerID: s.dealerB.ID}
		}, dErrors.CodeNotFound},
		{"source dealer does not hold the client", func() models.RequestTransfer {
			return models.RequestTransfer{ClientID: s.client.ID, FromDealerID: s.dealerC.ID, ToDealerID: s.dealerB.ID}
		}, dErrors.CodeValidation},
		{"unknown destination", func() models.RequestTransfer {
			return models.RequestTransfer{ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: id.DealerID(uuid.New())}
		}, dErrors.CodeNotFound},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.RequestTransfer(s.ctx, "operator", tc.cmd())
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Run("inactive destination", func() {
		_, err := s.dealers.SetStatus(s.ctx, "admin", s.dealerC.ID, dealermodels.StatusInactive)
		s.Require().NoError(err)
		_, err = s.service.RequestTransfer(s.ctx, "operator", models.RequestTransfer{
			ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerC.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("missing actor", func() {
		_, err := s.service.RequestTransfer(s.ctx, " ", models.RequestTransfer{
			ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerB.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
	})
}

func (s *TransferSuite) TestDealerSessionRequestsIntoOwnDealership() {
	ctx := requestcontext.WithDealerID(s.ctx, s.dealerC.ID)
	_, err := s.service.RequestTransfer(ctx, "dealer:c", models.RequestTransfer{
		ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerB.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	ctx = requestcontext.WithDealerID(s.ctx, s.dealerB.ID)
	t, err := s.service.RequestTransfer(ctx, "dealer:b", models.RequestTransfer{
		ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerB.ID,
	})
	s.Require().NoError(err)

	_, err = s.service.ApproveTransfer(ctx, "dealer:b", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "the destination cannot approve its own request")

	_, err = s.service.ApproveTransfer(requestcontext.WithDealerID(s.ctx, s.dealerA.ID), "dealer:a", t.ID)
	s.Require().NoError(err)
}

func (s *TransferSuite) TestApproveMovesTheActiveLink() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)

	approved, err := s.service.ApproveTransfer(s.ctx, "admin", t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Equal("admin", approved.DecidedBy)
	s.Require().NotNil(approved.DecidedAt)

	s.Equal(s.dealerB.ID, s.activeDealer())
	record, err := s.registry.ClientDetails(s.ctx, s.client.ID)
	s.Require().NoError(err)
	s.Equal("B", record.ActiveLink.DealerName)

	entries := s.transferAudit(t)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionApprove, entries[0].Action)
	s.NotEmpty(entries[0].Metadata["closedLinkId"])

	_, err = s.service.ApproveTransfer(s.ctx, "admin", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.service.RejectTransfer(s.ctx, "admin", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Len(s.transferAudit(t), 2)
}

func (s *TransferSuite) TestRejectLeavesTheLinkAlone() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)

	rejected, err := s.service.RejectTransfer(s.ctx, "admin", t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal(s.dealerA.ID, s.activeDealer())

	_, err = s.service.ApproveTransfer(s.ctx, "admin", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(s.dealerA.ID, s.activeDealer())

	entries := s.transferAudit(t)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionReject, entries[0].Action)
}

func (s *TransferSuite) TestCancel() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)

	canceled, err := s.service.CancelTransfer(s.ctx, "dealer:b", t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCanceled, canceled.Status)
	s.Equal(s.dealerA.ID, s.activeDealer())

	_, err = s.service.CancelTransfer(s.ctx, "dealer:b", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *TransferSuite) TestApproveFailsWhenSourceNoLongerHoldsTheClient() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)
	_, err := s.registry.OffboardClient(s.ctx, "operator", regmodels.OffboardClient{ClientID: s.client.ID, Reason: "closed"})
	s.Require().NoError(err)

	_, err = s.service.ApproveTransfer(s.ctx, "admin", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	stored, err := s.service.GetTransfer(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	_, err = s.registry.ActiveLink(s.ctx, s.client.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TransferSuite) TestUnknownTransfer() {
	_, err := s.service.ApproveTransfer(s.ctx, "admin", id.TransferID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.GetTransfer(s.ctx, id.TransferID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TransferSuite) TestApprovalRollsBackWhenAuditFails() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)

	ctrl := gomock.NewController(s.T())
	failing := mocks.NewMockStore(ctrl)
	failing.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("audit db down"))
	svc := New(s.db, s.transfers, s.registry, s.dealers, recorder.New(failing))

	_, err := svc.ApproveTransfer(s.ctx, "admin", t.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.service.GetTransfer(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal(s.dealerA.ID, s.activeDealer())
}

func (s *TransferSuite) TestConcurrentDecisionsSucceedOnce() {
	t := s.request(s.dealerA.ID, s.dealerB.ID)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		invalid   int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decide := s.service.ApproveTransfer
			if i%2 == 1 {
				decide = s.service.RejectTransfer
			}
			_, err := decide(s.ctx, "admin", t.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeInvalidState):
				invalid++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(workers-1, invalid)
	s.Len(s.transferAudit(t), 2)
}

func (s *TransferSuite) TestListTransfers() {
	first := s.request(s.dealerA.ID, s.dealerB.ID)
	_, err := s.service.RejectTransfer(s.ctx, "admin", first.ID)
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Hour))
	second, err := s.service.RequestTransfer(later, "operator", models.RequestTransfer{
		ClientID: s.client.ID, FromDealerID: s.dealerA.ID, ToDealerID: s.dealerC.ID,
	})
	s.Require().NoError(err)

	all, err := s.service.ListTransfers(s.ctx, models.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.ID, all[0].ID, "newest first")

	pending, err := s.service.ListTransfers(s.ctx, models.Filter{Status: models.StatusPending})
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second.ID, pending[0].ID)

	forB, err := s.service.ListTransfers(s.ctx, models.Filter{DealerID: s.dealerB.ID})
	s.Require().NoError(err)
	s.Require().Len(forB, 1)
	s.Equal(first.ID, forB[0].ID)

	_, err = s.service.ListTransfers(s.ctx, models.Filter{Status: "DONE"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
