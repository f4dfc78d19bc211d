package recorder

//go:generate mockgen -source=../models.go -destination=../mocks/mock_store.go -package=mocks Store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	dErrors "unionregistry/pkg/domain-errors"
	audit "unionregistry/pkg/platform/audit"
	"unionregistry/pkg/platform/audit/mocks"
	"unionregistry/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	recorder  *Recorder
}

func (s *RecorderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.recorder = New(s.mockStore)
}

func (s *RecorderSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) TestRecord() {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	s.Run("writes entry with request metadata", func() {
		ctx := requestcontext.WithTime(context.Background(), now)
		ctx = requestcontext.WithRequestID(ctx, "req-1")

		s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Entry) error {
				s.Equal("admin", e.Actor)
				s.Equal(audit.ActionCreate, e.Action)
				s.Equal(audit.EntityEmployment, e.EntityType)
				s.Equal("emp-1", e.EntityID)
				s.Equal(now, e.CreatedAt)
				s.Equal("req-1", e.Metadata["request_id"])
				s.Equal("D1", e.Metadata["dealer"])
				return nil
			})

		err := s.recorder.Record(ctx, " admin ", audit.ActionCreate, audit.EntityEmployment, "emp-1", map[string]any{"dealer": "D1"})
		s.Require().NoError(err)
	})

	s.Run("missing actor fails before writing", func() {
		err := s.recorder.Record(context.Background(), "  ", audit.ActionCreate, audit.EntityClient, "c-1", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMissingActor))
	})

	s.Run("store failure is fail-closed", func() {
		s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		err := s.recorder.Record(context.Background(), "admin", audit.ActionApprove, audit.EntityTransfer, "t-1", nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("caller metadata is not mutated", func() {
		ctx := requestcontext.WithRequestID(context.Background(), "req-2")
		meta := map[string]any{"reason": "transferred"}
		s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)

		s.Require().NoError(s.recorder.Record(ctx, "admin", audit.ActionOffboard, audit.EntityClient, "c-1", meta))
		s.Len(meta, 1)
	})
}

func (s *RecorderSuite) TestList() {
	s.Run("applies default limit", func() {
		s.mockStore.EXPECT().List(gomock.Any(), audit.Filter{EntityType: audit.EntityClient, Limit: defaultListLimit}).Return(nil, nil)
		_, err := s.recorder.List(context.Background(), audit.Filter{EntityType: audit.EntityClient})
		s.Require().NoError(err)
	})

	s.Run("caps oversized limit", func() {
		s.mockStore.EXPECT().List(gomock.Any(), audit.Filter{Limit: maxListLimit}).Return(nil, nil)
		_, err := s.recorder.List(context.Background(), audit.Filter{Limit: 10_000})
		s.Require().NoError(err)
	})
}
