package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unionregistry/internal/dealer/models"
	"unionregistry/internal/dealer/service"
	"unionregistry/internal/dealer/store"
	"unionregistry/internal/storage/memory"
	"unionregistry/pkg/platform/audit/recorder"
	auditmemory "unionregistry/pkg/platform/audit/store/memory"
	"unionregistry/pkg/platform/middleware/admin"
	"unionregistry/pkg/platform/middleware/auth"
	"unionregistry/pkg/testutil"
)

const adminToken = "secret-token"

func newDealerRouter(t *testing.T) http.Handler {
	t.Helper()
	db := memory.New()
	svc := service.New(db, store.NewInMemory(db), recorder.New(auditmemory.NewInMemoryStore(db)))
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(auth.RequireActor(logger))
	h.RegisterPublic(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdmin(adminToken, logger))
		h.RegisterAdmin(r)
	})
	return r
}

func adminRequest(t *testing.T, method, path string, body any) *http.Request {
	req := testutil.NewJSONRequest(t, method, path, body)
	req.Header.Set(admin.HeaderAdminToken, adminToken)
	req.Header.Set(auth.HeaderActor, "admin")
	return req
}

func TestAdminTokenRequired(t *testing.T) {
	router := newDealerRouter(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/admin/dealers", map[string]string{"legal_name": "X"})
	req.Header.Set(auth.HeaderActor, "someone")

	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestActorRequired(t *testing.T) {
	router := newDealerRouter(t)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/dealers"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "missing_actor")
}

func TestCreateListAndDeactivateDealer(t *testing.T) {
	router := newDealerRouter(t)

	rr := testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/admin/dealers", map[string]string{
		"legal_name":  "Deshmukh Petroleum LLP",
		"outlet_name": "Deshmukh Fuels",
		"location":    "Nagpur",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	created := testutil.UnmarshalResponse[models.Dealer](t, rr)
	require.NotEqual(t, uuid.Nil, uuid.UUID(created.ID))
	assert.Equal(t, models.StatusActive, created.Status)

	listReq := testutil.NewRequest(t, http.MethodGet, "/dealers")
	listReq.Header.Set(auth.HeaderActor, "dealer-user")
	rr = testutil.DoRequest(router, listReq)
	require.Equal(t, http.StatusOK, rr.Code)
	list := testutil.UnmarshalResponse[[]models.Dealer](t, rr)
	require.Len(t, *list, 1)

	rr = testutil.DoRequest(router, adminRequest(t, http.MethodPatch, "/admin/dealers/"+created.ID.String(), map[string]string{"status": "inactive"}))
	require.Equal(t, http.StatusOK, rr.Code)
	updated := testutil.UnmarshalResponse[models.Dealer](t, rr)
	assert.Equal(t, models.StatusInactive, updated.Status)

	rr = testutil.DoRequest(router, adminRequest(t, http.MethodPatch, "/admin/dealers/"+created.ID.String(), map[string]string{"status": "INACTIVE"}))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_state")
}

func TestGetDealerErrors(t *testing.T) {
	router := newDealerRouter(t)

	rr := testutil.DoRequest(router, adminRequest(t, http.MethodGet, "/admin/dealers/not-a-uuid", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")

	rr = testutil.DoRequest(router, adminRequest(t, http.MethodGet, "/admin/dealers/"+uuid.NewString(), nil))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(router, adminRequest(t, http.MethodPost, "/admin/dealers", map[string]string{"outlet_name": "No Legal"}))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}
