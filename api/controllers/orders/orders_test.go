package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scraplink/scraplink-backend/api/middleware"
	internalorders "github.com/scraplink/scraplink-backend/internal/orders"
	"github.com/scraplink/scraplink-backend/pkg/enums"
	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/logger"
)

type stubService struct {
	createResult []internalorders.OrderDTO
	createErr    error
	createInput  internalorders.CreateFromCartInput

	updateResult *internalorders.OrderDTO
	updateErr    error
	updateInput  internalorders.UpdateStatusInput

	cancelResult *internalorders.OrderDTO
	cancelErr    error

	getResult *internalorders.OrderDTO
	getErr    error

	listResult *internalorders.OrderList
	listErr    error
	listInput  internalorders.ListInput
}

func (s *stubService) CreateFromCart(_ context.Context, input internalorders.CreateFromCartInput) ([]internalorders.OrderDTO, error) {
	s.createInput = input
	return s.createResult, s.createErr
}

func (s *stubService) UpdateStatus(_ context.Context, input internalorders.UpdateStatusInput) (*internalorders.OrderDTO, error) {
	s.updateInput = input
	return s.updateResult, s.updateErr
}

func (s *stubService) Cancel(_ context.Context, input internalorders.CancelInput) (*internalorders.OrderDTO, error) {
	return s.cancelResult, s.cancelErr
}

func (s *stubService) Get(_ context.Context, orderID uuid.UUID, actor internalorders.Actor) (*internalorders.OrderDTO, error) {
	return s.getResult, s.getErr
}

func (s *stubService) List(_ context.Context, input internalorders.ListInput) (*internalorders.OrderList, error) {
	s.listInput = input
	return s.listResult, s.listErr
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target string, body []byte, role string) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUser(req.Context(), uuid.NewString(), role))
}

func newTestRouter(svc internalorders.Service) http.Handler {
	logg := testLogger()
	r := chi.NewRouter()
	r.Post("/orders", Create(svc, logg))
	r.Get("/orders", List(svc, logg))
	r.Get("/orders/{orderID}", Detail(svc, logg))
	r.Put("/orders/{orderID}/status", UpdateStatus(svc, logg))
	r.Post("/orders/{orderID}/cancel", Cancel(svc, logg))
	return r
}

func TestCreateReturnsCreatedOrders(t *testing.T) {
	svc := &stubService{
		createResult: []internalorders.OrderDTO{
			{ID: uuid.New(), OrderNumber: "ORD-20260829000000-000001"},
			{ID: uuid.New(), OrderNumber: "ORD-20260829000000-000002"},
		},
	}

	body, err := json.Marshal(map[string]any{
		"shipping_address": map[string]string{
			"recipient_name": "Budi Santoso",
			"phone":       "+62811111111",
			"line1":       "Jl. Sudirman 1",
			"city":        "Jakarta",
			"province":    "DKI Jakarta",
			"postal_code": "10110",
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/orders", body, "buyer"))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var envelope struct {
		Data []internalorders.OrderDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, enums.UserRoleBuyer, svc.createInput.Buyer.Role)
}

func TestCreateRejectsUnauthenticated(t *testing.T) {
	svc := &stubService{}

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMapsDomainErrors(t *testing.T) {
	svc := &stubService{createErr: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")}

	body := []byte(`{"shipping_address":{"recipient_name":"Budi","phone":"+62811111111","line1":"Jl. Sudirman 1","city":"Jakarta","province":"DKI Jakarta","postal_code":"10110"}}`)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/orders", body, "buyer"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "EMPTY_CART", envelope.Error.Code)
}

func TestListParsesStatusFilter(t *testing.T) {
	svc := &stubService{listResult: &internalorders.OrderList{}}

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/orders?status=SHIPPED&limit=10", nil, "seller"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.listInput.Status)
	assert.Equal(t, enums.OrderStatusShipped, *svc.listInput.Status)
	assert.Equal(t, 10, svc.listInput.Limit)
}

func TestListRejectsBogusStatus(t *testing.T) {
	svc := &stubService{listResult: &internalorders.OrderList{}}

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/orders?status=TELEPORTED", nil, "buyer"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusPassesShipmentFields(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{updateResult: &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusShipped}}

	body := []byte(`{"status":"SHIPPED","tracking_number":"JNE123","courier":"JNE"}`)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPut, "/orders/"+orderID.String()+"/status", body, "seller"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, svc.updateInput.OrderID)
	assert.Equal(t, enums.OrderStatusShipped, svc.updateInput.Target)
	require.NotNil(t, svc.updateInput.TrackingNumber)
	assert.Equal(t, "JNE123", *svc.updateInput.TrackingNumber)
}

func TestUpdateStatusRejectsMalformedID(t *testing.T) {
	svc := &stubService{}

	body := []byte(`{"status":"SHIPPED"}`)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPut, "/orders/not-a-uuid/status", body, "seller"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRequiresReason(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{cancelResult: &internalorders.OrderDTO{ID: orderID}}

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/orders/"+orderID.String()+"/cancel", []byte(`{}`), "buyer"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailMapsInvalidTransitionStatus(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{getErr: pkgerrors.New(pkgerrors.CodeInvalidTransition, "no path")}

	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/orders/"+orderID.String(), nil, "buyer"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
