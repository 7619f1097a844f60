package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaneshKarthi2007/battery-shop/internal/cache"
	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
	"github.com/GaneshKarthi2007/battery-shop/internal/service"
	"github.com/GaneshKarthi2007/battery-shop/internal/store/memory"
)

type testEnv struct {
	handler    http.Handler
	adminToken string
	staffToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-secret")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-secret")

	repo := memory.New()
	svc := service.New(repo, cache.NoopDashboardCache{})
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, repo)
	api := New(svc, auth, "")

	env := &testEnv{handler: api.Handler()}
	env.adminToken = env.login(t, "admin", "admin-secret")
	env.staffToken = env.login(t, "staff", "staff-secret")
	return env
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.RemoteAddr = "192.0.2.10:4242"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createProduct(t *testing.T, stock int, minStock int) domain.Product {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/products", e.adminToken, domain.ProductCreateRequest{
		Brand:      "Exide",
		Model:      fmt.Sprintf("XP-%d-%d", stock, minStock),
		Type:       "Inverter",
		AH:         "88",
		PricePaise: 812500,
		Stock:      stock,
		MinStock:   minStock,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Product domain.Product `json:"product"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Product
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEndpointsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductCRUDOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 6, 2)

	rec := env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Staff must not mutate the catalogue.
	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, env.staffToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	newPrice := int64(900000)
	rec = env.do(t, http.MethodPut, "/api/v1/products/"+product.ID, env.adminToken, domain.ProductUpdateRequest{
		PricePaise: &newPrice,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, env.staffToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSaleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 5, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.staffToken, domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 3, PricePaise: product.PricePaise},
		},
		TotalPaise:     product.PricePaise * 3,
		IdempotencyKey: "http-sale-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp domain.SaleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Duplicate)
	require.Len(t, resp.Sale.Items, 1)
	require.NotNil(t, resp.Sale.Items[0].Product)
	require.Equal(t, 2, resp.Sale.Items[0].Product.Stock)

	// Replay returns the same sale with 200 and the duplicate flag.
	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.staffToken, domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 3, PricePaise: product.PricePaise},
		},
		TotalPaise:     product.PricePaise * 3,
		IdempotencyKey: "http-sale-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var replay domain.SaleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replay))
	require.True(t, replay.Duplicate)
	require.Equal(t, resp.Sale.ID, replay.Sale.ID)
}

func TestCreateSaleInsufficientStockConflicts(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 1, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.staffToken, domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 2, PricePaise: product.PricePaise},
		},
		TotalPaise: product.PricePaise * 2,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient stock")
	require.Contains(t, rec.Body.String(), "Exide")
}

func TestUpiFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 5, 1)

	cart := domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 1, PricePaise: 118000},
		},
		TotalPaise: 118000,
	}

	rec := env.do(t, http.MethodPost, "/api/v1/upi-payments", env.staffToken, domain.UpiCreateRequest{
		AmountPaise: 118000,
		SaleData:    cart,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Payment domain.UpiPayment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	intentID := created.Payment.ID
	require.Equal(t, domain.UpiStatusPending, created.Payment.Status)

	// Premature finalise.
	rec = env.do(t, http.MethodPost, "/api/v1/upi-payments/"+intentID+"/finalise", env.staffToken, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/upi-payments/"+intentID+"/confirm", env.staffToken, domain.UpiConfirmRequest{UpiRef: "REF-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/upi-payments/"+intentID+"/status", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), domain.UpiStatusReceived)

	rec = env.do(t, http.MethodPost, "/api/v1/upi-payments/"+intentID+"/finalise", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var finalised domain.UpiFinaliseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finalised))
	require.Equal(t, domain.UpiStatusFinalised, finalised.Status)
	require.NotEmpty(t, finalised.SaleID)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+finalised.SaleID, env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Double finalise conflicts.
	rec = env.do(t, http.MethodPost, "/api/v1/upi-payments/"+intentID+"/finalise", env.staffToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSalesReportFormats(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 5, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.staffToken, domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 1, PricePaise: 118000},
		},
		TotalPaise: 118000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/reports/sales", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "invoices")

	rec = env.do(t, http.MethodGet, "/api/v1/reports/sales?format=csv", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rec.Body.String(), "1000.00")
	require.Contains(t, rec.Body.String(), "180.00")

	rec = env.do(t, http.MethodGet, "/api/v1/reports/sales?format=html", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "Sales Report")

	rec = env.do(t, http.MethodGet, "/api/v1/reports/sales?from=not-a-date", env.adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPendingExchangeLookup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/exchanges", env.staffToken, domain.ExchangeCreateRequest{
		CustomerName:   "Ravi Kumar",
		BatteryBrand:   "Amaron",
		ValuationPaise: 50000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/exchanges/pending?customer_name=kumar", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Ravi Kumar")

	rec = env.do(t, http.MethodGet, "/api/v1/exchanges/pending?customer_name=nobody", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "Ravi Kumar")
}

func TestStaffListingIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/users/staff", env.staffToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users/staff", env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "staff")
}

func TestNotificationsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, 2, 5)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.staffToken, domain.SaleCreateRequest{
		CustomerName: "Ganesh",
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 1, PricePaise: product.PricePaise},
		},
		TotalPaise: product.PricePaise,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.NotEmpty(t, listed.Notifications)

	rec = env.do(t, http.MethodPost, "/api/v1/notifications/read-all", env.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications", env.staffToken, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	for _, n := range listed.Notifications {
		require.True(t, n.IsRead)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/products", env.adminToken, map[string]any{
		"brand":       "Exide",
		"model":       "XP880",
		"price_paise": 812500,
		"bogus":       true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
