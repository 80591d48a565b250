package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aditpra/gundam-store-backend/internal/midtrans"
	"github.com/aditpra/gundam-store-backend/internal/order"
)

type mockOrderService struct {
	createOrderFunc         func(ctx context.Context, o *order.Order) (*order.Order, error)
	handleCallbackFunc      func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error
	requestPaymentTokenFunc func(ctx context.Context, orderID int64) (string, error)
	getPaymentTokenFunc     func(ctx context.Context, orderID int64) (string, error)
	getOrdersByCustomerFunc func(ctx context.Context, customerID int64) ([]order.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	return m.createOrderFunc(ctx, o)
}

func (m *mockOrderService) HandleCallback(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
	return m.handleCallbackFunc(ctx, orderTrxID, transactionStatus, fraudStatus)
}

func (m *mockOrderService) RequestPaymentToken(ctx context.Context, orderID int64) (string, error) {
	return m.requestPaymentTokenFunc(ctx, orderID)
}

func (m *mockOrderService) GetPaymentToken(ctx context.Context, orderID int64) (string, error) {
	return m.getPaymentTokenFunc(ctx, orderID)
}

func (m *mockOrderService) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	return m.getOrdersByCustomerFunc(ctx, customerID)
}

func newRouter(svc order.Service) *chi.Mux {
	r := chi.NewRouter()
	NewOrderHandler(svc).RegisterRoutes(r)
	return r
}

const createOrderBody = `{
	"customer_id": 2,
	"info": {"name": "Arif", "phone": "081234567890", "email": "arif@example.com", "address": "Jakarta"},
	"items": [{"product_id": 81, "quantity": 2, "price": 2608927}],
	"total_amount": 9929861
}`

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		createOrder    func(ctx context.Context, o *order.Order) (*order.Order, error)
		expectedStatus int
		checkBody      func(t *testing.T, body []byte)
	}{
		{
			name: "success",
			body: createOrderBody,
			createOrder: func(ctx context.Context, o *order.Order) (*order.Order, error) {
				o.ID = 7
				o.OrderTrxID = "TRX-1-abc"
				o.Status = order.StatusPending
				o.SnapToken = "snap-token-123"
				return o, nil
			},
			expectedStatus: http.StatusCreated,
			checkBody: func(t *testing.T, body []byte) {
				var resp CreateOrderResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "snap-token-123", resp.SnapToken)
				require.NotNil(t, resp.Order)
				assert.Equal(t, int64(7), resp.Order.ID)
				assert.Equal(t, order.StatusPending, resp.Order.Status)
			},
		},
		{
			name: "gateway_failure_still_creates",
			body: createOrderBody,
			createOrder: func(ctx context.Context, o *order.Order) (*order.Order, error) {
				o.ID = 7
				o.Status = order.StatusPending
				return o, &midtrans.GatewayError{Op: "create transaction", StatusCode: 503}
			},
			expectedStatus: http.StatusCreated,
			checkBody: func(t *testing.T, body []byte) {
				var resp CreateOrderResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Empty(t, resp.SnapToken)
				require.NotNil(t, resp.Order)
				assert.Equal(t, int64(7), resp.Order.ID)
			},
		},
		{
			name: "insufficient_stock",
			body: createOrderBody,
			createOrder: func(ctx context.Context, o *order.Order) (*order.Order, error) {
				return nil, &order.InsufficientStockError{ProductID: 81}
			},
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "insufficient stock for product 81")
			},
		},
		{
			name:           "empty_items",
			body:           `{"customer_id": 2, "info": {"name": "Arif", "phone": "081"}, "items": [], "total_amount": 100}`,
			createOrder:    nil,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "Validation failed")
			},
		},
		{
			name:           "missing_phone",
			body:           `{"customer_id": 2, "info": {"name": "Arif"}, "items": [{"product_id": 81, "quantity": 1, "price": 100}], "total_amount": 100}`,
			createOrder:    nil,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "Validation failed")
			},
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			createOrder:    nil,
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "Invalid request payload")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcCalled := false
			mockSvc := &mockOrderService{
				createOrderFunc: func(ctx context.Context, o *order.Order) (*order.Order, error) {
					svcCalled = true
					require.NotNil(t, tt.createOrder, "service must not be called for rejected payloads")
					return tt.createOrder(ctx, o)
				},
			}

			router := newRouter(mockSvc)
			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.checkBody(t, w.Body.Bytes())
			if tt.createOrder == nil {
				assert.False(t, svcCalled)
			}
		})
	}
}

func TestOrderHandler_Notification(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		handleCallback func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error
		expectedStatus int
	}{
		{
			name: "settlement_ok",
			body: `{"order_id": "TRX-1-abc", "transaction_status": "settlement", "fraud_status": "accept"}`,
			handleCallback: func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
				return nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unknown_order",
			body: `{"order_id": "TRX-unknown", "transaction_status": "cancel", "fraud_status": ""}`,
			handleCallback: func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
				return order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "gateway_unavailable",
			body: `{"order_id": "TRX-1-abc", "transaction_status": "settlement", "fraud_status": ""}`,
			handleCallback: func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
				return &midtrans.GatewayError{Op: "transaction status", StatusCode: 503}
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "partial_release_failure",
			body: `{"order_id": "TRX-1-abc", "transaction_status": "cancel", "fraud_status": ""}`,
			handleCallback: func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
				return &order.PartialFailureError{OrderID: 7, ProductID: 81}
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "missing_transaction_status",
			body:           `{"order_id": "TRX-1-abc"}`,
			handleCallback: nil,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTrxID, gotStatus, gotFraud string
			mockSvc := &mockOrderService{
				handleCallbackFunc: func(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
					require.NotNil(t, tt.handleCallback)
					gotTrxID, gotStatus, gotFraud = orderTrxID, transactionStatus, fraudStatus
					return tt.handleCallback(ctx, orderTrxID, transactionStatus, fraudStatus)
				},
			}

			router := newRouter(mockSvc)
			req := httptest.NewRequest(http.MethodPost, "/orders/notification", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.name == "settlement_ok" {
				assert.Equal(t, "TRX-1-abc", gotTrxID)
				assert.Equal(t, "settlement", gotStatus)
				assert.Equal(t, "accept", gotFraud)
			}
		})
	}
}

func TestOrderHandler_RequestToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockSvc := &mockOrderService{
			requestPaymentTokenFunc: func(ctx context.Context, orderID int64) (string, error) {
				assert.Equal(t, int64(7), orderID)
				return "snap-token-456", nil
			},
		}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodPost, "/orders/snap", bytes.NewBufferString(`{"id": 7}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"snap_token":"snap-token-456"}`, w.Body.String())
	})

	t.Run("not_found", func(t *testing.T) {
		mockSvc := &mockOrderService{
			requestPaymentTokenFunc: func(ctx context.Context, orderID int64) (string, error) {
				return "", order.ErrOrderNotFound
			},
		}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodPost, "/orders/snap", bytes.NewBufferString(`{"id": 404}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing_id", func(t *testing.T) {
		mockSvc := &mockOrderService{}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodPost, "/orders/snap", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOrderHandler_GetToken(t *testing.T) {
	t.Run("pending_order", func(t *testing.T) {
		mockSvc := &mockOrderService{
			getPaymentTokenFunc: func(ctx context.Context, orderID int64) (string, error) {
				return "snap-token-123", nil
			},
		}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodPost, "/orders/status", bytes.NewBufferString(`{"id": 7}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"snap_token":"snap-token-123"}`, w.Body.String())
	})

	t.Run("terminal_order", func(t *testing.T) {
		mockSvc := &mockOrderService{
			getPaymentTokenFunc: func(ctx context.Context, orderID int64) (string, error) {
				return "", order.ErrOrderNotFound
			},
		}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodPost, "/orders/status", bytes.NewBufferString(`{"id": 7}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOrderHandler_GetOrdersByCustomer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockSvc := &mockOrderService{
			getOrdersByCustomerFunc: func(ctx context.Context, customerID int64) ([]order.Order, error) {
				assert.Equal(t, int64(2), customerID)
				return []order.Order{
					{ID: 7, CustomerID: 2, Status: order.StatusPending, TotalAmount: 9929861},
				}, nil
			},
		}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodGet, "/orders/2", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp OrderListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, int64(7), resp.Data[0].ID)
	})

	t.Run("invalid_customer_id", func(t *testing.T) {
		mockSvc := &mockOrderService{}

		router := newRouter(mockSvc)
		req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
