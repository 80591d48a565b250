package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/aditpra/gundam-store-backend/internal/order"
)

type CustomerInfoPayload struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

type OrderItemPayload struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
	Price     int64 `json:"price" validate:"gte=0"`
}

type CreateOrderRequest struct {
	CustomerID  int64               `json:"customer_id" validate:"required,gt=0"`
	Info        CustomerInfoPayload `json:"info" validate:"required"`
	Items       []OrderItemPayload  `json:"items" validate:"required,min=1,dive"`
	TotalAmount int64               `json:"total_amount" validate:"required,gt=0"`
}

type CreateOrderResponse struct {
	Order     *order.Order `json:"order"`
	SnapToken string       `json:"snap_token"`
}

// NotificationRequest is the Midtrans webhook payload (the fields this core
// consumes).
type NotificationRequest struct {
	OrderID           string `json:"order_id" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	FraudStatus       string `json:"fraud_status"`
}

type OrderIDRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

type SnapTokenResponse struct {
	SnapToken string `json:"snap_token"`
}

type OrderListResponse struct {
	Data  []order.Order `json:"data"`
	Total int           `json:"total"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Post("/orders/notification", h.handleNotification)
	router.Post("/orders/snap", h.handleRequestToken)
	router.Post("/orders/status", h.handleGetToken)
	router.Get("/orders/{customerId}", h.handleGetOrdersByCustomer)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload CreateOrderRequest
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	items := make([]order.OrderItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, order.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	ord := order.Order{
		CustomerID: payload.CustomerID,
		Info: order.CustomerInfo{
			Name:    payload.Info.Name,
			Phone:   payload.Info.Phone,
			Email:   payload.Info.Email,
			Address: payload.Info.Address,
		},
		Items:       items,
		TotalAmount: payload.TotalAmount,
	}

	created, err := h.svc.CreateOrder(r.Context(), &ord)
	if err != nil {
		// When the order was persisted but the gateway token failed, the
		// reservation stands: answer 201 with an empty token so the client
		// can retry token issuance against /orders/snap.
		if created != nil {
			log.Warn().Err(err).Int64("order_id", created.ID).Msg("Order created without snap token")
			respondWithJSON(w, http.StatusCreated, CreateOrderResponse{Order: created, SnapToken: ""})
			return
		}
		log.Error().Err(err).Msg("Failed to create order")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to create order"))
		return
	}

	respondWithJSON(w, http.StatusCreated, CreateOrderResponse{Order: created, SnapToken: created.SnapToken})
}

func (h *OrderHandler) handleNotification(w http.ResponseWriter, r *http.Request) {
	var payload NotificationRequest
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	err := h.svc.HandleCallback(r.Context(), payload.OrderID, payload.TransactionStatus, payload.FraudStatus)
	if err != nil {
		log.Error().Err(err).Str("order_trx_id", payload.OrderID).Msg("Failed to process payment notification")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to process notification"))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Callback processed successfully"})
}

func (h *OrderHandler) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	var payload OrderIDRequest
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	token, err := h.svc.RequestPaymentToken(r.Context(), payload.ID)
	if err != nil {
		log.Error().Err(err).Int64("order_id", payload.ID).Msg("Failed to request snap token")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to request snap token"))
		return
	}

	respondWithJSON(w, http.StatusOK, SnapTokenResponse{SnapToken: token})
}

func (h *OrderHandler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	var payload OrderIDRequest
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	token, err := h.svc.GetPaymentToken(r.Context(), payload.ID)
	if err != nil {
		log.Info().Err(err).Int64("order_id", payload.ID).Msg("Snap token lookup failed")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to fetch snap token"))
		return
	}

	respondWithJSON(w, http.StatusOK, SnapTokenResponse{SnapToken: token})
}

func (h *OrderHandler) handleGetOrdersByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	orders, err := h.svc.GetOrdersByCustomer(r.Context(), customerID)
	if err != nil {
		log.Error().Err(err).Int64("customer_id", customerID).Msg("Failed to fetch customer orders")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to fetch orders")
		return
	}

	respondWithJSON(w, http.StatusOK, OrderListResponse{Data: orders, Total: len(orders)})
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing the error response itself. Returns false when the
// request was rejected.
func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
			return false
		}
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return false
	}

	return true
}

func clientMessage(err error, fallback string) string {
	var validationErr *order.ValidationError
	var stockErr *order.InsufficientStockError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.As(err, &stockErr):
		return stockErr.Error()
	case errors.Is(err, order.ErrOrderNotFound):
		return "Order not found"
	default:
		return fallback
	}
}
