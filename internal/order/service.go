package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aditpra/gundam-store-backend/internal/midtrans"
)

// Gateway-reported transaction outcomes delivered through the notification
// webhook.
const (
	txStatusCapture    = "capture"
	txStatusSettlement = "settlement"
	txStatusPending    = "pending"
	txStatusCancel     = "cancel"
	txStatusExpire     = "expire"
	txStatusDeny       = "deny"

	fraudStatusAccept = "accept"
)

type Service interface {
	// CreateOrder reserves stock and persists the order atomically, then
	// requests a Snap token from the gateway. When the gateway call fails
	// the order is still returned alongside the error: the reservation
	// stands and a token can be re-requested later.
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	// HandleCallback reconciles a gateway notification against order state.
	// Replays of terminal outcomes are acknowledged as no-ops.
	HandleCallback(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error
	// RequestPaymentToken requests a fresh Snap token for an existing order
	// and persists it.
	RequestPaymentToken(ctx context.Context, orderID int64) (string, error)
	// GetPaymentToken returns the stored Snap token while the order is still
	// Pending. Terminal orders expose no token.
	GetPaymentToken(ctx context.Context, orderID int64) (string, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error)
}

type service struct {
	repo    Repository
	gateway midtrans.Client
}

func NewService(repo Repository, gateway midtrans.Client) Service {
	return &service{
		repo:    repo,
		gateway: gateway,
	}
}

func (s *service) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	if len(order.Items) == 0 {
		return nil, &ValidationError{Message: "order must contain at least one item"}
	}
	if order.TotalAmount <= 0 {
		return nil, &ValidationError{Message: "total amount must be greater than zero"}
	}
	if order.Info.Name == "" || order.Info.Phone == "" {
		return nil, &ValidationError{Message: "customer info must include name and phone"}
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.ProductID <= 0 {
			return nil, &ValidationError{Message: "order item product id is required"}
		}
		if item.Quantity <= 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("order item quantity for product %d must be greater than zero", item.ProductID)}
		}
		if item.Price < 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("order item price for product %d cannot be negative", item.ProductID)}
		}
	}

	trxID, err := newTrxID()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate transaction id: %w", err)
	}
	order.ID = 0
	order.OrderTrxID = trxID
	order.Status = StatusPending
	order.SnapToken = ""

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			log.Warn().Int64("product_id", stockErr.ProductID).Msg("service: order rejected, insufficient stock")
			return nil, err
		}
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Int64("order_id", order.ID).Str("order_trx_id", order.OrderTrxID).Int64("customer_id", order.CustomerID).Msg("service: order created")

	// Gateway call happens after the commit: a network call with unbounded
	// latency must not hold row locks or a database transaction open.
	token, err := s.issueSnapToken(ctx, order)
	if err != nil {
		log.Warn().Err(err).Int64("order_id", order.ID).Msg("service: order created but snap token issuance failed")
		return order, err
	}
	order.SnapToken = token

	return order, nil
}

func (s *service) HandleCallback(ctx context.Context, orderTrxID, transactionStatus, fraudStatus string) error {
	// Cross-check against the gateway's own record before trusting the
	// notification payload.
	status, err := s.gateway.TransactionStatus(ctx, orderTrxID)
	if err != nil {
		log.Error().Err(err).Str("order_trx_id", orderTrxID).Msg("service: failed to verify transaction with gateway")
		return fmt.Errorf("service: failed to verify transaction: %w", err)
	}
	if status.OrderID != orderTrxID {
		log.Warn().Str("order_trx_id", orderTrxID).Str("gateway_order_id", status.OrderID).Msg("service: gateway transaction id mismatch")
		return ErrOrderNotFound
	}

	order, err := s.repo.GetOrderByTrxID(ctx, orderTrxID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Str("order_trx_id", orderTrxID).Msg("service: failed to fetch order for callback")
		return fmt.Errorf("service: failed to fetch order for callback: %w", err)
	}

	switch transactionStatus {
	case txStatusCapture:
		newStatus := StatusFraud
		if fraudStatus == fraudStatusAccept {
			newStatus = StatusProcessed
		}
		return s.applyTerminalStatus(ctx, order, newStatus)
	case txStatusSettlement:
		return s.applyTerminalStatus(ctx, order, StatusProcessed)
	case txStatusPending:
		return nil
	case txStatusCancel, txStatusExpire, txStatusDeny:
		return s.cancelAndRelease(ctx, order)
	default:
		log.Warn().Str("order_trx_id", orderTrxID).Str("transaction_status", transactionStatus).Msg("service: ignoring unknown transaction status")
		return nil
	}
}

// applyTerminalStatus moves a Pending order to Processed or Fraud. Stock is
// untouched: the reservation already represents the committed sale.
func (s *service) applyTerminalStatus(ctx context.Context, order *Order, newStatus OrderStatus) error {
	updated, err := s.repo.UpdateStatusFromPending(ctx, order.ID, newStatus)
	if err != nil {
		log.Error().Err(err).Int64("order_id", order.ID).Stringer("new_status", newStatus).Msg("service: failed to update order status")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}
	if !updated {
		log.Info().Int64("order_id", order.ID).Stringer("current_status", order.Status).Stringer("new_status", newStatus).Msg("service: order already terminal, callback ignored")
		return nil
	}
	log.Info().Int64("order_id", order.ID).Stringer("new_status", newStatus).Msg("service: order status updated")
	return nil
}

// cancelAndRelease flips the order to Canceled and restores the reserved
// stock. Both happen in one repository transaction guarded on the Pending
// status, so duplicate cancel callbacks release stock exactly once.
func (s *service) cancelAndRelease(ctx context.Context, order *Order) error {
	updated, err := s.repo.ReleaseStock(ctx, order, StatusCanceled)
	if err != nil {
		var partialErr *PartialFailureError
		if errors.As(err, &partialErr) {
			log.Error().Int64("order_id", partialErr.OrderID).Int64("product_id", partialErr.ProductID).Msg("service: stock release aborted, product missing")
			return err
		}
		log.Error().Err(err).Int64("order_id", order.ID).Msg("service: failed to release stock")
		return fmt.Errorf("service: failed to release stock: %w", err)
	}
	if !updated {
		log.Info().Int64("order_id", order.ID).Stringer("current_status", order.Status).Msg("service: order already terminal, no stock released")
		return nil
	}
	log.Info().Int64("order_id", order.ID).Msg("service: order canceled, stock released")
	return nil
}

func (s *service) RequestPaymentToken(ctx context.Context, orderID int64) (string, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return "", ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to fetch order for token request")
		return "", fmt.Errorf("service: failed to fetch order: %w", err)
	}

	token, err := s.issueSnapToken(ctx, order)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *service) GetPaymentToken(ctx context.Context, orderID int64) (string, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return "", ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to fetch order for token lookup")
		return "", fmt.Errorf("service: failed to fetch order: %w", err)
	}

	// A settled or canceled order has no actionable token.
	if order.Status != StatusPending {
		return "", ErrOrderNotFound
	}
	return order.SnapToken, nil
}

func (s *service) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	orders, err := s.repo.GetOrdersByCustomer(ctx, customerID)
	if err != nil {
		log.Error().Err(err).Int64("customer_id", customerID).Msg("service: failed to fetch customer orders")
		return nil, fmt.Errorf("service: failed to fetch customer orders: %w", err)
	}
	return orders, nil
}

// issueSnapToken requests a payment token from the gateway for an already
// persisted order and stores it on the order row.
func (s *service) issueSnapToken(ctx context.Context, order *Order) (string, error) {
	items := make([]midtrans.ItemDetail, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, midtrans.ItemDetail{
			ID:       strconv.FormatInt(item.ProductID, 10),
			Price:    item.Price,
			Quantity: item.Quantity,
			Name:     item.ProductName,
		})
	}

	snapReq := midtrans.SnapRequest{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:     order.OrderTrxID,
			GrossAmount: order.TotalAmount,
		},
		CustomerDetails: midtrans.CustomerDetails{
			CustomerID: order.CustomerID,
			FirstName:  order.Info.Name,
			Phone:      order.Info.Phone,
		},
		Items: items,
	}

	token, err := s.gateway.CreateTransaction(ctx, snapReq)
	if err != nil {
		return "", fmt.Errorf("service: failed to create gateway transaction: %w", err)
	}

	if err := s.repo.SetSnapToken(ctx, order.ID, token); err != nil {
		log.Error().Err(err).Int64("order_id", order.ID).Msg("service: failed to persist snap token")
		return "", fmt.Errorf("service: failed to persist snap token: %w", err)
	}

	log.Info().Int64("order_id", order.ID).Str("order_trx_id", order.OrderTrxID).Msg("service: snap token issued")
	return token, nil
}

// newTrxID builds the gateway correlation key. The millisecond prefix keeps
// the original TRX- shape, the uuid fragment makes concurrent generation
// collision-free; the unique index on orders.order_trx_id is the final
// arbiter.
func newTrxID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TRX-%d-%s", time.Now().UnixMilli(), id.String()[:8]), nil
}
