package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
)

// ValidationError marks a malformed or incomplete request. Not retryable
// without changing the input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientStockError identifies the first product whose available
// quantity could not cover the requested amount.
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

// PartialFailureError reports an aborted compensating stock release: a
// product referenced by the order vanished mid-transaction. Nothing was
// applied; the reconciliation attempt needs operator attention.
type PartialFailureError struct {
	OrderID   int64
	ProductID int64
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("stock release for order %d aborted: product %d not found", e.OrderID, e.ProductID)
}
