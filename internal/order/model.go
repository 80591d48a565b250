package order

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusProcessed OrderStatus = "Processed"
	StatusFraud     OrderStatus = "Fraud"
	StatusCanceled  OrderStatus = "Canceled"
)

func (os OrderStatus) String() string {
	return string(os)
}

// Terminal reports whether no further transition leaves this status.
func (os OrderStatus) Terminal() bool {
	return os != StatusPending
}

// CustomerInfo is the contact blob embedded on an order. It is stored as a
// single JSONB column, not normalized into its own table.
type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type Product struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Price     int64     `json:"price" db:"price"` // minor currency units
	Quantity  int       `json:"quantity" db:"quantity"`
	Archived  bool      `json:"archived" db:"archived"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OrderItem snapshots price and quantity at order time. Price is a historical
// fact and is never recomputed from the product row.
type OrderItem struct {
	ID          int64     `json:"id" db:"id"`
	OrderID     int64     `json:"order_id" db:"order_id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Price       int64     `json:"price" db:"price"`
	ProductName string    `json:"product_name,omitempty" db:"-"` // hydrated by the repository, not stored
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Order struct {
	ID          int64        `json:"id" db:"id"`
	OrderTrxID  string       `json:"order_trx_id" db:"order_trx_id"`
	CustomerID  int64        `json:"customer_id" db:"customer_id"`
	Info        CustomerInfo `json:"info" db:"info"`
	TotalAmount int64        `json:"total_amount" db:"total_amount"`
	Status      OrderStatus  `json:"status" db:"status"`
	SnapToken   string       `json:"snap_token,omitempty" db:"snap_token"`
	Items       []OrderItem  `json:"items" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}
