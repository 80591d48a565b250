package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Repository interface {
	// CreateOrder reserves stock for every item and inserts the order with
	// its items in a single transaction. On insufficient stock for any item
	// nothing is written.
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByTrxID(ctx context.Context, trxID string) (*Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	SetSnapToken(ctx context.Context, orderID int64, token string) error
	// UpdateStatusFromPending flips the order to newStatus only if it is
	// still Pending. Returns false when the guard did not match.
	UpdateStatusFromPending(ctx context.Context, orderID int64, newStatus OrderStatus) (bool, error)
	// ReleaseStock restores the reserved quantities of the order's items and
	// flips the status, all in one transaction guarded on status = Pending.
	// Returns false without touching stock when the order already left
	// Pending.
	ReleaseStock(ctx context.Context, order *Order, newStatus OrderStatus) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, order *Order) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("order_trx_id", order.OrderTrxID).Msg("repository: failed to rollback create order transaction")
			}
		}
	}()

	// Lock each product row, check availability, then decrement. The row
	// lock makes check-and-decrement a single guarded read-modify-write, so
	// two concurrent orders cannot both spend the same unit.
	for i := range order.Items {
		item := &order.Items[i]

		var name string
		var available int
		err = tx.QueryRow(ctx,
			`SELECT name, quantity FROM products WHERE id = $1 FOR UPDATE`,
			item.ProductID,
		).Scan(&name, &available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = &InsufficientStockError{ProductID: item.ProductID}
				return err
			}
			return fmt.Errorf("repository: failed to lock product %d: %w", item.ProductID, err)
		}

		if available < item.Quantity {
			err = &InsufficientStockError{ProductID: item.ProductID}
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET quantity = quantity - $2 WHERE id = $1`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			// The quantity >= 0 check constraint backs up the locked check.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
				err = &InsufficientStockError{ProductID: item.ProductID}
				return err
			}
			return fmt.Errorf("repository: failed to decrement stock for product %d: %w", item.ProductID, err)
		}

		item.ProductName = name
	}

	createdAt := time.Now().UTC()
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (order_trx_id, customer_id, info, total_amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		order.OrderTrxID,
		order.CustomerID,
		order.Info,
		order.TotalAmount,
		string(order.Status),
		createdAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	order.CreatedAt = createdAt

	for i := range order.Items {
		item := &order.Items[i]
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			order.ID,
			item.ProductID,
			item.Quantity,
			item.Price,
			createdAt,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %d: %w", order.ID, err)
		}
		item.OrderID = order.ID
		item.CreatedAt = createdAt
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit create order transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	return r.getOrder(ctx, `WHERE o.id = $1`, id)
}

func (r *postgresRepository) GetOrderByTrxID(ctx context.Context, trxID string) (*Order, error) {
	return r.getOrder(ctx, `WHERE o.order_trx_id = $1`, trxID)
}

func (r *postgresRepository) getOrder(ctx context.Context, where string, arg any) (*Order, error) {
	queryOrder := `
		SELECT o.id, o.order_trx_id, o.customer_id, o.info, o.total_amount, o.status, COALESCE(o.snap_token, ''), o.created_at
		FROM orders o ` + where

	var order Order
	err := r.db.QueryRow(ctx, queryOrder, arg).Scan(
		&order.ID,
		&order.OrderTrxID,
		&order.CustomerID,
		&order.Info,
		&order.TotalAmount,
		&order.Status,
		&order.SnapToken,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order (%v): %w", arg, err)
	}

	queryItems := `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.price, COALESCE(p.name, ''), i.created_at
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id
	`
	rows, err := r.db.Query(ctx, queryItems, order.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %d: %w", order.ID, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.ProductName,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %d: %w", order.ID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %d: %w", order.ID, err)
	}

	order.Items = items
	return &order, nil
}

func (r *postgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	ordersQuery := `
		SELECT id, order_trx_id, customer_id, info, total_amount, status, COALESCE(snap_token, ''), created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	orderRows, err := r.db.Query(ctx, ordersQuery, customerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for customer %d: %w", customerID, err)
	}
	defer orderRows.Close()

	ordersMap := make(map[int64]*Order)
	var orderIDs []int64

	for orderRows.Next() {
		var order Order
		err := orderRows.Scan(
			&order.ID,
			&order.OrderTrxID,
			&order.CustomerID,
			&order.Info,
			&order.TotalAmount,
			&order.Status,
			&order.SnapToken,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for customer %d: %w", customerID, err)
		}
		order.Items = make([]OrderItem, 0)
		ordersMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err = orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for customer %d: %w", customerID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemsQuery := `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.price, COALESCE(p.name, ''), i.created_at
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id
	`
	itemRows, err := r.db.Query(ctx, itemsQuery, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for customer %d: %w", customerID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item OrderItem
		err := itemRows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.ProductName,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for customer %d: %w", customerID, err)
		}
		if order, ok := ordersMap[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for customer %d: %w", customerID, err)
	}

	orders := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if order, ok := ordersMap[id]; ok {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (r *postgresRepository) SetSnapToken(ctx context.Context, orderID int64, token string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET snap_token = $1 WHERE id = $2`,
		token, orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to set snap token for order %d: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateStatusFromPending(ctx context.Context, orderID int64, newStatus OrderStatus) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		string(newStatus), orderID, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update status for order %d: %w", orderID, err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *postgresRepository) ReleaseStock(ctx context.Context, order *Order, newStatus OrderStatus) (updated bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !updated {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Int64("order_id", order.ID).Msg("repository: failed to rollback stock release transaction")
			}
		}
	}()

	// The Pending guard serializes duplicate callbacks: the first one wins
	// the status flip, a racing duplicate affects zero rows and releases
	// nothing.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		string(newStatus), order.ID, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update status for order %d: %w", order.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	for _, item := range order.Items {
		cmdTag, err = tx.Exec(ctx,
			`UPDATE products SET quantity = quantity + $2 WHERE id = $1`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			return false, fmt.Errorf("repository: failed to restore stock for product %d: %w", item.ProductID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			err = &PartialFailureError{OrderID: order.ID, ProductID: item.ProductID}
			return false, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("repository: failed to commit stock release transaction: %w", err)
	}
	return true, nil
}
