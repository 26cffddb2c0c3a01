package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

const orderColumns = `id, customer_email, street, city, state, zip_code, country, status, currency,
	subtotal, shipping_cost, discount, payment_reference, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, customer_email, street, city, state, zip_code, country, status, currency,
				subtotal, shipping_cost, discount, payment_reference, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			order.ID, order.CustomerEmail,
			order.ShippingAddress.Street, order.ShippingAddress.City, order.ShippingAddress.State,
			order.ShippingAddress.ZipCode, order.ShippingAddress.Country,
			string(order.Status), order.Currency(),
			order.Subtotal.Amount, order.ShippingCost.Amount, order.Discount.Amount,
			order.PaymentReference, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		return insertItems(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.store.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID, order.Currency())
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, "", limit)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerEmail string, limit int) ([]domain.Order, error) {
	return r.list(ctx, customerEmail, limit)
}

func (r *orderRepository) list(ctx context.Context, customerEmail string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 2)
	if customerEmail != "" {
		args = append(args, customerEmail)
		query += ` WHERE LOWER(customer_email) = LOWER($1)`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID, orders[i].Currency())
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET customer_email = $1,
			    street = $2,
			    city = $3,
			    state = $4,
			    zip_code = $5,
			    country = $6,
			    status = $7,
			    currency = $8,
			    subtotal = $9,
			    shipping_cost = $10,
			    discount = $11,
			    payment_reference = $12,
			    version = version + 1,
			    updated_at = $13
			WHERE id = $14
			  AND version = $15
		`,
			order.CustomerEmail,
			order.ShippingAddress.Street,
			order.ShippingAddress.City,
			order.ShippingAddress.State,
			order.ShippingAddress.ZipCode,
			order.ShippingAddress.Country,
			string(order.Status),
			order.Currency(),
			order.Subtotal.Amount,
			order.ShippingCost.Amount,
			order.Discount.Amount,
			order.PaymentReference,
			order.UpdatedAt,
			order.ID,
			order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := rowExists(ctx, tx, `SELECT 1 FROM orders WHERE id = $1`, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		// Позиции принадлежат агрегату: перезаписываем их целиком.
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return insertItems(ctx, tx, order)
	})
}

func insertItems(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for position, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, quantity, unit_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, position, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.Amount,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID, currency string) ([]domain.OrderLineItem, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0)
	for rows.Next() {
		var (
			item  domain.OrderLineItem
			price decimal.Decimal
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.UnitPrice = domain.Money{Amount: price, Currency: currency}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                        domain.Order
		status, currency             string
		subtotal, shipping, discount decimal.Decimal
	)
	addr := &order.ShippingAddress
	err := row.Scan(
		&order.ID, &order.CustomerEmail,
		&addr.Street, &addr.City, &addr.State, &addr.ZipCode, &addr.Country,
		&status, &currency, &subtotal, &shipping, &discount,
		&order.PaymentReference, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Subtotal = domain.Money{Amount: subtotal, Currency: currency}
	order.ShippingCost = domain.Money{Amount: shipping, Currency: currency}
	order.Discount = domain.Money{Amount: discount, Currency: currency}
	return order, nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func rowExists(ctx context.Context, q rowQueryer, query, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, id).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check row exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
