package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements Store on Postgres. Atomicity relies on row locks:
// checkout locks the cart row and every product row it reserves from, the
// transition paths lock the order row.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderCols = `id, user_id, status, total_cents, currency, payment_ref, created_at, paid_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency,
		&o.PaymentRef, &o.CreatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) Checkout(ctx context.Context, userID, cartID string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the cart row first so a duplicate checkout of the same cart
	// serializes here and fails on the status check.
	var cartStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM carts WHERE id=$1 AND user_id=$2 FOR UPDATE`,
		cartID, userID).Scan(&cartStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartMismatch
	}
	if err != nil {
		return nil, err
	}
	if cartStatus != "draft" {
		return nil, fmt.Errorf("%w: cart already ordered", ErrCartMismatch)
	}

	type line struct {
		productID string
		qty       int
	}
	rows, err := tx.Query(ctx, `SELECT product_id, qty FROM cart_items WHERE cart_id=$1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	o := &Order{
		ID:       uuid.NewString(),
		UserID:   userID,
		Status:   StatusPending,
		Currency: "USD",
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status, total_cents, currency)
		VALUES ($1, $2, 'pending', 0, $3)
		RETURNING created_at`, o.ID, o.UserID, o.Currency).Scan(&o.CreatedAt)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, l := range lines {
		var (
			sku, name, currency string
			price, stock        int
			active              bool
		)
		err := tx.QueryRow(ctx, `
			SELECT sku, name, price_cents, currency, stock, is_active
			FROM products WHERE id=$1 FOR UPDATE`, l.productID).
			Scan(&sku, &name, &price, &currency, &stock, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableNotFound, Required: l.qty}
		}
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableInactive, Required: l.qty}
		}
		if stock < l.qty {
			return nil, &ProductUnavailableError{ProductID: l.productID, Reason: UnavailableOutOfStock, Required: l.qty, Available: stock}
		}

		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at=now() WHERE id=$1`, l.productID, l.qty); err != nil {
			return nil, err
		}

		item := OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			ProductID:    l.productID,
			SKUSnapshot:  sku,
			NameSnapshot: name,
			PriceCents:   price,
			Qty:          l.qty,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, sku_snapshot, name_snapshot, price_cents, qty)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.OrderID, item.ProductID, item.SKUSnapshot, item.NameSnapshot, item.PriceCents, item.Qty); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
		o.Currency = currency
		total += price * l.qty
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET total_cents=$2, currency=$3 WHERE id=$1`, o.ID, total, o.Currency); err != nil {
		return nil, err
	}
	// the cart is spent; a new draft is created on the user's next access
	if _, err := tx.Exec(ctx, `UPDATE carts SET status='ordered', updated_at=now() WHERE id=$1`, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.TotalCents = total
	return o, nil
}

func (r *Repo) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET payment_ref=$2 WHERE id=$1 AND payment_ref IS NULL`, orderID, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: payment ref already assigned or order missing", orderID)
	}
	return nil
}

func (r *Repo) MarkPaid(ctx context.Context, paymentRef string, at time.Time) (*Order, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE payment_ref=$1 FOR UPDATE`, paymentRef))
	if err != nil {
		return nil, false, err
	}

	// Anything but pending leaves the row untouched: a repeat delivery
	// sees paid and short-circuits, a stale confirmation on a cancelled
	// order loses to the cancel.
	if o.Status != StatusPending {
		if err := r.loadItems(ctx, tx, o); err != nil {
			return nil, false, err
		}
		return o, false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status='paid', paid_at=$2 WHERE id=$1`, o.ID, at); err != nil {
		return nil, false, err
	}
	o.Status = StatusPaid
	o.PaidAt = &at
	if err := r.loadItems(ctx, tx, o); err != nil {
		return nil, false, err
	}
	return o, true, tx.Commit(ctx)
}

func (r *Repo) Transition(ctx context.Context, orderID string, target Status, at time.Time) (*Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return nil, "", err
	}
	prev := o.Status

	noop, err := PlanTransition(prev, target)
	if err != nil {
		return nil, "", err
	}
	if noop {
		if err := r.loadItems(ctx, tx, o); err != nil {
			return nil, "", err
		}
		return o, prev, tx.Commit(ctx)
	}

	if target == StatusPaid && o.PaidAt == nil {
		if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, paid_at=$3 WHERE id=$1`, o.ID, target, at); err != nil {
			return nil, "", err
		}
		o.PaidAt = &at
	} else {
		if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, o.ID, target); err != nil {
			return nil, "", err
		}
	}
	// cancelling releases the reserved quantities back to the shelf
	if target == StatusCancelled {
		if _, err := tx.Exec(ctx, `
			UPDATE products p SET stock = p.stock + oi.qty, updated_at = now()
			FROM order_items oi
			WHERE oi.order_id = $1 AND oi.product_id = p.id`, o.ID); err != nil {
			return nil, "", err
		}
	}
	o.Status = target
	if err := r.loadItems(ctx, tx, o); err != nil {
		return nil, "", err
	}
	return o, prev, tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID))
	if err != nil {
		return nil, err
	}
	return o, r.loadItems(ctx, r.DB, o)
}

func (r *Repo) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 AND user_id=$2`, orderID, userID))
	if err != nil {
		return nil, err
	}
	return o, r.loadItems(ctx, r.DB, o)
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	f.Normalize()
	where := `WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, f.UserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.Query(ctx,
		`SELECT `+orderCols+` FROM orders `+where+` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		f.UserID, string(f.Status), f.PageSize, (f.Page-1)*f.PageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}

	itemRows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, sku_snapshot, name_snapshot, price_cents, qty
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()

	byOrder := make(map[string][]OrderItem, len(ids))
	for itemRows.Next() {
		var it OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKUSnapshot, &it.NameSnapshot, &it.PriceCents, &it.Qty); err != nil {
			return nil, 0, err
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = byOrder[out[i].ID]
	}
	return out, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) loadItems(ctx context.Context, q querier, o *Order) error {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, sku_snapshot, name_snapshot, price_cents, qty
		FROM order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Items = nil
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKUSnapshot, &it.NameSnapshot, &it.PriceCents, &it.Qty); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}
