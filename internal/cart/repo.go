package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrItemNotFound      = errors.New("cart item not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repo struct{ DB *pgxpool.Pool }

// GetOrCreateDraft returns the user's draft cart, creating it lazily on
// first access. The partial unique index on carts(user_id) keeps concurrent
// first accesses from creating two drafts; the loser of that race re-reads.
func (r *Repo) GetOrCreateDraft(ctx context.Context, userID string) (Cart, error) {
	c, err := r.getDraft(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, err
	}

	id := uuid.NewString()
	_, err = r.DB.Exec(ctx, `INSERT INTO carts (id, user_id, status) VALUES ($1, $2, 'draft')
	                         ON CONFLICT DO NOTHING`, id, userID)
	if err != nil {
		return Cart{}, err
	}
	return r.getDraft(ctx, userID)
}

func (r *Repo) getDraft(ctx context.Context, userID string) (Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, status, created_at, updated_at
		FROM carts WHERE user_id=$1 AND status='draft'`, userID).
		Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, err
	}
	c.Items, err = r.loadItems(ctx, c.ID)
	return c, err
}

func (r *Repo) loadItems(ctx context.Context, cartID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, cart_id, product_id, qty
		FROM cart_items WHERE cart_id=$1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddItem appends qty of a product to the draft cart, merging with an
// existing line for the same product. The stock check here is advisory:
// checkout re-validates under a row lock.
func (r *Repo) AddItem(ctx context.Context, cartID, productID string, qty int) (Item, error) {
	if qty < 1 {
		return Item{}, fmt.Errorf("%w: qty must be >= 1", ErrValidation)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	var active bool
	err = tx.QueryRow(ctx, `SELECT stock, is_active FROM products WHERE id=$1`, productID).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrProductNotFound
	}
	if err != nil {
		return Item{}, err
	}
	if !active {
		return Item{}, ErrProductNotFound
	}

	var it Item
	err = tx.QueryRow(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty
		RETURNING id, cart_id, product_id, qty`,
		uuid.NewString(), cartID, productID, qty).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty)
	if err != nil {
		return Item{}, err
	}
	if it.Qty > stock {
		return Item{}, fmt.Errorf("%w: product %s has %d in stock", ErrInsufficientStock, productID, stock)
	}

	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at=now() WHERE id=$1`, cartID); err != nil {
		return Item{}, err
	}
	return it, tx.Commit(ctx)
}

// UpdateItem replaces the quantity of one cart line.
func (r *Repo) UpdateItem(ctx context.Context, cartID, itemID string, qty int) (Item, error) {
	if qty < 1 {
		return Item{}, fmt.Errorf("%w: qty must be >= 1", ErrValidation)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var it Item
	err = tx.QueryRow(ctx, `
		UPDATE cart_items SET qty=$3
		WHERE id=$1 AND cart_id=$2
		RETURNING id, cart_id, product_id, qty`, itemID, cartID, qty).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}

	var stock int
	if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, it.ProductID).Scan(&stock); err != nil {
		return Item{}, err
	}
	if qty > stock {
		return Item{}, fmt.Errorf("%w: product %s has %d in stock", ErrInsufficientStock, it.ProductID, stock)
	}

	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at=now() WHERE id=$1`, cartID); err != nil {
		return Item{}, err
	}
	return it, tx.Commit(ctx)
}

func (r *Repo) RemoveItem(ctx context.Context, cartID, itemID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND cart_id=$2`, itemID, cartID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
