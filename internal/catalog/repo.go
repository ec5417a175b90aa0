package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, sku, name, slug, description, price_cents, currency, stock, is_active, category_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Slug, &p.Description, &p.PriceCents,
		&p.Currency, &p.Stock, &p.IsActive, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) GetByID(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE slug=$1`, slug))
}

type ListFilter struct {
	CategoryID      string
	IncludeInactive bool
	Page            int
	PageSize        int
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Product, int, error) {
	f.normalize()
	where := `WHERE ($1 = '' OR category_id = $1) AND ($2 OR is_active)`

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, f.CategoryID, f.IncludeInactive).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.Query(ctx,
		`SELECT `+productCols+` FROM products `+where+` ORDER BY name, id LIMIT $3 OFFSET $4`,
		f.CategoryID, f.IncludeInactive, f.PageSize, (f.Page-1)*f.PageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *Repo) Create(ctx context.Context, p Product) (Product, error) {
	p.ID = uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, sku, name, slug, description, price_cents, currency, stock, is_active, category_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+productCols,
		p.ID, p.SKU, p.Name, p.Slug, p.Description, p.PriceCents, p.Currency, p.Stock, p.IsActive, p.CategoryID)
	return scanProduct(row)
}

// ApplyPatch merges a sparse update into the current row under a row lock so
// concurrent patches cannot interleave field-by-field.
func (r *Repo) ApplyPatch(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Product{}, err
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return Product{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE products
		SET name=$2, slug=$3, description=$4, price_cents=$5, currency=$6, stock=$7,
		    is_active=$8, category_id=$9, updated_at=now()
		WHERE id=$1
		RETURNING `+productCols,
		id, next.Name, next.Slug, next.Description, next.PriceCents, next.Currency,
		next.Stock, next.IsActive, next.CategoryID)
	updated, err := scanProduct(row)
	if err != nil {
		return Product{}, err
	}
	return updated, tx.Commit(ctx)
}

// Deactivate soft-deletes a product. Order lines keep their snapshots.
func (r *Repo) Deactivate(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET is_active=FALSE, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TryDecrementStock is the inventory ledger primitive: decrement by qty only
// if the remaining stock covers it, in one conditional statement.
func (r *Repo) TryDecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	if qty < 1 {
		return false, fmt.Errorf("%w: qty must be >= 1", ErrValidation)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at=now() WHERE id=$1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// RestoreStock returns previously reserved quantity to the ledger.
func (r *Repo) RestoreStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: qty must be >= 1", ErrValidation)
	}
	_, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at=now() WHERE id=$1`, id, qty)
	return err
}

func (r *Repo) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, slug, parent_id FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
