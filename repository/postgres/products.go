package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace/models"
	"marketplace/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const productColumns = "id, vendor_id, name, description, price, images, category, stock, created_at, updated_at"

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.Description, &p.Price,
		pq.Array(&p.Images), &p.Category, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO products (id, vendor_id, name, description, price, images, category, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.VendorID, p.Name, p.Description, p.Price, pq.Array(p.Images), p.Category, p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		v.ProductID = p.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_variants (id, product_id, name, value, price, stock)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			v.ID, v.ProductID, v.Name, v.Value, v.Price, v.Stock,
		); err != nil {
			return fmt.Errorf("insert variant %s: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit product: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}

	variants, err := r.variants(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Variants = variants[p.ID]
	return p, nil
}

func (r *ProductRepository) ListByVendor(ctx context.Context, vendorID string) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE vendor_id = $1 ORDER BY created_at DESC", vendorID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	var ids []string
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return products, nil
	}

	variants, err := r.variants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}
	return products, nil
}

func (r *ProductRepository) variants(ctx context.Context, productIDs []string) (map[string][]models.ProductVariant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, name, value, price, stock FROM product_variants
		WHERE product_id = ANY($1) ORDER BY name`, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	byProduct := make(map[string][]models.ProductVariant)
	for rows.Next() {
		var v models.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Value, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	return byProduct, rows.Err()
}

// Update overwrites the editable columns of a product the vendor owns.
func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	if !validID(p.ID) {
		return repository.ErrNotFound
	}
	err := r.db.QueryRowContext(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, images = $4, category = $5, stock = $6, updated_at = NOW()
		WHERE id = $7 AND vendor_id = $8
		RETURNING created_at, updated_at`,
		p.Name, p.Description, p.Price, pq.Array(p.Images), p.Category, p.Stock, p.ID, p.VendorID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id, vendorID string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1 AND vendor_id = $2", id, vendorID)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// OwnersByIDs maps product id to vendor id. Unknown and malformed ids are
// absent from the map.
func (r *ProductRepository) OwnersByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	ids = validIDs(ids)
	owners := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}

	rows, err := r.db.QueryContext(ctx, "SELECT id, vendor_id FROM products WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve product owners: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, vendorID string
		if err := rows.Scan(&id, &vendorID); err != nil {
			return nil, fmt.Errorf("scan product owner: %w", err)
		}
		owners[id] = vendorID
	}
	return owners, rows.Err()
}

var _ repository.ProductRepository = (*ProductRepository)(nil)
