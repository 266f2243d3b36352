package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLiteProductRepository implements ProductRepository.
type SQLiteProductRepository struct {
	db *sql.DB
}

func NewSQLiteProductRepository(db *sql.DB) *SQLiteProductRepository {
	return &SQLiteProductRepository{db: db}
}

func (r *SQLiteProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, canonical_name, brand, ean, upc, isbn, image_url, subscriber_count, created_at, updated_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (r *SQLiteProductRepository) Create(ctx context.Context, p *models.Product) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, canonical_name, brand, ean, upc, isbn, image_url, subscriber_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CanonicalName, p.Brand, p.EAN, p.UPC, p.ISBN, p.ImageURL, p.SubscriberCount, now, now)
	return err
}

func (r *SQLiteProductRepository) Update(ctx context.Context, p *models.Product) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET canonical_name = ?, brand = ?, ean = ?, upc = ?, isbn = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		p.CanonicalName, p.Brand, p.EAN, p.UPC, p.ISBN, p.ImageURL, time.Now().UTC().Format(time.RFC3339), p.ID)
	return err
}

func (r *SQLiteProductRepository) IncrementSubscriberCount(ctx context.Context, productID string, delta int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET subscriber_count = MAX(0, subscriber_count + ?), updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC().Format(time.RFC3339), productID)
	return err
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var brand, ean, upc, isbn, imageURL sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.CanonicalName, &brand, &ean, &upc, &isbn, &imageURL, &p.SubscriberCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Brand, p.EAN, p.UPC, p.ISBN, p.ImageURL = brand.String, ean.String, upc.String, isbn.String, imageURL.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}
