package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy-api/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

//go:embed schema.sql
var schemaSQL string

type txKey struct{}

// PostgresStore keeps the catalog and orders in PostgreSQL. Embedded order
// documents live in JSONB columns.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// conn returns the transaction carried by ctx, or the pool.
func (s *PostgresStore) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) SupportsTransactions() bool { return true }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type productRow struct {
	ID                     string          `db:"id"`
	Name                   string          `db:"name"`
	Description            string          `db:"description"`
	Category               string          `db:"category"`
	SubCategory            string          `db:"sub_category"`
	Brand                  string          `db:"brand"`
	Price                  float64         `db:"price"`
	OriginalPrice          sql.NullFloat64 `db:"original_price"`
	Rating                 float64         `db:"rating"`
	NumReviews             int             `db:"num_reviews"`
	Image                  string          `db:"image"`
	IsPrescriptionRequired bool            `db:"is_prescription_required"`
	CountInStock           int             `db:"count_in_stock"`
	Tags                   pq.StringArray  `db:"tags"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

func newProductRow(p models.Product) productRow {
	row := productRow{
		ID:                     p.ID.Hex(),
		Name:                   p.Name,
		Description:            p.Description,
		Category:               p.Category,
		SubCategory:            p.SubCategory,
		Brand:                  p.Brand,
		Price:                  p.Price,
		Rating:                 p.Rating,
		NumReviews:             p.NumReviews,
		Image:                  p.Image,
		IsPrescriptionRequired: p.IsPrescriptionRequired,
		CountInStock:           p.CountInStock,
		Tags:                   pq.StringArray(p.Tags),
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
	if p.OriginalPrice != nil {
		row.OriginalPrice = sql.NullFloat64{Float64: *p.OriginalPrice, Valid: true}
	}
	return row
}

func (r productRow) model() (models.Product, error) {
	id, err := primitive.ObjectIDFromHex(r.ID)
	if err != nil {
		return models.Product{}, fmt.Errorf("corrupt product id %q: %w", r.ID, err)
	}
	p := models.Product{
		ID:                     id,
		Name:                   r.Name,
		Description:            r.Description,
		Category:               r.Category,
		SubCategory:            r.SubCategory,
		Brand:                  r.Brand,
		Price:                  r.Price,
		Rating:                 r.Rating,
		NumReviews:             r.NumReviews,
		Image:                  r.Image,
		IsPrescriptionRequired: r.IsPrescriptionRequired,
		CountInStock:           r.CountInStock,
		Tags:                   []string(r.Tags),
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
	if r.OriginalPrice.Valid {
		v := r.OriginalPrice.Float64
		p.OriginalPrice = &v
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}

// escapeLike makes a keyword match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// productQuery builds the catalog SELECT for a filter.
func productQuery(f ProductFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Keyword != "" {
		args = append(args, "%"+escapeLike(f.Keyword)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR brand ILIKE $%d OR category ILIKE $%d)", n, n, n))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.SubCategory != "" {
		args = append(args, f.SubCategory)
		conds = append(conds, fmt.Sprintf("sub_category = $%d", len(args)))
	}

	query := "SELECT * FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY created_at, id", args
}

func (s *PostgresStore) FindProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query, args := productQuery(filter)

	var rows []productRow
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products := make([]models.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.model()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var row productRow
	err = sqlx.GetContext(ctx, s.conn(ctx), &row, "SELECT * FROM products WHERE id = $1", oid.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p, err := row.model()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ProductCategories(ctx context.Context) ([]string, error) {
	categories := []string{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &categories,
		"SELECT DISTINCT category FROM products ORDER BY category")
	return categories, err
}

const insertProductSQL = `
	INSERT INTO products (id, name, description, category, sub_category, brand, price,
		original_price, rating, num_reviews, image, is_prescription_required,
		count_in_stock, tags, created_at, updated_at)
	VALUES (:id, :name, :description, :category, :sub_category, :brand, :price,
		:original_price, :rating, :num_reviews, :image, :is_prescription_required,
		:count_in_stock, :tags, :created_at, :updated_at)`

func (s *PostgresStore) ReplaceProducts(ctx context.Context, products []models.Product) ([]models.Product, error) {
	prepared := prepareProducts(products)

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM products"); err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}
		for _, p := range prepared {
			if _, err := sqlx.NamedExecContext(ctx, s.conn(ctx), insertProductSQL, newProductRow(p)); err != nil {
				return fmt.Errorf("failed to insert product %q: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *PostgresStore) DeleteAllProducts(ctx context.Context) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM products")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE products SET count_in_stock = count_in_stock - $1, updated_at = NOW()
		 WHERE id = $2 AND count_in_stock >= $1`,
		qty, id.Hex())
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		"UPDATE products SET count_in_stock = count_in_stock + $1, updated_at = NOW() WHERE id = $2",
		qty, id.Hex())
	return err
}

// jsonb stores a value as a JSON document column.
type jsonb[T any] struct {
	V T
}

func (j jsonb[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *jsonb[T]) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("jsonb: unsupported source type %T", src)
	}
}
