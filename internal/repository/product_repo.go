package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductRepository persists products and applies inventory counter
// mutations. Reserve/Release/Consume are each a single atomic UPDATE with
// server-side arithmetic, never a read followed by a write, so concurrent
// requests against the same product row apply correctly regardless of
// interleaving. Subtractions clamp at zero: reserved and available are never
// persisted negative.
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)
	List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error)

	Reserve(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (int64, error)
	Release(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (int64, error)
	// Consume decrements stock and reserved. With requireStock true the
	// update carries a stock_quantity >= qty guard and affects zero rows on
	// shortage.
	Consume(ctx context.Context, id uuid.UUID, qty decimal.Decimal, requireStock bool) (int64, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (int64, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

func (r *productRepository) Update(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Save(product).Error
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Product{}).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindBySKU(ctx context.Context, sku string) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Where("sku = ?", sku).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if search != "" {
		db = db.Where("name LIKE ?", "%"+search+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Reserve: reserved += qty; available = max(stock - new reserved, 0).
// Column references on the right-hand side evaluate against the pre-update
// row, so the CASE expressions below see consistent values.
func (r *productRepository) Reserve(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reserved_quantity": gorm.Expr("reserved_quantity + ?", qty),
			"available_quantity": gorm.Expr(
				"CASE WHEN stock_quantity - (reserved_quantity + ?) > 0 THEN stock_quantity - (reserved_quantity + ?) ELSE 0 END",
				qty, qty),
		})
	return res.RowsAffected, res.Error
}

// Release: reserved = max(reserved - qty, 0); available recomputed from the
// clamped reserved value. Releasing more than is reserved is an idempotent
// no-op beyond the clamp.
func (r *productRepository) Release(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reserved_quantity": gorm.Expr(
				"CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END", qty, qty),
			"available_quantity": gorm.Expr(
				"CASE WHEN stock_quantity - (CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END) > 0 "+
					"THEN stock_quantity - (CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END) ELSE 0 END",
				qty, qty, qty, qty),
		})
	return res.RowsAffected, res.Error
}

// Consume: stock -= qty; reserved = max(reserved - qty, 0); available
// recomputed from the post-decrement stock and reserved in the same
// statement.
func (r *productRepository) Consume(ctx context.Context, id uuid.UUID, qty decimal.Decimal, requireStock bool) (int64, error) {
	db := GetDB(ctx, r.db).Model(&model.Product{}).Where("id = ?", id)
	if requireStock {
		db = db.Where("stock_quantity >= ?", qty)
	}
	res := db.Updates(map[string]interface{}{
		"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
		"reserved_quantity": gorm.Expr(
			"CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END", qty, qty),
		"available_quantity": gorm.Expr(
			"CASE WHEN (stock_quantity - ?) - (CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END) > 0 "+
				"THEN (stock_quantity - ?) - (CASE WHEN reserved_quantity - ? > 0 THEN reserved_quantity - ? ELSE 0 END) ELSE 0 END",
			qty, qty, qty, qty, qty, qty),
	})
	return res.RowsAffected, res.Error
}

// AdjustStock applies a manual stock delta and recomputes available from the
// adjusted stock, clamped at zero.
func (r *productRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", delta),
			"available_quantity": gorm.Expr(
				"CASE WHEN (stock_quantity + ?) - reserved_quantity > 0 THEN (stock_quantity + ?) - reserved_quantity ELSE 0 END",
				delta, delta),
		})
	return res.RowsAffected, res.Error
}
