package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderListFilter struct {
	Status     string
	CustomerID *uuid.UUID
	Page       int
	Limit      int
}

type SalesOrderRepository interface {
	Create(ctx context.Context, order *model.SalesOrder) error
	Save(ctx context.Context, order *model.SalesOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error)
	// FindByQuoteID returns gorm.ErrRecordNotFound when no order references
	// the quote. Inside a conversion transaction this is the authoritative
	// duplicate check, backed by the unique index on quote_id.
	FindByQuoteID(ctx context.Context, quoteID uuid.UUID) (*model.SalesOrder, error)
	List(ctx context.Context, filter OrderListFilter) ([]model.SalesOrder, int64, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to string) (int64, error)
}

type salesOrderRepository struct {
	db *gorm.DB
}

func NewSalesOrderRepository(db *gorm.DB) SalesOrderRepository {
	return &salesOrderRepository{db: db}
}

func (r *salesOrderRepository) Create(ctx context.Context, order *model.SalesOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *salesOrderRepository) Save(ctx context.Context, order *model.SalesOrder) error {
	return GetDB(ctx, r.db).Omit("Items").Save(order).Error
}

func (r *salesOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error) {
	var order model.SalesOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *salesOrderRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error) {
	var order model.SalesOrder
	if err := GetDB(ctx, r.db).Preload("Items").Preload("Customer").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *salesOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SalesOrder, error) {
	var order model.SalesOrder
	if err := lockForUpdate(GetDB(ctx, r.db)).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *salesOrderRepository) FindByQuoteID(ctx context.Context, quoteID uuid.UUID) (*model.SalesOrder, error) {
	var order model.SalesOrder
	if err := GetDB(ctx, r.db).Where("quote_id = ?", quoteID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *salesOrderRepository) List(ctx context.Context, filter OrderListFilter) ([]model.SalesOrder, int64, error) {
	var orders []model.SalesOrder
	var total int64

	db := GetDB(ctx, r.db).Model(&model.SalesOrder{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Preload("Items").Order("created_at desc").
		Offset(offset).Limit(filter.Limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *salesOrderRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.SalesOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}
