package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuoteListFilter struct {
	Status     string
	CustomerID *uuid.UUID
	Page       int
	Limit      int
}

type QuoteRepository interface {
	Create(ctx context.Context, quote *model.Quote) error
	Save(ctx context.Context, quote *model.Quote) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Quote, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Quote, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Quote, error)
	List(ctx context.Context, filter QuoteListFilter) ([]model.Quote, int64, error)
	ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []model.LineItem) error
	// UpdateStatusFrom sets status only when the current status matches from,
	// reporting the number of rows affected. Zero rows means another
	// transaction already moved the quote. Callers use this for
	// exactly-once transitions such as approved -> invoiced.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to string) (int64, error)
	CreateVersion(ctx context.Context, version *model.QuoteVersion) error
	ListVersions(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteVersion, error)
}

type quoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

func (r *quoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	return GetDB(ctx, r.db).Create(quote).Error
}

func (r *quoteRepository) Save(ctx context.Context, quote *model.Quote) error {
	return GetDB(ctx, r.db).Omit("Items").Save(quote).Error
}

func (r *quoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	var quote model.Quote
	if err := GetDB(ctx, r.db).First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	var quote model.Quote
	if err := GetDB(ctx, r.db).Preload("Items").Preload("Customer").First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	var quote model.Quote
	if err := lockForUpdate(GetDB(ctx, r.db)).
		First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) List(ctx context.Context, filter QuoteListFilter) ([]model.Quote, int64, error) {
	var quotes []model.Quote
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Quote{})
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
		Offset(offset).Limit(filter.Limit).Find(&quotes).Error; err != nil {
		return nil, 0, err
	}

	return quotes, total, nil
}

func (r *quoteRepository) ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []model.LineItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("document_type = ? AND document_id = ?", model.DocTypeQuote, quoteID).
		Delete(&model.LineItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].DocumentType = model.DocTypeQuote
		items[i].DocumentID = quoteID
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *quoteRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Quote{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *quoteRepository) CreateVersion(ctx context.Context, version *model.QuoteVersion) error {
	return GetDB(ctx, r.db).Create(version).Error
}

func (r *quoteRepository) ListVersions(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteVersion, error) {
	var versions []model.QuoteVersion
	if err := GetDB(ctx, r.db).Where("quote_id = ?", quoteID).
		Order("version desc").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}
