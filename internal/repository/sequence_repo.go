package repository

import (
	"context"
	"fmt"

	"backend/internal/model"

	"gorm.io/gorm"
)

// SequenceRepository backs document numbering. Next must run inside the
// enclosing conversion transaction: the UPDATE takes a row lock on the
// sequence, so concurrent transactions serialize on it and never draw the
// same number.
type SequenceRepository interface {
	Next(ctx context.Context, docType string) (string, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

var sequencePrefixes = map[string]string{
	model.DocTypeQuote:      "QT-",
	model.DocTypeSalesOrder: "SO-",
	model.DocTypeInvoice:    "INV-",
}

func (r *sequenceRepository) Next(ctx context.Context, docType string) (string, error) {
	prefix, ok := sequencePrefixes[docType]
	if !ok {
		return "", fmt.Errorf("unknown document type: %s", docType)
	}

	db := GetDB(ctx, r.db)

	seq := model.DocumentSequence{DocType: docType, Prefix: prefix, NextValue: 1}
	if err := db.Where("doc_type = ?", docType).FirstOrCreate(&seq).Error; err != nil {
		return "", err
	}

	res := db.Model(&model.DocumentSequence{}).
		Where("doc_type = ?", docType).
		Update("next_value", gorm.Expr("next_value + 1"))
	if res.Error != nil {
		return "", res.Error
	}

	// Re-read after the increment; the row lock taken by the UPDATE keeps
	// this consistent within the transaction.
	if err := db.First(&seq, "doc_type = ?", docType).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%06d", seq.Prefix, seq.NextValue-1), nil
}
