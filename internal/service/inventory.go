package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryLedger mutates the stock/reserved/available counters. Every
// mutation is a single atomic server-side update performed by the product
// repository; the ledger never reads counters into memory to write them
// back. With tracking disabled every operation is a no-op by design.
type InventoryLedger struct {
	productRepo  repository.ProductRepository
	movementRepo repository.StockMovementRepository
	cfg          config.InventoryConfig
}

func NewInventoryLedger(
	productRepo repository.ProductRepository,
	movementRepo repository.StockMovementRepository,
	cfg config.InventoryConfig,
) *InventoryLedger {
	return &InventoryLedger{
		productRepo:  productRepo,
		movementRepo: movementRepo,
		cfg:          cfg,
	}
}

// Enabled reports whether inventory tracking is on.
func (l *InventoryLedger) Enabled() bool {
	return l.cfg.TrackingEnabled
}

// Reserve commits qty against a confirmed-but-unfulfilled order:
// reserved += qty, available -= qty.
func (l *InventoryLedger) Reserve(ctx context.Context, productID uuid.UUID, qty decimal.Decimal, docType string, docID uuid.UUID) error {
	if !l.cfg.TrackingEnabled {
		return nil
	}

	rows, err := l.productRepo.Reserve(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}

	return l.recordMovement(ctx, productID, model.MovementReserve, qty, docType, docID)
}

// Release returns a reservation: reserved = max(0, reserved - qty),
// available += qty. Releasing with no prior reservation is an idempotent
// no-op beyond the zero clamp.
func (l *InventoryLedger) Release(ctx context.Context, productID uuid.UUID, qty decimal.Decimal, docType string, docID uuid.UUID) error {
	if !l.cfg.TrackingEnabled {
		return nil
	}

	rows, err := l.productRepo.Release(ctx, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}

	return l.recordMovement(ctx, productID, model.MovementRelease, qty, docType, docID)
}

// Consume decrements physical stock at invoicing time: stock -= qty,
// reserved = max(0, reserved - qty), available recomputed from the
// post-decrement values in the same statement. A shortage is always logged;
// whether it blocks is governed by the AllowNegativeStock flag. The returned
// note is non-empty when a shortage occurred and shortage warnings are
// enabled, for the caller to append to the document's delivery notes.
func (l *InventoryLedger) Consume(ctx context.Context, productID uuid.UUID, qty decimal.Decimal, docType string, docID uuid.UUID) (string, error) {
	if !l.cfg.TrackingEnabled {
		return "", nil
	}

	requireStock := !l.cfg.AllowNegativeStock
	rows, err := l.productRepo.Consume(ctx, productID, qty, requireStock)
	if err != nil {
		return "", fmt.Errorf("failed to consume stock: %w", err)
	}
	if rows == 0 {
		// Zero rows means either the product is missing or the stock guard
		// rejected the decrement. Distinguish with a read.
		product, findErr := l.productRepo.FindByID(ctx, productID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return "", fmt.Errorf("product %s: %w", productID, ErrNotFound)
			}
			return "", fmt.Errorf("failed to load product %s: %w", productID, findErr)
		}
		log.Printf("inventory shortage: product %s (%s) stock %s, requested %s",
			product.SKU, productID, product.StockQuantity.StringFixed(2), qty.StringFixed(2))
		return "", fmt.Errorf("product %s (stock %s, requested %s): %w",
			product.SKU, product.StockQuantity.StringFixed(2), qty.StringFixed(2), ErrInsufficientStock)
	}

	note := ""
	product, err := l.productRepo.FindByID(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("failed to reload product after consume: %w", err)
	}
	if product.StockQuantity.IsNegative() {
		log.Printf("inventory shortage: product %s (%s) driven to %s by consume of %s",
			product.SKU, productID, product.StockQuantity.StringFixed(2), qty.StringFixed(2))
		if l.cfg.ShortageWarnings {
			note = fmt.Sprintf("Shortage: %s short by %s units at invoicing",
				product.Name, product.StockQuantity.Neg().StringFixed(2))
		}
	}

	return note, l.recordMovementFor(ctx, product, model.MovementConsume, qty, docType, docID)
}

// AdjustStock applies a manual delta (goods receipt, stocktake correction).
func (l *InventoryLedger) AdjustStock(ctx context.Context, productID uuid.UUID, delta decimal.Decimal) error {
	if !l.cfg.TrackingEnabled {
		return nil
	}

	rows, err := l.productRepo.AdjustStock(ctx, productID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}

	product, err := l.productRepo.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to reload product after adjust: %w", err)
	}
	movement := &model.StockMovement{
		ProductID:      product.ID,
		MovementType:   model.MovementAdjust,
		Quantity:       delta,
		StockAfter:     product.StockQuantity,
		ReservedAfter:  product.ReservedQuantity,
		AvailableAfter: product.AvailableQuantity,
	}
	return l.movementRepo.Create(ctx, movement)
}

func (l *InventoryLedger) recordMovement(ctx context.Context, productID uuid.UUID, movementType string, qty decimal.Decimal, docType string, docID uuid.UUID) error {
	product, err := l.productRepo.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to reload product after %s: %w", movementType, err)
	}
	return l.recordMovementFor(ctx, product, movementType, qty, docType, docID)
}

func (l *InventoryLedger) recordMovementFor(ctx context.Context, product *model.Product, movementType string, qty decimal.Decimal, docType string, docID uuid.UUID) error {
	ref := docID
	movement := &model.StockMovement{
		ProductID:      product.ID,
		DocumentType:   docType,
		DocumentID:     &ref,
		MovementType:   movementType,
		Quantity:       qty,
		StockAfter:     product.StockQuantity,
		ReservedAfter:  product.ReservedQuantity,
		AvailableAfter: product.AvailableQuantity,
	}
	if err := l.movementRepo.Create(ctx, movement); err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}
