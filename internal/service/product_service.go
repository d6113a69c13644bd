package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductRequest struct {
	SKU       string `json:"sku" binding:"required"`
	Name      string `json:"name" binding:"required"`
	UnitPrice string `json:"unit_price" binding:"required"`
	TaxCode   string `json:"tax_code"`
	Stock     string `json:"stock"`
}

type AdjustStockRequest struct {
	Delta  string `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

type ProductResponse struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	UnitPrice         string `json:"unit_price"`
	StockQuantity     string `json:"stock_quantity"`
	ReservedQuantity  string `json:"reserved_quantity"`
	AvailableQuantity string `json:"available_quantity"`
	TaxCode           string `json:"tax_code"`
	CreatedAt         string `json:"created_at"`
}

type StockMovementResponse struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"product_id"`
	DocumentType   string  `json:"document_type"`
	DocumentID     *string `json:"document_id"`
	MovementType   string  `json:"movement_type"`
	Quantity       string  `json:"quantity"`
	StockAfter     string  `json:"stock_after"`
	ReservedAfter  string  `json:"reserved_after"`
	AvailableAfter string  `json:"available_after"`
	CreatedAt      string  `json:"created_at"`
}

type ProductService interface {
	CreateProduct(ctx context.Context, userID string, req ProductRequest) (ProductResponse, error)
	UpdateProduct(ctx context.Context, userID string, id string, req ProductRequest) (ProductResponse, error)
	DeleteProduct(ctx context.Context, userID string, id string) error
	GetProduct(ctx context.Context, id string) (ProductResponse, error)
	ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
	AdjustStock(ctx context.Context, userID string, id string, req AdjustStockRequest) (ProductResponse, error)
	ListMovements(ctx context.Context, id string, page, limit int) ([]StockMovementResponse, int64, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	movementRepo repository.StockMovementRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	ledger       *InventoryLedger
}

func NewProductService(
	productRepo repository.ProductRepository,
	movementRepo repository.StockMovementRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	ledger *InventoryLedger,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		movementRepo: movementRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		ledger:       ledger,
	}
}

func (s *productService) CreateProduct(ctx context.Context, userID string, req ProductRequest) (ProductResponse, error) {
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid unit_price %q: %w", req.UnitPrice, err)
	}
	stock := decimal.Zero
	if req.Stock != "" {
		if stock, err = decimal.NewFromString(req.Stock); err != nil {
			return ProductResponse{}, fmt.Errorf("invalid stock %q: %w", req.Stock, err)
		}
	}

	if existing, err := s.productRepo.FindBySKU(ctx, req.SKU); err == nil && existing != nil {
		return ProductResponse{}, fmt.Errorf("product with SKU %q already exists", req.SKU)
	}

	product := model.Product{
		SKU:               req.SKU,
		Name:              req.Name,
		UnitPrice:         unitPrice,
		StockQuantity:     stock,
		AvailableQuantity: stock,
		TaxCode:           req.TaxCode,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Create(txCtx, &product); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("product with SKU %q already exists", req.SKU)
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionCreateProduct, &product, nil)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(product), nil
}

func (s *productService) UpdateProduct(ctx context.Context, userID string, id string, req ProductRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid unit_price %q: %w", req.UnitPrice, err)
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductResponse{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return ProductResponse{}, fmt.Errorf("failed to load product: %w", err)
	}

	// Stock counters are never edited here; AdjustStock owns them.
	product.SKU = req.SKU
	product.Name = req.Name
	product.UnitPrice = unitPrice
	product.TaxCode = req.TaxCode

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionUpdateProduct, product, nil)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(*product), nil
}

func (s *productService) DeleteProduct(ctx context.Context, userID string, id string) error {
	productID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid product id: %w", err)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to load product: %w", err)
	}
	if product.ReservedQuantity.GreaterThan(decimal.Zero) {
		return fmt.Errorf("product %q has active reservations and cannot be deleted", product.SKU)
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Delete(txCtx, productID); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionDeleteProduct, product, nil)
	})
}

func (s *productService) GetProduct(ctx context.Context, id string) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductResponse{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return ProductResponse{}, fmt.Errorf("failed to load product: %w", err)
	}
	return toProductResponse(*product), nil
}

func (s *productService) ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	products, total, err := s.productRepo.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}
	result := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		result = append(result, toProductResponse(p))
	}
	return result, total, nil
}

func (s *productService) AdjustStock(ctx context.Context, userID string, id string, req AdjustStockRequest) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid product id: %w", err)
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		return ProductResponse{}, fmt.Errorf("invalid delta %q: %w", req.Delta, err)
	}

	var product *model.Product
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ledger.AdjustStock(txCtx, productID, delta); err != nil {
			return err
		}
		product, err = s.productRepo.FindByID(txCtx, productID)
		if err != nil {
			return fmt.Errorf("failed to reload product: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionAdjustStock, product,
			map[string]interface{}{"delta": delta.StringFixed(2), "reason": req.Reason})
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(*product), nil
}

func (s *productService) ListMovements(ctx context.Context, id string, page, limit int) ([]StockMovementResponse, int64, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid product id: %w", err)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	movements, total, err := s.movementRepo.ListByProduct(ctx, productID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch stock movements: %w", err)
	}
	result := make([]StockMovementResponse, 0, len(movements))
	for _, m := range movements {
		r := StockMovementResponse{
			ID:             m.ID.String(),
			ProductID:      m.ProductID.String(),
			DocumentType:   m.DocumentType,
			MovementType:   m.MovementType,
			Quantity:       m.Quantity.StringFixed(2),
			StockAfter:     m.StockAfter.StringFixed(2),
			ReservedAfter:  m.ReservedAfter.StringFixed(2),
			AvailableAfter: m.AvailableAfter.StringFixed(2),
			CreatedAt:      m.CreatedAt.Format(time.RFC3339),
		}
		if m.DocumentID != nil {
			docID := m.DocumentID.String()
			r.DocumentID = &docID
		}
		result = append(result, r)
	}
	return result, total, nil
}

func (s *productService) audit(ctx context.Context, userID, action string, product *model.Product, details map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityType: "PRODUCT",
		EntityID:   product.ID.String(),
		EntityName: product.SKU,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toProductResponse(p model.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID.String(),
		SKU:               p.SKU,
		Name:              p.Name,
		UnitPrice:         p.UnitPrice.StringFixed(2),
		StockQuantity:     p.StockQuantity.StringFixed(2),
		ReservedQuantity:  p.ReservedQuantity.StringFixed(2),
		AvailableQuantity: p.AvailableQuantity.StringFixed(2),
		TaxCode:           p.TaxCode,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
	}
}
