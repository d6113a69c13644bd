package service

import (
	"context"
	"testing"

	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv wires the full service stack against an in-memory sqlite database,
// mirroring the production wiring in cmd/api.
type testEnv struct {
	db *gorm.DB

	quoteRepo    repository.QuoteRepository
	orderRepo    repository.SalesOrderRepository
	invoiceRepo  repository.InvoiceRepository
	productRepo  repository.ProductRepository
	movementRepo repository.StockMovementRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditRepository
	sequences    repository.SequenceRepository
	txManager    repository.TransactionManager

	calculator *FinancialCalculator
	states     *DocumentStateMachine
	governance *GovernanceEngine
	ledger     *InventoryLedger

	quotes   QuoteService
	orders   OrderService
	invoices InvoiceService
	pipeline *ConversionPipeline
}

func newTestEnv(t *testing.T, inv config.InventoryConfig) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	env := &testEnv{db: db}
	env.quoteRepo = repository.NewQuoteRepository(db)
	env.orderRepo = repository.NewSalesOrderRepository(db)
	env.invoiceRepo = repository.NewInvoiceRepository(db)
	env.productRepo = repository.NewProductRepository(db)
	env.movementRepo = repository.NewStockMovementRepository(db)
	env.userRepo = repository.NewUserRepository(db)
	env.auditRepo = repository.NewAuditRepository(db)
	env.sequences = repository.NewSequenceRepository(db)
	env.txManager = repository.NewTransactionManager(db)

	env.calculator = NewFinancialCalculator()
	env.states = NewDocumentStateMachine()
	env.governance = NewGovernanceEngine()
	env.ledger = NewInventoryLedger(env.productRepo, env.movementRepo, inv)

	env.quotes = NewQuoteService(env.quoteRepo, env.auditRepo, env.userRepo, env.sequences,
		env.txManager, env.calculator, env.states, env.governance)
	env.orders = NewOrderService(env.orderRepo, env.auditRepo, env.userRepo, env.txManager,
		env.calculator, env.states, env.governance, env.ledger)
	env.invoices = NewInvoiceService(env.invoiceRepo, env.orderRepo, env.quoteRepo, env.auditRepo,
		env.userRepo, env.txManager, env.calculator, env.states, env.governance)
	env.pipeline = NewConversionPipeline(env.quoteRepo, env.orderRepo, env.invoiceRepo,
		env.auditRepo, env.userRepo, env.sequences, env.txManager, env.calculator,
		env.states, env.governance, env.ledger, nil, nil)

	return env
}

func trackingConfig() config.InventoryConfig {
	return config.InventoryConfig{TrackingEnabled: true, ShortageWarnings: true}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func (e *testEnv) createUser(t *testing.T, role string) *model.User {
	t.Helper()
	user := &model.User{
		Username: role + "-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		Password: "hashed",
		Role:     role,
	}
	require.NoError(t, e.userRepo.Create(context.Background(), user))
	return user
}

func (e *testEnv) createProduct(t *testing.T, sku string, stock decimal.Decimal) *model.Product {
	t.Helper()
	product := &model.Product{
		SKU:               sku,
		Name:              "Product " + sku,
		UnitPrice:         dec(t, "100"),
		StockQuantity:     stock,
		AvailableQuantity: stock,
	}
	require.NoError(t, e.productRepo.Create(context.Background(), product))
	return product
}

// createQuote seeds a quote directly through the repository with totals
// derived the same way the quote service derives them.
func (e *testEnv) createQuote(t *testing.T, status string, items []model.LineItem) *model.Quote {
	t.Helper()

	totals := e.calculator.DocumentTotals(items, dec(t, "100"), dec(t, "100"),
		dec(t, "90"), dec(t, "90"), decimal.Zero)
	for i := range items {
		items[i].Subtotal = e.calculator.LineSubtotal(items[i].Quantity, items[i].UnitPrice)
	}

	no, err := e.sequences.Next(context.Background(), model.DocTypeQuote)
	require.NoError(t, err)

	quote := &model.Quote{
		QuoteNo:  no,
		Status:   status,
		Version:  1,
		Subtotal: totals.Subtotal,
		Discount: totals.Discount,
		Shipping: totals.Shipping,
		CGST:     totals.CGST,
		SGST:     totals.SGST,
		IGST:     totals.IGST,
		Total:    totals.Total,
		Items:    items,
	}
	require.NoError(t, e.quoteRepo.Create(context.Background(), quote))
	return quote
}

func (e *testEnv) quoteItems(t *testing.T, productID *uuid.UUID) []model.LineItem {
	t.Helper()
	return []model.LineItem{
		{ProductID: productID, Description: "Widget", Quantity: dec(t, "4"), UnitPrice: dec(t, "200")},
		{ProductID: nil, Description: "Setup fee", Quantity: dec(t, "1"), UnitPrice: dec(t, "200")},
	}
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}
