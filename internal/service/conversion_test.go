package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestConvertQuoteToOrder(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))

	result, err := env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.NoError(t, err)

	assert.Equal(t, model.DocTypeSalesOrder, result.DocumentType)
	assert.Equal(t, "SO-000001", result.DocumentNo)
	assert.Equal(t, "1180.00", result.Total)

	order, err := env.orderRepo.FindByIDWithItems(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDraft, order.Status)
	require.NotNil(t, order.QuoteID)
	assert.Equal(t, quote.ID, *order.QuoteID)
	assert.Equal(t, "1180.00", order.Total.StringFixed(2))

	// Items are copied by value with fresh identities.
	require.Len(t, order.Items, 2)
	sourceQuote, err := env.quoteRepo.FindByIDWithItems(ctx, quote.ID)
	require.NoError(t, err)
	require.Len(t, sourceQuote.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, model.DocTypeSalesOrder, item.DocumentType)
		for _, src := range sourceQuote.Items {
			assert.NotEqual(t, src.ID, item.ID)
		}
	}

	// Conversion does not move the quote; that happens at invoicing.
	assert.Equal(t, model.QuoteStatusApproved, sourceQuote.Status)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionConvertQuote))
}

func TestConvertQuoteToOrderDuplicate(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))

	first, err := env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.NoError(t, err)

	_, err = env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.Error(t, err)

	var dup *DuplicateConversionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.DocumentID, dup.ExistingID)

	// Still exactly one order for the quote.
	var count int64
	require.NoError(t, env.db.Model(&model.SalesOrder{}).Where("quote_id = ?", quote.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestConvertQuoteToOrderDeniedForExecutive(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	executive := env.createUser(t, model.RoleSalesExecutive)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))

	_, err := env.pipeline.ConvertQuoteToOrder(ctx, executive.ID.String(), executive.Role, quote.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	var count int64
	require.NoError(t, env.db.Model(&model.SalesOrder{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestConvertQuoteToOrderWrongState(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusDraft, env.quoteItems(t, nil))

	_, err := env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestConvertQuoteToOrderMissingQuote(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	manager := env.createUser(t, model.RoleSalesManager)

	_, err := env.pipeline.ConvertQuoteToOrder(context.Background(), manager.ID.String(), manager.Role, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

// confirmedOrderFromQuote runs the quote-to-order conversion and confirms the
// resulting order so invoicing preconditions hold.
func confirmedOrderFromQuote(t *testing.T, env *testEnv, manager *model.User, quote *model.Quote) *model.SalesOrder {
	t.Helper()
	ctx := context.Background()

	result, err := env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.NoError(t, err)

	_, err = env.orders.ConfirmOrder(ctx, manager.ID.String(), manager.Role, result.DocumentID.String())
	require.NoError(t, err)

	order, err := env.orderRepo.FindByIDWithItems(ctx, result.DocumentID)
	require.NoError(t, err)
	return order
}

func TestConvertOrderToInvoice(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	product := env.createProduct(t, "SKU-INV", dec(t, "10"))

	pid := product.ID
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, &pid))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	result, err := env.pipeline.ConvertOrderToInvoice(ctx, finance.ID.String(), finance.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", result.DocumentNo)
	assert.Equal(t, "1180.00", result.Total)

	invoice, err := env.invoiceRepo.FindByIDWithItems(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, model.PaymentStatusUnpaid, invoice.PaymentStatus)
	require.Len(t, invoice.Items, 2)

	// Invoicing consumed the product-backed line (confirm reserved 4 first).
	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "6.00", got.StockQuantity.StringFixed(2))
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))

	// The source quote moved to invoiced exactly once.
	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusInvoiced, sourceQuote.Status)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionQuoteInvoiced))
}

func TestConvertOrderToInvoicePartialInvoicing(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	_, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	second, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", second.DocumentNo)

	invoices, err := env.invoiceRepo.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	// The quote transition fired only on the first conversion.
	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusInvoiced, sourceQuote.Status)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionQuoteInvoiced))
}

func TestConvertOrderToInvoiceNumberCollision(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	// Occupy the number the sequence will hand out next.
	squatter := &model.Invoice{
		InvoiceNo:     "INV-000001",
		Status:        model.InvoiceStatusDraft,
		PaymentStatus: model.PaymentStatusUnpaid,
	}
	require.NoError(t, env.invoiceRepo.Create(ctx, squatter))

	_, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.Error(t, err)

	var dupErr *DuplicateConversionError
	require.True(t, errors.As(err, &dupErr))
	// An invoice number collision points at no conflicting document.
	assert.Equal(t, uuid.Nil, dupErr.ExistingID)

	invoices, err := env.invoiceRepo.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestConvertOrderToInvoiceRollsBackOnShortage(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	product := env.createProduct(t, "SKU-ROLL", dec(t, "2"))

	pid := product.ID
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, &pid))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	_, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing persisted: no invoice, stock untouched, quote still approved.
	var count int64
	require.NoError(t, env.db.Model(&model.Invoice{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	got := reloadProduct(t, env, product.ID)
	assert.Equal(t, "2.00", got.StockQuantity.StringFixed(2))

	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusApproved, sourceQuote.Status)
}

func TestConvertOrderToInvoiceRejectsDraftOrder(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))

	result, err := env.pipeline.ConvertQuoteToOrder(ctx, manager.ID.String(), manager.Role, quote.ID)
	require.NoError(t, err)

	_, err = env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, result.DocumentID, ConvertOrderOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestConvertOrderToInvoiceRejectsRevisedQuote(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	// Revising the source quote after conversion drops it back to draft.
	_, err := env.quotes.ReviseQuote(ctx, manager.ID.String(), manager.Role, quote.ID.String(), ReviseQuoteRequest{Reason: "price change"})
	require.NoError(t, err)

	_, err = env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Contains(t, transitionErr.Reason, "no longer be invoiced")
}

func TestSequenceNumbersArePerDocumentType(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()

	first, err := env.sequences.Next(ctx, model.DocTypeQuote)
	require.NoError(t, err)
	second, err := env.sequences.Next(ctx, model.DocTypeQuote)
	require.NoError(t, err)
	orderNo, err := env.sequences.Next(ctx, model.DocTypeSalesOrder)
	require.NoError(t, err)

	assert.Equal(t, "QT-000001", first)
	assert.Equal(t, "QT-000002", second)
	assert.Equal(t, "SO-000001", orderNo)

	_, err = env.sequences.Next(ctx, "UNKNOWN")
	require.Error(t, err)
}

func TestOrderCancelReleasesReservation(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	product := env.createProduct(t, "SKU-CANCEL", dec(t, "10"))

	pid := product.ID
	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, &pid))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	// Confirmation reserved the product-backed quantity.
	got := reloadProduct(t, env, product.ID)
	require.Equal(t, "4.00", got.ReservedQuantity.StringFixed(2))

	_, err := env.orders.CancelOrder(ctx, manager.ID.String(), manager.Role, order.ID.String())
	require.NoError(t, err)

	got = reloadProduct(t, env, product.ID)
	assert.Equal(t, "0.00", got.ReservedQuantity.StringFixed(2))
	assert.Equal(t, "10.00", got.AvailableQuantity.StringFixed(2))

	cancelled, err := env.orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
}

func TestFindByQuoteIDNotFound(t *testing.T) {
	env := newTestEnv(t, trackingConfig())

	_, err := env.orderRepo.FindByQuoteID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
