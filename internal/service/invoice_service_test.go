package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// invoiceFromQuote drives a quote through the full pipeline and returns the
// resulting draft invoice id alongside the source quote.
func invoiceFromQuote(t *testing.T, env *testEnv, manager *model.User) (string, *model.Quote) {
	t.Helper()
	ctx := context.Background()

	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	result, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	return result.DocumentID.String(), quote
}

func TestConfirmInvoice(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	executive := env.createUser(t, model.RoleSalesExecutive)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	_, err := env.invoices.ConfirmInvoice(ctx, executive.ID.String(), executive.Role, invoiceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	confirmed, err := env.invoices.ConfirmInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusConfirmed, confirmed.Status)

	// Confirming twice is an illegal transition.
	_, err = env.invoices.ConfirmInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.Error(t, err)
}

func TestRecordPaymentPartial(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, quote := invoiceFromQuote(t, env, manager)

	paid, err := env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "500", Reference: "TXN-001"})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartial, paid.Status)
	assert.Equal(t, model.PaymentStatusPartial, paid.PaymentStatus)
	assert.Equal(t, "500.00", paid.AmountPaid)
	assert.Equal(t, "680.00", paid.Balance)

	// A partial payment must not close the source quote.
	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusInvoiced, sourceQuote.Status)
}

func TestRecordPaymentOverpayRejected(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	_, err := env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "2000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds outstanding balance")

	got, err := env.invoices.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", got.AmountPaid)
}

func TestRecordPaymentFullClosesSourceQuote(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, quote := invoiceFromQuote(t, env, manager)

	_, err := env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "1000"})
	require.NoError(t, err)

	paid, err := env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "180"})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, "0.00", paid.Balance)

	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusClosedPaid, sourceQuote.Status)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionCloseQuotePaid))

	// A paid invoice has no balance left to pay against.
	_, err = env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "1"})
	require.Error(t, err)
}

func TestRecordPaymentWaitsForSiblingInvoices(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)

	quote := env.createQuote(t, model.QuoteStatusApproved, env.quoteItems(t, nil))
	order := confirmedOrderFromQuote(t, env, manager, quote)

	first, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)
	second, err := env.pipeline.ConvertOrderToInvoice(ctx, manager.ID.String(), manager.Role, order.ID, ConvertOrderOptions{})
	require.NoError(t, err)

	_, err = env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, first.DocumentID.String(),
		RecordPaymentRequest{Amount: "1180"})
	require.NoError(t, err)

	// One of two invoices paid keeps the quote open.
	sourceQuote, err := env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusInvoiced, sourceQuote.Status)

	_, err = env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, second.DocumentID.String(),
		RecordPaymentRequest{Amount: "1180"})
	require.NoError(t, err)

	sourceQuote, err = env.quoteRepo.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusClosedPaid, sourceQuote.Status)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionCloseQuotePaid))
}

func TestRecordPaymentDeniedForExecutive(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	manager := env.createUser(t, model.RoleSalesManager)
	executive := env.createUser(t, model.RoleSalesExecutive)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	_, err := env.invoices.RecordPayment(context.Background(), executive.ID.String(), executive.Role, invoiceID,
		RecordPaymentRequest{Amount: "100"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestLockMasterInvoice(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	// Only confirmed invoices can be locked.
	_, err := env.invoices.LockMasterInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.Error(t, err)

	_, err = env.invoices.ConfirmInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)

	locked, err := env.invoices.LockMasterInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	// Locking an already locked invoice is a no-op.
	again, err := env.invoices.LockMasterInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)
	assert.True(t, again.Locked)
	assert.EqualValues(t, 1, env.auditCount(t, model.ActionLockMasterInvoice))

	_, err = env.invoices.LockMasterInvoice(ctx, manager.ID.String(), manager.Role, invoiceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestCancelLockedInvoiceRejected(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	_, err := env.invoices.ConfirmInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)
	_, err = env.invoices.LockMasterInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)

	_, err = env.invoices.CancelInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "A locked invoice cannot be cancelled", transitionErr.Reason)
}

func TestCancelInvoice(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	manager := env.createUser(t, model.RoleSalesManager)
	finance := env.createUser(t, model.RoleFinanceAccounts)
	invoiceID, _ := invoiceFromQuote(t, env, manager)

	cancelled, err := env.invoices.CancelInvoice(ctx, finance.ID.String(), finance.Role, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusCancelled, cancelled.Status)

	// Cancelled invoices accept no payments.
	_, err = env.invoices.RecordPayment(ctx, finance.ID.String(), finance.Role, invoiceID,
		RecordPaymentRequest{Amount: "100"})
	require.Error(t, err)
}

func TestGetInvoiceMissing(t *testing.T) {
	env := newTestEnv(t, trackingConfig())

	_, err := env.invoices.GetInvoice(context.Background(), "6f7cf0b3-54a2-4d52-bb08-7f0e3f0f8d01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
