package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuoteRequest() QuoteRequest {
	return QuoteRequest{
		Discount: "100",
		Shipping: "100",
		CGST:     "90",
		SGST:     "90",
		Items: []LineItemRequest{
			{Description: "Widget", Quantity: "4", UnitPrice: "200"},
			{Description: "Setup fee", Quantity: "1", UnitPrice: "200"},
		},
	}
}

func TestCreateQuoteDerivesTotals(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	executive := env.createUser(t, model.RoleSalesExecutive)

	quote, err := env.quotes.CreateQuote(context.Background(), executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)

	assert.Equal(t, "QT-000001", quote.QuoteNo)
	assert.Equal(t, model.QuoteStatusDraft, quote.Status)
	assert.Equal(t, 1, quote.Version)
	assert.Equal(t, "1000.00", quote.Subtotal)
	assert.Equal(t, "1180.00", quote.Total)
	require.Len(t, quote.Items, 2)
	assert.Equal(t, "800.00", quote.Items[0].Subtotal)
}

func TestCreateQuoteRejectsInvalidItems(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	executive := env.createUser(t, model.RoleSalesExecutive)
	ctx := context.Background()

	req := sampleQuoteRequest()
	req.Items[0].Quantity = "0"
	_, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, req)
	require.Error(t, err)

	req = sampleQuoteRequest()
	req.Items[0].UnitPrice = "-5"
	_, err = env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, req)
	require.Error(t, err)
}

func TestCreateQuoteDeniedForFinance(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	finance := env.createUser(t, model.RoleFinanceAccounts)

	_, err := env.quotes.CreateQuote(context.Background(), finance.ID.String(), finance.Role, sampleQuoteRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestQuoteLifecycle(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	executive := env.createUser(t, model.RoleSalesExecutive)
	manager := env.createUser(t, model.RoleSalesManager)

	created, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)

	sent, err := env.quotes.SendQuote(ctx, executive.ID.String(), executive.Role, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusSent, sent.Status)

	// An executive without delegation cannot approve.
	_, err = env.quotes.ApproveQuote(ctx, executive.ID.String(), executive.Role, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	approved, err := env.quotes.ApproveQuote(ctx, manager.ID.String(), manager.Role, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusApproved, approved.Status)

	// Approving twice is an illegal transition.
	_, err = env.quotes.ApproveQuote(ctx, manager.ID.String(), manager.Role, created.ID)
	require.Error(t, err)
}

func TestUpdateQuoteOnlyWhileDraft(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	executive := env.createUser(t, model.RoleSalesExecutive)

	created, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)

	req := sampleQuoteRequest()
	req.Items = []LineItemRequest{{Description: "Widget", Quantity: "2", UnitPrice: "300"}}
	req.Discount = "0"
	req.Shipping = "0"
	req.CGST = "0"
	req.SGST = "0"

	updated, err := env.quotes.UpdateQuote(ctx, executive.ID.String(), executive.Role, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "600.00", updated.Total)
	require.Len(t, updated.Items, 1)

	_, err = env.quotes.SendQuote(ctx, executive.ID.String(), executive.Role, created.ID)
	require.NoError(t, err)

	_, err = env.quotes.UpdateQuote(ctx, executive.ID.String(), executive.Role, created.ID, req)
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Contains(t, transitionErr.Reason, "revise the quote instead")
}

func TestReviseQuoteSnapshotsVersion(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	executive := env.createUser(t, model.RoleSalesExecutive)

	created, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)
	_, err = env.quotes.SendQuote(ctx, executive.ID.String(), executive.Role, created.ID)
	require.NoError(t, err)

	revised, err := env.quotes.ReviseQuote(ctx, executive.ID.String(), executive.Role, created.ID,
		ReviseQuoteRequest{Reason: "customer asked for a discount"})
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusDraft, revised.Status)
	assert.Equal(t, 2, revised.Version)

	versions, err := env.quotes.ListVersions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, model.QuoteStatusSent, versions[0].Status)
	assert.Equal(t, "1180.00", versions[0].Total)
	assert.Contains(t, versions[0].ItemsJSON, "Widget")
	assert.Equal(t, "customer asked for a discount", versions[0].Reason)
}

func TestReviseQuoteRejectsDraftAndClosed(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	ctx := context.Background()
	executive := env.createUser(t, model.RoleSalesExecutive)

	created, err := env.quotes.CreateQuote(ctx, executive.ID.String(), executive.Role, sampleQuoteRequest())
	require.NoError(t, err)

	_, err = env.quotes.ReviseQuote(ctx, executive.ID.String(), executive.Role, created.ID, ReviseQuoteRequest{})
	require.Error(t, err)

	var transitionErr *InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
}

func TestSendQuoteMissing(t *testing.T) {
	env := newTestEnv(t, trackingConfig())
	executive := env.createUser(t, model.RoleSalesExecutive)

	_, err := env.quotes.SendQuote(context.Background(), executive.ID.String(), executive.Role,
		"0b9fbc4b-3efb-4a46-a3d6-0e1f21a9a1af")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
